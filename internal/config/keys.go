package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func str(key, env string, set func(*Config, string), get func(Config) string) keySpec {
	return keySpec{
		key: key, typ: kString, env: env,
		apply:   func(cfg *Config, v any) { set(cfg, v.(string)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

func secret(key, env string, set func(*Config, string), get func(Config) string) keySpec {
	s := str(key, env, set, get)
	s.secret = true
	return s
}

func integer(key, env string, set func(*Config, int), get func(Config) int) keySpec {
	return keySpec{
		key: key, typ: kInt, env: env,
		apply:   func(cfg *Config, v any) { set(cfg, v.(int)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

var specs = []keySpec{
	str("server.host", "JOBASSIST_SERVER_HOST",
		func(c *Config, v string) { c.Server.Host = v }, func(c Config) string { return c.Server.Host }),
	integer("server.port", "JOBASSIST_SERVER_PORT",
		func(c *Config, v int) { c.Server.Port = v }, func(c Config) int { return c.Server.Port }),
	secret("server.api_token", "JOBASSIST_API_TOKEN",
		func(c *Config, v string) { c.Server.APIToken = v }, func(c Config) string { return c.Server.APIToken }),

	str("log.level", "JOBASSIST_LOG_LEVEL",
		func(c *Config, v string) { c.Log.Level = v }, func(c Config) string { return c.Log.Level }),

	str("storage.driver", "JOBASSIST_STORAGE_DRIVER",
		func(c *Config, v string) { c.Storage.Driver = v }, func(c Config) string { return c.Storage.Driver }),
	str("storage.data_dir", "JOBASSIST_STORAGE_DATA_DIR",
		func(c *Config, v string) { c.Storage.DataDir = v }, func(c Config) string { return c.Storage.DataDir }),
	secret("storage.dsn", "JOBASSIST_STORAGE_DSN",
		func(c *Config, v string) { c.Storage.DSN = v }, func(c Config) string { return c.Storage.DSN }),
	{
		key: "storage.seed_jobs", typ: kBool, env: "JOBASSIST_STORAGE_SEED_JOBS",
		apply:   func(cfg *Config, v any) { cfg.Storage.SeedJobs = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.SeedJobs },
	},

	str("language.provider", "JOBASSIST_LANGUAGE_PROVIDER",
		func(c *Config, v string) { c.Language.Provider = v }, func(c Config) string { return c.Language.Provider }),
	str("language.chat_model", "JOBASSIST_LANGUAGE_CHAT_MODEL",
		func(c *Config, v string) { c.Language.ChatModel = v }, func(c Config) string { return c.Language.ChatModel }),
	str("language.embed_model", "JOBASSIST_LANGUAGE_EMBED_MODEL",
		func(c *Config, v string) { c.Language.EmbedModel = v }, func(c Config) string { return c.Language.EmbedModel }),
	integer("language.timeout_seconds", "JOBASSIST_LANGUAGE_TIMEOUT_SECONDS",
		func(c *Config, v int) { c.Language.TimeoutSeconds = v }, func(c Config) int { return c.Language.TimeoutSeconds }),
	str("language.base_url", "JOBASSIST_LANGUAGE_BASE_URL",
		func(c *Config, v string) { c.Language.BaseURL = v }, func(c Config) string { return c.Language.BaseURL }),
	secret("language.openai_api_key", "JOBASSIST_OPENAI_API_KEY",
		func(c *Config, v string) { c.Language.OpenAIAPIKey = v }, func(c Config) string { return c.Language.OpenAIAPIKey }),
	secret("language.gemini_api_key", "JOBASSIST_GEMINI_API_KEY",
		func(c *Config, v string) { c.Language.GeminiAPIKey = v }, func(c Config) string { return c.Language.GeminiAPIKey }),

	str("ollama.base_url", "JOBASSIST_OLLAMA_BASE_URL",
		func(c *Config, v string) { c.Ollama.BaseURL = v }, func(c Config) string { return c.Ollama.BaseURL }),

	{
		key: "search.threshold", typ: kFloat, env: "JOBASSIST_SEARCH_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Search.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.Threshold },
	},
	integer("search.top_k", "JOBASSIST_SEARCH_TOP_K",
		func(c *Config, v int) { c.Search.TopK = v }, func(c Config) int { return c.Search.TopK }),
	integer("search.history_limit", "JOBASSIST_SEARCH_HISTORY_LIMIT",
		func(c *Config, v int) { c.Search.HistoryLimit = v }, func(c Config) int { return c.Search.HistoryLimit }),

	str("whatsapp.api_base_url", "JOBASSIST_WHATSAPP_API_BASE_URL",
		func(c *Config, v string) { c.WhatsApp.APIBaseURL = v }, func(c Config) string { return c.WhatsApp.APIBaseURL }),
	str("whatsapp.phone_number_id", "JOBASSIST_WHATSAPP_PHONE_NUMBER_ID",
		func(c *Config, v string) { c.WhatsApp.PhoneNumberID = v }, func(c Config) string { return c.WhatsApp.PhoneNumberID }),
	secret("whatsapp.access_token", "JOBASSIST_WHATSAPP_ACCESS_TOKEN",
		func(c *Config, v string) { c.WhatsApp.AccessToken = v }, func(c Config) string { return c.WhatsApp.AccessToken }),
	secret("whatsapp.verify_token", "JOBASSIST_WHATSAPP_VERIFY_TOKEN",
		func(c *Config, v string) { c.WhatsApp.VerifyToken = v }, func(c Config) string { return c.WhatsApp.VerifyToken }),

	integer("ingest.poll_interval_ms", "JOBASSIST_INGEST_POLL_INTERVAL_MS",
		func(c *Config, v int) { c.Ingest.PollIntervalMS = v }, func(c Config) int { return c.Ingest.PollIntervalMS }),
	integer("ingest.concurrency", "JOBASSIST_INGEST_CONCURRENCY",
		func(c *Config, v int) { c.Ingest.Concurrency = v }, func(c Config) int { return c.Ingest.Concurrency }),
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of s.
func (s keySpec) parseValue(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applySecrets(cfg *Config, store SecretStore) error {
	if store == nil {
		return nil
	}
	for _, s := range specs {
		if !s.secret {
			continue
		}
		v, err := store.Get(s.key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading secret %s: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
