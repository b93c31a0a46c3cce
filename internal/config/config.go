package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/jobassist/internal/engine"
	"github.com/kalambet/jobassist/internal/whatsapp"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Language LanguageConfig
	Ollama   OllamaConfig
	Search   SearchConfig
	WhatsApp WhatsAppConfig
	Ingest   IngestConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Driver   string // "sqlite" or "postgres"
	DataDir  string
	DSN      string
	SeedJobs bool
}

type LanguageConfig struct {
	Provider       string
	ChatModel      string
	EmbedModel     string
	TimeoutSeconds int
	BaseURL        string
	OpenAIAPIKey   string
	GeminiAPIKey   string
}

type OllamaConfig struct {
	BaseURL string
}

type SearchConfig struct {
	Threshold    float64
	TopK         int
	HistoryLimit int
}

type WhatsAppConfig struct {
	APIBaseURL    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
}

type IngestConfig struct {
	PollIntervalMS int
	Concurrency    int
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Driver: "sqlite", DataDir: defaultDataDir(), SeedJobs: true},
		Language: LanguageConfig{
			Provider:       engine.ProviderOllama,
			TimeoutSeconds: 10,
		},
		Ollama:   OllamaConfig{BaseURL: "http://localhost:11434"},
		Search:   SearchConfig{Threshold: 0.3, TopK: 5, HistoryLimit: 10},
		WhatsApp: WhatsAppConfig{APIBaseURL: whatsapp.DefaultBaseURL},
		Ingest:   IngestConfig{PollIntervalMS: 500, Concurrency: 4},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// $XDG_CONFIG_HOME/jobassist/config.json, secrets.json next to it, and
// JOBASSIST_* environment variables. A .env file in the working directory
// is loaded into the environment first without overriding variables that
// are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), NewSecretStore())
}

func configFilePath() string {
	return filepath.Join(configDir(), "config.json")
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	if err := applySecrets(&cfg, secrets); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	chat, embed := engine.DefaultModels(cfg.Language.Provider)
	if cfg.Language.ChatModel == "" {
		cfg.Language.ChatModel = chat
	}
	if cfg.Language.EmbedModel == "" {
		cfg.Language.EmbedModel = embed
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.driver is postgres but no DSN is set; set JOBASSIST_STORAGE_DSN")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q (want sqlite or postgres)", c.Storage.Driver)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be within [0, 1], got %v", c.Search.Threshold)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Timeout is the per-call language model deadline.
func (c LanguageConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval is the ingest worker's idle poll period.
func (c IngestConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Addr is the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
