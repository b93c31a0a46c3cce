package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
}

func newMemBackend(kv map[string]any) *memBackend {
	if kv == nil {
		kv = map[string]any{}
	}
	return &memBackend{data: kv}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m *memBackend) SetString(key, val string) error  { m.data[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *memBackend) Delete(key string) error          { delete(m.data, key); return nil }

// memSecrets is an in-memory SecretStore.
type memSecrets map[string]string

func (m memSecrets) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m memSecrets) Set(key, value string) error { m[key] = value; return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMemBackend(nil), memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Server.Addr() = %q, want 127.0.0.1:8080", cfg.Server.Addr())
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if !cfg.Storage.SeedJobs {
		t.Error("Storage.SeedJobs should default to true")
	}
	if cfg.Language.Provider != "ollama" {
		t.Errorf("Language.Provider = %q, want ollama", cfg.Language.Provider)
	}
	if cfg.Language.ChatModel != "llama3.2" || cfg.Language.EmbedModel != "nomic-embed-text" {
		t.Errorf("models = %q/%q, want llama3.2/nomic-embed-text", cfg.Language.ChatModel, cfg.Language.EmbedModel)
	}
	if cfg.Search.Threshold != 0.3 || cfg.Search.TopK != 5 || cfg.Search.HistoryLimit != 10 {
		t.Errorf("Search = %+v, want threshold 0.3, top_k 5, history 10", cfg.Search)
	}
	if cfg.WhatsApp.APIBaseURL == "" {
		t.Error("WhatsApp.APIBaseURL should have a default")
	}
	if cfg.Ingest.Concurrency != 4 {
		t.Errorf("Ingest.Concurrency = %d, want 4", cfg.Ingest.Concurrency)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend(map[string]any{
		"server.port":              9090,
		"log.level":                "debug",
		"storage.seed_jobs":        "false",
		"search.threshold":         "0.55",
		"language.provider":        "openai",
		"whatsapp.phone_number_id": "12345",
	})
	cfg, err := loadWith(b, memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.SeedJobs {
		t.Error("Storage.SeedJobs should be false")
	}
	if cfg.Search.Threshold != 0.55 {
		t.Errorf("Search.Threshold = %v, want 0.55", cfg.Search.Threshold)
	}
	if cfg.Language.ChatModel != "gpt-4o" {
		t.Errorf("ChatModel = %q, want provider default gpt-4o", cfg.Language.ChatModel)
	}
	if cfg.WhatsApp.PhoneNumberID != "12345" {
		t.Errorf("PhoneNumberID = %q, want 12345", cfg.WhatsApp.PhoneNumberID)
	}
}

func TestSecretsAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	secrets := memSecrets{
		"whatsapp.access_token": "from-store",
		"whatsapp.verify_token": "blue_cat",
	}
	t.Setenv("JOBASSIST_WHATSAPP_ACCESS_TOKEN", "from-env")
	t.Setenv("JOBASSIST_SEARCH_TOP_K", "3")

	cfg, err := loadWith(newMemBackend(map[string]any{"search.top_k": 8}), secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WhatsApp.AccessToken != "from-env" {
		t.Errorf("AccessToken = %q, want env value", cfg.WhatsApp.AccessToken)
	}
	if cfg.WhatsApp.VerifyToken != "blue_cat" {
		t.Errorf("VerifyToken = %q, want stored secret", cfg.WhatsApp.VerifyToken)
	}
	if cfg.Search.TopK != 3 {
		t.Errorf("TopK = %d, want env override 3", cfg.Search.TopK)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	b := newMemBackend(map[string]any{"whatsapp.access_token": "plain"})
	cfg, err := loadWith(b, memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WhatsApp.AccessToken != "" {
		t.Errorf("AccessToken = %q, secrets must not be read from config.json", cfg.WhatsApp.AccessToken)
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOBASSIST_SERVER_PORT", "not-a-number")
	cfg, err := loadWith(newMemBackend(nil), memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without dsn", map[string]string{"JOBASSIST_STORAGE_DRIVER": "postgres"}, "DSN"},
		{"unknown driver", map[string]string{"JOBASSIST_STORAGE_DRIVER": "mysql"}, "unknown storage.driver"},
		{"threshold out of range", map[string]string{"JOBASSIST_SEARCH_THRESHOLD": "1.5"}, "threshold"},
		{"zero top_k", map[string]string{"JOBASSIST_SEARCH_TOP_K": "0"}, "top_k"},
		{"port out of range", map[string]string{"JOBASSIST_SERVER_PORT": "70000"}, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(newMemBackend(nil), memSecrets{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestPostgresWithDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOBASSIST_STORAGE_DRIVER", "postgres")
	t.Setenv("JOBASSIST_STORAGE_DSN", "postgres://localhost/jobs")
	cfg, err := loadWith(newMemBackend(nil), memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.DSN != "postgres://localhost/jobs" {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)
	secrets := memSecrets{}

	if err := setKeyWith(b, secrets, "server.port", "9000"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if b.data["server.port"] != 9000 {
		t.Errorf("server.port = %v, want 9000", b.data["server.port"])
	}
	if err := setKeyWith(b, secrets, "search.threshold", "0.4"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if b.data["search.threshold"] != "0.4" {
		t.Errorf("search.threshold = %v", b.data["search.threshold"])
	}
	if err := setKeyWith(b, secrets, "whatsapp.access_token", "EAAG"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if _, ok := b.data["whatsapp.access_token"]; ok {
		t.Error("secret leaked into config backend")
	}
	if secrets["whatsapp.access_token"] != "EAAG" {
		t.Error("secret not stored")
	}

	if err := setKeyWith(b, secrets, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, secrets, "storage.seed_jobs", "maybe"); err == nil {
		t.Error("expected error for non-bool value")
	}
	if err := setKeyWith(b, secrets, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllRedactsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.WhatsApp.AccessToken = "EAAGsupersecretvalue"
	cfg.Language.OpenAIAPIKey = "short"

	byKey := map[string]KeyInfo{}
	for _, k := range ShowAll(cfg) {
		byKey[k.Key] = k
	}
	if len(byKey) != len(ValidKeys()) {
		t.Errorf("ShowAll returned %d keys, want %d", len(byKey), len(ValidKeys()))
	}
	if got := byKey["whatsapp.access_token"].Value; got != "EAAG****" {
		t.Errorf("access token shown as %q", got)
	}
	if got := byKey["language.openai_api_key"].Value; got != "****" {
		t.Errorf("short key shown as %q", got)
	}
	if got := byKey["whatsapp.verify_token"].Value; got != "(not set)" {
		t.Errorf("unset secret shown as %q", got)
	}
	if got := byKey["server.port"].Value; got != "8080" {
		t.Errorf("server.port shown as %q", got)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)
	if err := b.SetInt("server.port", 7000); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("log.level", "warn"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	reloaded := newFileBackend(path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 7000 {
		t.Errorf("GetInt = %d, %v, %v", port, ok, err)
	}
	level, ok, _ := reloaded.GetString("log.level")
	if !ok || level != "warn" {
		t.Errorf("GetString = %q, %v", level, ok)
	}
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("JOBASSIST_API_TOKEN", "")
	store := NewSecretStore()

	first, err := GetAPIToken(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(first))
	}
	second, err := GetAPIToken(store)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("token should be stable across calls")
	}

	t.Setenv("JOBASSIST_API_TOKEN", "override")
	got, err := GetAPIToken(store)
	if err != nil || got != "override" {
		t.Errorf("GetAPIToken = %q, %v, want env override", got, err)
	}
}

func TestSecretStoreMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := NewSecretStore().Get("whatsapp.access_token")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("err = %v, want ErrSecretNotFound", err)
	}
}
