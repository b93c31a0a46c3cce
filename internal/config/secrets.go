package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrSecretNotFound is returned by SecretStore.Get for an unset secret.
var ErrSecretNotFound = errors.New("secret not found")

// apiTokenKey names the generated bearer token in the secret store.
const apiTokenKey = "server.api_token"

// SecretStore holds credentials outside the plain config file.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file next to config.json.
type fileSecrets struct {
	mu   sync.Mutex
	path string
}

// NewSecretStore returns the secret store at $XDG_CONFIG_HOME/jobassist/secrets.json.
func NewSecretStore() SecretStore {
	return &fileSecrets{path: filepath.Join(configDir(), "secrets.json")}
}

func (s *fileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s *fileSecrets) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s *fileSecrets) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the bearer token for the /v1 API, generating and
// storing a random one on first use. JOBASSIST_API_TOKEN takes precedence.
func GetAPIToken(store SecretStore) (string, error) {
	if tok := os.Getenv("JOBASSIST_API_TOKEN"); tok != "" {
		return tok, nil
	}
	tok, err := store.Get(apiTokenKey)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := store.Set(apiTokenKey, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
