package engine

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by Detect.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiAPIKey  string
}

// Detect returns the configured backend. It returns ErrDisabled when the
// provider is "none" or the hosted provider has no API key.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOllama, "":
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: no api key: %w", ErrDisabled)
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: no api key: %w", ErrDisabled)
		}
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey)
	case ProviderNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown language provider %q", cfg.Provider)
	}
}

// DefaultModels returns the chat and embedding models used when none are configured.
func DefaultModels(provider string) (chat, embed string) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return "gpt-4o", "text-embedding-3-small"
	case ProviderGemini:
		return "gemini-2.0-flash", "text-embedding-004"
	default:
		return "llama3.2", "nomic-embed-text"
	}
}
