package language

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/jobassist/internal/composer"
	"github.com/kalambet/jobassist/internal/engine"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultContextTokens = 1500
)

// Config selects models and limits for an LLM capability.
type Config struct {
	ChatModel     string
	EmbedModel    string
	Timeout       time.Duration
	ContextTokens int
}

// LLM implements Capability on top of an engine.Engine.
type LLM struct {
	engine   engine.Engine
	cfg      Config
	composer *composer.Composer
}

// NewLLM creates a capability backed by eng. Zero Config members take defaults.
func NewLLM(eng engine.Engine, cfg Config) *LLM {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = defaultContextTokens
	}
	return &LLM{engine: eng, cfg: cfg, composer: composer.New(cfg.ContextTokens)}
}

func (l *LLM) Available() bool { return true }

// ClassifyIntent asks the model for one of the four intent labels.
func (l *LLM) ClassifyIntent(ctx context.Context, text string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	raw, err := l.engine.Chat(ctx, l.cfg.ChatModel, buildClassifyPrompt(text), intentSchema())
	if err != nil {
		slog.Warn("intent classification failed", "error", err)
		return "", fmt.Errorf("classifying intent: %w", err)
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("malformed intent response", "error", err, "response", raw)
		return "", fmt.Errorf("decoding intent: %w", err)
	}
	intent, err := ParseIntent(out.Intent)
	if err != nil {
		slog.Warn("unknown intent label", "label", out.Intent)
		return "", err
	}
	return intent, nil
}

// ExtractFields asks the model for name, city, skills and salary mentioned in text.
func (l *LLM) ExtractFields(ctx context.Context, text string) (Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	raw, err := l.engine.Chat(ctx, l.cfg.ChatModel, buildExtractPrompt(text), fieldsSchema())
	if err != nil {
		slog.Warn("field extraction failed", "error", err)
		return Fields{}, fmt.Errorf("extracting fields: %w", err)
	}

	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		slog.Warn("malformed extraction response", "error", err, "response", raw)
		return Fields{}, fmt.Errorf("decoding fields: %w", err)
	}
	return f, nil
}

// Answer replies to a free-form career question.
func (l *LLM) Answer(ctx context.Context, question string, ac AnswerContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	msgs := l.composer.Compose(answerSystemPrompt, ac.ProfileSummary, ac.History, question)
	raw, err := l.engine.Chat(ctx, l.cfg.ChatModel, msgs, nil)
	if err != nil {
		slog.Warn("answer generation failed", "error", err)
		return "", fmt.Errorf("answering: %w", err)
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", fmt.Errorf("answering: empty response")
	}
	return answer, nil
}

// Embed returns the embedding of text using the configured embedding model.
func (l *LLM) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	vec, err := l.engine.Embed(ctx, l.cfg.EmbedModel, text)
	if err != nil {
		slog.Warn("embedding failed", "error", err)
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return vec, nil
}
