package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/jobassist/internal/openai"
)

var _ Engine = (*OpenAIEngine)(nil)

// OpenAIEngine adapts an OpenAI-compatible chat/embeddings API.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine creates an engine for baseURL. An empty baseURL targets OpenAI.
func NewOpenAIEngine(apiKey, baseURL string) *OpenAIEngine {
	return &OpenAIEngine{client: openai.NewClient(apiKey, baseURL)}
}

// Chat uses JSON mode when a schema is given. The schema itself is appended
// to the system prompt since JSON mode does not accept one.
func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	req := openai.ChatRequest{Model: model, Messages: make([]openai.ChatMessage, 0, len(messages)+1)}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	if jsonSchema != nil {
		b, err := json.Marshal(jsonSchema)
		if err != nil {
			return "", fmt.Errorf("encoding schema: %w", err)
		}
		hint := openai.ChatMessage{Role: RoleSystem, Content: "Respond with a JSON object matching this schema: " + string(b)}
		req.Messages = append([]openai.ChatMessage{hint}, req.Messages...)
		req.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
		zero := 0.0
		req.Temperature = &zero
	}
	out, err := e.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

// IsRunning is always true for a hosted API; failures surface per call.
func (e *OpenAIEngine) IsRunning(context.Context) bool {
	return true
}
