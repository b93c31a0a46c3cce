package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEngine_ChatForwardsNestedSchema(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"skills":["Driver"]}`},
		})
	}))
	defer srv.Close()

	schema := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"skills": {Type: "array", Items: &Schema{Type: "string"}},
		},
	}
	out, err := NewOllamaEngine(srv.URL).Chat(context.Background(), "llama3.1", []Message{{Role: RoleUser, Content: "I drive"}}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"skills":["Driver"]}` {
		t.Errorf("got %q", out)
	}

	format, ok := body["format"].(map[string]any)
	if !ok {
		t.Fatalf("format = %T, want object", body["format"])
	}
	props := format["properties"].(map[string]any)
	skills := props["skills"].(map[string]any)
	if items := skills["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("items.type = %v, want string", items["type"])
	}
	if _, ok := body["options"]; !ok {
		t.Error("structured chat should pin temperature")
	}
}

func TestOllamaEngine_PlainChatHasNoFormat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "hi"}})
	}))
	defer srv.Close()

	if _, err := NewOllamaEngine(srv.URL).Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := body["format"]; ok {
		t.Errorf("format should be omitted, got %v", body["format"])
	}
}

func TestOllamaEngine_EmbedAndModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{{"name": "nomic-embed-text:latest"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL)
	vec, err := e.Embed(context.Background(), "nomic-embed-text", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d floats, want 3", len(vec))
	}
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning() = false")
	}
	if !e.HasModel(context.Background(), "nomic-embed-text") {
		t.Error("HasModel(nomic-embed-text) = false")
	}
}
