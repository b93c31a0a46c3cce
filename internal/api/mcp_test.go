package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/jobassist/internal/conversation"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *testStack) {
	t.Helper()
	st := newTestStack(t)
	return MCPDeps{
		Conversation: st.conv,
		Profiles:     st.profiles,
		Catalog:      st.catalog,
		Version:      "test",
	}, st
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPSendMessage(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSendMessage(deps)

	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"phone": "+911111111111",
		"text":  "Hi",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var msgs []MessageView
	if err := json.Unmarshal([]byte(toolText(t, result)), &msgs); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != conversation.WelcomeMessage {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestMCPSendMessage_MissingArgs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSendMessage(deps)

	for name, args := range map[string]map[string]interface{}{
		"no phone": {"text": "hi"},
		"no text":  {"phone": "+91"},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("send_message", args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !result.IsError {
				t.Error("expected tool error")
			}
		})
	}
}

func TestMCPSearchJobs(t *testing.T) {
	deps, st := newTestMCPDeps(t)
	st.seedJob(t)
	handler := mcpSearchJobs(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_jobs", map[string]interface{}{
		"city":  "mumbai",
		"skill": "delivery",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var jobs []JobView
	json.Unmarshal([]byte(toolText(t, result)), &jobs)
	if len(jobs) != 1 || jobs[0].Company != "Zepto" {
		t.Errorf("jobs = %+v", jobs)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("search_jobs", map[string]interface{}{"city": "Chennai"}))
	if got := toolText(t, result); got != "[]" {
		t.Errorf("Chennai result = %s, want []", got)
	}
}

func TestMCPApplyJob(t *testing.T) {
	deps, st := newTestMCPDeps(t)
	j := st.seedJob(t)
	st.turn(t, "+91222", "Hi")
	handler := mcpApplyJob(deps)

	result, err := handler(context.Background(), makeCallToolRequest("apply_job", map[string]interface{}{
		"phone":  "+91222",
		"job_id": j.ID,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError || !strings.Contains(toolText(t, result), "Application Submitted") {
		t.Errorf("result = %s", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("apply_job", map[string]interface{}{
		"phone":  "+91222",
		"job_id": "missing",
	}))
	if !result.IsError || toolText(t, result) != conversation.JobUnavailableMessage {
		t.Errorf("missing job result = %s", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("apply_job", map[string]interface{}{
		"phone":  "+91000",
		"job_id": j.ID,
	}))
	if !result.IsError {
		t.Error("expected error for unknown seeker")
	}
}

func TestMCPResourceProfile(t *testing.T) {
	deps, st := newTestMCPDeps(t)
	st.turn(t, "+91333", "Hi")
	st.turn(t, "+91333", "Meena")
	handler := mcpResourceProfile(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("seeker://+91333/profile"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var view ProfileView
	json.Unmarshal([]byte(tc.Text), &view)
	if view.Name != "Meena" || view.Phone != "+91333" {
		t.Errorf("view = %+v", view)
	}

	if _, err := handler(context.Background(), makeReadResourceRequest("seeker://+91000/profile")); err == nil {
		t.Error("expected error for unknown seeker")
	}
	if _, err := handler(context.Background(), makeReadResourceRequest("user://profile")); err == nil {
		t.Error("expected error for unsupported uri")
	}
}

func TestMCPResourceJobs(t *testing.T) {
	deps, st := newTestMCPDeps(t)
	st.seedJob(t)
	handler := mcpResourceJobs(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("jobs://catalog"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	var jobs []JobView
	json.Unmarshal([]byte(tc.Text), &jobs)
	if len(jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs))
	}
}
