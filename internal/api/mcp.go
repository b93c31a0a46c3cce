package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobassist/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Conversation Conversation
	Profiles     Profiles
	Catalog      Catalog
	Version      string
}

// NewMCPServer creates an MCP server that lets agent clients talk to job
// seekers' conversations, search postings and submit applications.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"jobassist",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobassist: conversational job matching for blue-collar seekers over WhatsApp."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message as the seeker with the given phone number and return the assistant's replies."),
			mcp.WithString("phone", mcp.Description("Seeker phone number, e.g. +911111111111"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("search_jobs",
			mcp.WithDescription("Keyword search over job postings by city and skill."),
			mcp.WithString("city", mcp.Description("City to search in; empty searches all of India")),
			mcp.WithString("skill", mcp.Description("Skill or job title keyword")),
		),
		mcpSearchJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("apply_job",
			mcp.WithDescription("Apply to a job posting on behalf of the seeker with the given phone number."),
			mcp.WithString("phone", mcp.Description("Seeker phone number"), mcp.Required()),
			mcp.WithString("job_id", mcp.Description("Job posting id"), mcp.Required()),
		),
		mcpApplyJob(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"seeker://{phone}/profile",
			"Seeker Profile",
			mcp.WithTemplateDescription("A seeker's profile with applied job ids, as JSON"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://catalog",
			"Job Catalog",
			mcp.WithResourceDescription("The 50 most recent job postings"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJobs(deps),
	)

	return s
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		phone, err := req.RequireString("phone")
		if err != nil || phone == "" {
			return mcpError("phone is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		msgs, err := deps.Conversation.HandleTurn(ctx, phone, text)
		if err != nil {
			return mcpError(fmt.Sprintf("turn failed: %v", err)), nil
		}
		return mcpJSON(newMessageViews(msgs))
	}
}

func mcpSearchJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		city := req.GetString("city", "")
		var skills []string
		if skill := req.GetString("skill", ""); skill != "" {
			skills = []string{skill}
		}

		found, err := deps.Catalog.FindJobs(ctx, city, skills)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(newJobViews(found))
	}
}

func mcpApplyJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		phone, err := req.RequireString("phone")
		if err != nil {
			return mcpError("phone is required"), nil
		}
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		p, err := deps.Profiles.Get(ctx, phone)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no seeker with phone %s", phone)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
		}

		msg, err := applyFor(ctx, deps.Conversation, p.ID, jobID)
		if isJobNotFound(err) {
			return mcpError(jobUnavailable().Content), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("apply failed: %v", err)), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		phone, err := phoneFromURI(req.Params.URI)
		if err != nil {
			return nil, err
		}
		p, err := deps.Profiles.Get(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		applied, err := deps.Profiles.AppliedJobIDs(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get applications: %w", err)
		}
		return jsonResource(req.Params.URI, newProfileView(p, applied))
	}
}

func mcpResourceJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, _, err := deps.Catalog.List(ctx, 50, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		return jsonResource(req.Params.URI, newJobViews(list))
	}
}

// phoneFromURI extracts the phone from seeker://{phone}/profile.
func phoneFromURI(uri string) (string, error) {
	const prefix, suffix = "seeker://", "/profile"
	if len(uri) <= len(prefix)+len(suffix) || uri[:len(prefix)] != prefix || uri[len(uri)-len(suffix):] != suffix {
		return "", fmt.Errorf("unsupported resource uri %q", uri)
	}
	return uri[len(prefix) : len(uri)-len(suffix)], nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
