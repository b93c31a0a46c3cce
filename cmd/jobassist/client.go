package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/jobassist/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:    "http://" + cfg.Server.Addr(),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is jobassist running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErrorMessage(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// apiErrorMessage extracts error.message from an API error body, or returns
// the body verbatim.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(body)
}

// Response shapes of the /v1 API.

type messageView struct {
	Sender  string   `json:"sender"`
	Type    string   `json:"type"`
	Content string   `json:"content"`
	JobID   string   `json:"job_id,omitempty"`
	Job     *jobView `json:"job,omitempty"`
	Options []string `json:"options,omitempty"`
}

type jobView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	City        string `json:"city"`
	Salary      string `json:"salary,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type turnResult struct {
	Phone     string        `json:"phone"`
	Responses []messageView `json:"responses"`
}

func (c *apiClient) turn(ctx context.Context, phone, text string) ([]messageView, error) {
	resp, err := c.post(ctx, "/v1/turns", map[string]string{"phone": phone, "text": text})
	if err != nil {
		return nil, err
	}
	var out turnResult
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

func (c *apiClient) apply(ctx context.Context, phone, jobID string) (string, error) {
	resp, err := c.post(ctx, "/v1/applications", map[string]string{"phone": phone, "job_id": jobID})
	if err != nil {
		return "", err
	}
	var out struct {
		Status  string      `json:"status"`
		Message messageView `json:"message"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

func (c *apiClient) removeJob(ctx context.Context, id string) error {
	resp, err := c.delete(ctx, "/v1/jobs/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var out map[string]string
	return decodeJSON(resp, &out)
}

func profilePath(phone string) string {
	return "/v1/profiles/" + url.PathEscape(phone)
}
