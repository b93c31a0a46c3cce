package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/jobassist/internal/storage"
)

// DefaultBaseURL is the Graph API root used when none is configured.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

const (
	maxButtons     = 3
	maxButtonTitle = 20
	maxBodyChars   = 1024
)

// StatusError is returned when the Graph API rejects a send.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("whatsapp send: unexpected status %d: %s", e.Status, e.Body)
}

// Client sends messages through the WhatsApp Business Cloud API.
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

// NewClient creates a Client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, phoneNumberID, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type interactive struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []button `json:"buttons"`
	} `json:"action"`
}

type button struct {
	Type  string `json:"type"`
	Reply Reply  `json:"reply"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendButtons sends body with up to three quick-reply buttons. Extra options
// are dropped and titles are cut to the API limit.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Reply) error {
	if len(buttons) == 0 {
		return c.SendText(ctx, to, body)
	}
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	ia := &interactive{Type: "button"}
	ia.Body.Text = truncate(body, maxBodyChars)
	for _, b := range buttons {
		b.Title = truncate(b.Title, maxButtonTitle)
		ia.Action.Buttons = append(ia.Action.Buttons, button{Type: "reply", Reply: b})
	}
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      ia,
	})
}

// Deliver sends the replies of one turn in order. Option lists become reply
// buttons and job cards become formatted text with an Apply button. Delivery
// stops at the first failure.
func (c *Client) Deliver(ctx context.Context, to string, msgs []storage.Message) error {
	for i, m := range msgs {
		var err error
		switch {
		case m.Type == storage.MessageJobCard && m.Job != nil:
			err = c.SendButtons(ctx, to, RenderJobCard(*m.Job), []Reply{{ID: ApplyButtonPrefix + m.Job.ID, Title: "Apply"}})
		case len(m.Options) > 0:
			btns := make([]Reply, len(m.Options))
			for j, o := range m.Options {
				btns[j] = Reply{ID: fmt.Sprintf("opt_%d", j), Title: o}
			}
			err = c.SendButtons(ctx, to, m.Content, btns)
		default:
			err = c.SendText(ctx, to, m.Content)
		}
		if err != nil {
			return fmt.Errorf("delivering message %d of %d: %w", i+1, len(msgs), err)
		}
	}
	return nil
}

// RenderJobCard formats a posting for a chat bubble.
func RenderJobCard(j storage.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💼 *%s*\n🏢 %s\n📍 %s", j.Title, j.Company, j.City)
	if j.Salary != "" {
		fmt.Fprintf(&sb, "\n💰 %s", j.Salary)
	}
	if j.Type != "" {
		fmt.Fprintf(&sb, "\n🕒 %s", j.Type)
	}
	if j.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(j.Description)
	}
	return truncate(sb.String(), maxBodyChars)
}

func (c *Client) send(ctx context.Context, msg outbound) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	slog.Debug("whatsapp message sent", "to", msg.To, "type", msg.Type)
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
