package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobassist/internal/storage"
	"github.com/kalambet/jobassist/internal/whatsapp"
)

// WebhookDeps are the collaborators of the WhatsApp webhook. Sender may be
// nil, in which case replies are only returned in the response body.
type WebhookDeps struct {
	Conversation Conversation
	Profiles     Profiles
	Sender       Sender
	VerifyToken  string
}

type webhookUser struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type webhookResponse struct {
	Success   bool          `json:"success"`
	User      webhookUser   `json:"user"`
	Responses []MessageView `json:"responses"`
	Error     string        `json:"error,omitempty"`
}

// NewWebhookHandler returns the Meta webhook endpoint: a GET verification
// handshake and a POST that runs one turn per inbound message.
func NewWebhookHandler(deps WebhookDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/", handleVerify(deps.VerifyToken))
	r.Post("/", handleInbound(deps))
	return r
}

func handleVerify(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != verifyToken {
			slog.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		slog.Info("webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, q.Get("hub.challenge"))
	}
}

func handleInbound(deps WebhookDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		in, err := whatsapp.Parse(body)
		if errors.Is(err, whatsapp.ErrNoMessage) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		slog.Debug("webhook message", "phone", in.Phone, "message_id", in.MessageID)

		resp := webhookResponse{
			Success: true,
			User:    webhookUser{Name: in.DisplayName, Phone: in.Phone},
		}
		msgs, err := runInbound(r, deps, in)
		if err != nil {
			slog.Error("webhook turn failed", "phone", in.Phone, "error", err)
			resp.Success = false
			resp.Error = err.Error()
		}
		resp.Responses = newMessageViews(msgs)

		if deps.Sender != nil && len(msgs) > 0 {
			if err := deps.Sender.Deliver(r.Context(), in.Phone, msgs); err != nil {
				slog.Error("delivering replies failed", "phone", in.Phone, "error", err)
			}
		}

		// Meta retries anything but 200, so failures are reported in the body.
		writeJSON(w, http.StatusOK, resp)
	}
}

// runInbound handles an Apply button tap for a known seeker and treats every
// other message as a conversation turn.
func runInbound(r *http.Request, deps WebhookDeps, in whatsapp.Inbound) ([]storage.Message, error) {
	ctx := r.Context()
	if jobID, ok := in.ApplyJobID(); ok {
		p, err := deps.Profiles.Get(ctx, in.Phone)
		switch {
		case err == nil:
			msg, err := applyFor(ctx, deps.Conversation, p.ID, jobID)
			if isJobNotFound(err) {
				return []storage.Message{jobUnavailable()}, nil
			}
			if err != nil {
				return nil, err
			}
			return []storage.Message{msg}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}
	return deps.Conversation.HandleTurn(ctx, in.Phone, in.Text)
}
