package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the health check, the WhatsApp webhook and the /v1 API.
func NewRouter(webhook WebhookDeps, app AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Mount("/webhook", NewWebhookHandler(webhook))
	r.Mount("/v1", NewAppHandler(app))
	return r
}
