package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobassist/internal/conversation"
	"github.com/kalambet/jobassist/internal/jobs"
	"github.com/kalambet/jobassist/internal/storage"
)

// AppDeps are the collaborators of the /v1 API.
type AppDeps struct {
	Conversation Conversation
	Profiles     Profiles
	History      History
	Catalog      Catalog
	Token        string
}

type turnRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

type turnResponse struct {
	Phone     string        `json:"phone"`
	Responses []MessageView `json:"responses"`
}

type applicationRequest struct {
	JobID    string `json:"job_id"`
	SeekerID string `json:"seeker_id"`
	Phone    string `json:"phone"`
}

type jobRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	City        string `json:"city"`
	Salary      string `json:"salary"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type jobList struct {
	Jobs  []JobView `json:"jobs"`
	Total int       `json:"total"`
}

// NewAppHandler returns the bearer-protected simulator and admin API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/turns", handleTurn(deps))
	r.Get("/profiles/{phone}", handleGetProfile(deps))
	r.Get("/profiles/{phone}/messages", handleListMessages(deps))
	r.Delete("/profiles/{phone}", handleDeleteProfile(deps))
	r.Post("/applications", handleApply(deps))
	r.Get("/jobs", handleListJobs(deps))
	r.Post("/jobs", handleAddJob(deps))
	r.Delete("/jobs/{id}", handleRemoveJob(deps))
	r.Post("/admin/reset", handleReset(deps))

	return r
}

func handleTurn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Phone = strings.TrimSpace(req.Phone)
		if req.Phone == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "phone is required")
			return
		}

		msgs, err := deps.Conversation.HandleTurn(r.Context(), req.Phone, req.Text)
		if err != nil {
			slog.Error("turn failed", "phone", req.Phone, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{
					"message": err.Error(),
					"type":    "store_unavailable",
				},
				"responses": newMessageViews(msgs),
			})
			return
		}

		writeJSON(w, http.StatusOK, turnResponse{Phone: req.Phone, Responses: newMessageViews(msgs)})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := chi.URLParam(r, "phone")
		p, err := deps.Profiles.Get(r.Context(), phone)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		applied, err := deps.Profiles.AppliedJobIDs(r.Context(), p.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get applications: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newProfileView(p, applied))
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := chi.URLParam(r, "phone")
		p, err := deps.Profiles.Get(r.Context(), phone)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", 0, 500)
		msgs, err := deps.History.GetMessageHistory(r.Context(), p.ID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newMessageViews(msgs))
	}
}

func handleDeleteProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := chi.URLParam(r, "phone")
		err := deps.Profiles.Delete(r.Context(), phone)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleApply(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req applicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.JobID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "job_id is required")
			return
		}

		seekerID := req.SeekerID
		if seekerID == "" {
			if req.Phone == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "one of seeker_id or phone is required")
				return
			}
			p, err := deps.Profiles.Get(r.Context(), req.Phone)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "profile not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
				return
			}
			seekerID = p.ID
		}

		msg, err := applyFor(r.Context(), deps.Conversation, seekerID, req.JobID)
		if isJobNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{
					"message": conversation.JobUnavailableMessage,
					"type":    "job_not_found",
					"code":    "JOB_NOT_FOUND",
				},
			})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to apply: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "applied",
			"message": newMessageView(msg),
		})
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if city, skill := q.Get("city"), q.Get("skill"); city != "" || skill != "" {
			var skills []string
			if skill != "" {
				skills = []string{skill}
			}
			found, err := deps.Catalog.FindJobs(r.Context(), city, skills)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to find jobs: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, jobList{Jobs: newJobViews(found), Total: len(found)})
			return
		}

		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		list, total, err := deps.Catalog.List(r.Context(), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, jobList{Jobs: newJobViews(list), Total: total})
	}
}

func handleAddJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req jobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		typ, err := jobs.ParseEmploymentType(req.Type)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		j := storage.Job{
			ID:          strings.TrimSpace(req.ID),
			Title:       strings.TrimSpace(req.Title),
			Company:     strings.TrimSpace(req.Company),
			City:        strings.TrimSpace(req.City),
			Salary:      req.Salary,
			Type:        typ,
			Description: req.Description,
		}
		if err := jobs.Validate(j); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		saved, err := deps.Catalog.Add(r.Context(), j)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add job: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, newJobView(saved))
	}
}

func handleRemoveJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Catalog.Remove(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.ResetUserData(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset: %v", err)
			return
		}
		deps.Profiles.Flush()
		slog.Info("user data reset")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}
