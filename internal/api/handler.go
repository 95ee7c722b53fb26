// Package api provides HTTP handlers for the mailsmith API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/session"
	"github.com/ashureev/mailsmith/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// BreakerStater reports the model provider circuit state.
type BreakerStater interface {
	State() gateway.BreakerState
}

// SessionCloser tears down transport state bound to a session.
type SessionCloser interface {
	CloseSession(userID, sessionID string)
}

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	arena    *session.Arena
	gw       gateway.Gateway
	breaker  BreakerStater
	conns    SessionCloser
	validate *validator.Validate
	info     ServerInfo
}

// ServerInfo is the public part of the configuration served to the UI.
type ServerInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	MaxSteps int    `json:"maxSteps"`
}

// Deps groups Handler dependencies. Breaker and Conns are optional.
type Deps struct {
	Repo    store.Repository
	Arena   *session.Arena
	Gateway gateway.Gateway
	Breaker BreakerStater
	Conns   SessionCloser
	Info    ServerInfo
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		repo:     d.Repo,
		arena:    d.Arena,
		gw:       d.Gateway,
		breaker:  d.Breaker,
		conns:    d.Conns,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		info:     d.Info,
	}
}

// RegisterRoutes registers the session, draft, prompt and health routes.
// The email generation route is registered separately so it can carry its
// own guard middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.EndSession)
		r.Get("/drafts", h.ListDrafts)
		r.Delete("/drafts", h.ClearDrafts)
		r.Get("/drafts/{id}/download", h.DownloadDraft)
		r.Get("/prompts", h.GetPrompts)
		r.Get("/health", h.Health)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
