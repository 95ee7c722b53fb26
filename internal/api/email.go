package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/mailsmith/internal/agent"
	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/extract"
	"github.com/ashureev/mailsmith/internal/guard"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/prompt"
	"github.com/ashureev/mailsmith/internal/slots"
	"github.com/go-chi/chi/v5"
)

const defaultTone = "professional"

// GenerateResponse is the body returned by POST /api/email/generate.
type GenerateResponse struct {
	Email  string              `json:"email"`
	Drafts []domain.EmailDraft `json:"drafts"`
}

// RegisterEmailRoutes registers the structured generation route behind the
// field guard.
func (h *Handler) RegisterEmailRoutes(r chi.Router, ev guard.Evaluator) {
	r.With(guard.FieldsMiddleware(ev)).Post("/api/email/generate", h.GenerateEmail)
}

// GenerateEmail generates one email from structured fields and stores it as
// a draft of the caller's session.
func (h *Handler) GenerateEmail(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req prompt.EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, guard.InvalidRequestReply)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, guard.MissingFieldsReply)
		return
	}
	if req.Tone == "" {
		req.Tone = defaultTone
	}

	sess := h.arena.Open(userID, sessionID)
	sess.UpdateSlots(slots.Record{
		Purpose:              req.Purpose,
		Context:              req.Context,
		Tone:                 req.Tone,
		Recipient:            req.Recipient,
		SpecificRequirements: req.AdditionalRequirements,
	})

	email, err := agent.Generate(r.Context(), h.gw, req)
	if err != nil {
		slog.Error("Email generation failed", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusBadGateway, prompt.GenerationApology)
		return
	}
	if err := sess.MarkGenerated(); err != nil {
		slog.Warn("Failed to mark slots generated", "error", err, "user_id", userID)
	}

	added := sess.AddDrafts(extract.New().Extract(prompt.WrapEmail(email))...)
	if added == nil {
		added = []domain.EmailDraft{}
	}
	JSON(w, http.StatusOK, GenerateResponse{Email: email, Drafts: added})
}
