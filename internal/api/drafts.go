package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ListDrafts returns the session's drafts in creation order.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	drafts := []domain.EmailDraft{}
	if sess, err := h.arena.Get(userID, sessionID); err == nil {
		drafts = append(drafts, sess.Drafts()...)
	}
	JSON(w, http.StatusOK, map[string]interface{}{"drafts": drafts})
}

// ClearDrafts drops every draft of the session.
func (h *Handler) ClearDrafts(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cleared := 0
	if sess, err := h.arena.Get(userID, sessionID); err == nil {
		cleared = sess.ClearDrafts()
	}
	JSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
}

// DownloadDraft returns one draft's full text as a plain-text attachment.
func (h *Handler) DownloadDraft(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.arena.Get(userID, sessionID)
	if err != nil {
		Error(w, http.StatusNotFound, "draft not found")
		return
	}
	draft, ok := sess.Draft(chi.URLParam(r, "id"))
	if !ok {
		Error(w, http.StatusNotFound, "draft not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+draft.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(draft.FullText)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(draft.FullText))
}
