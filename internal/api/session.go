package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/session"
	"github.com/ashureev/mailsmith/internal/slots"
)

// endLocks prevents concurrent teardown of the same session.
var endLocks sync.Map

// SessionResponse describes the caller's session.
type SessionResponse struct {
	UserID     string       `json:"userId"`
	SessionID  string       `json:"sessionId"`
	Slots      slots.Result `json:"slots"`
	DraftCount int          `json:"draftCount"`
	Active     bool         `json:"active"`
}

// GetMe returns the current anonymous user.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.info)
}

// GetSession returns the slot record and draft count of the caller's
// session. A session that has not chatted yet reports an empty record.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := SessionResponse{UserID: userID, SessionID: sessionID}
	sess, err := h.arena.Get(userID, sessionID)
	if err == nil {
		snap := sess.Snapshot()
		resp.Slots = snap.Slots
		resp.DraftCount = snap.DraftCount
		resp.Active = true
	} else {
		resp.Slots = slots.NewTracker().Result()
	}
	JSON(w, http.StatusOK, resp)
}

// EndSession tears the caller's session down: arena entry, live websocket
// and registry row.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := session.Key{UserID: userID, SessionID: sessionID}
	lock, _ := endLocks.LoadOrStore(key, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		Error(w, http.StatusConflict, "teardown_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		endLocks.Delete(key)
	}()

	existed := h.arena.Close(userID, sessionID)
	if h.conns != nil {
		h.conns.CloseSession(userID, sessionID)
	}

	// The registry update must finish even if the client goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.repo.EndSession(ctx, userID, sessionID, time.Now()); err != nil {
		slog.Error("Failed to end session", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	slog.Info("Session ended", "user_id", userID, "session_id", sessionID, "had_state", existed)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ended",
		"existed": existed,
	})
}
