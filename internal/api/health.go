package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/mailsmith/internal/gateway"
)

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Provider string `json:"provider"`
	Breaker  string `json:"breaker,omitempty"`
	Sessions int    `json:"sessions"`
}

// Health reports store reachability and the provider circuit state. An
// unreachable store or an open circuit makes the service unavailable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", Sessions: h.arena.Len()}
	if h.gw != nil {
		resp.Provider = h.gw.Name()
	}
	status := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		resp.Store = "unreachable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if h.breaker != nil {
		state := h.breaker.State()
		resp.Breaker = string(state)
		if state == gateway.BreakerOpen {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	JSON(w, status, resp)
}
