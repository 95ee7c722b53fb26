package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/guard"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// streamErrorMessage is sent in the error part after a failed model call.
const streamErrorMessage = "model request failed"

// HandlerConfig holds transport settings for the chat endpoints.
type HandlerConfig struct {
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	MaxRequestBodySize int64
	AllowedOrigin      string
	IsDev              bool
}

// Handler serves the chat endpoints.
type Handler struct {
	agent       Processor
	guard       guard.Evaluator
	rateLimiter *RateLimiter
	conns       *ConnManager
	log         ConversationLogger
	cfg         HandlerConfig
	logger      *slog.Logger
}

// NewHandler creates a chat handler. A nil conversation logger disables
// transcripts.
func NewHandler(agent Processor, ev guard.Evaluator, conversationLogger ConversationLogger, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		agent:       agent,
		guard:       ev,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		conns:       NewConnManager(),
		log:         conversationLogger,
		cfg:         cfg,
		logger:      logger.With("component", "chat"),
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
	r.Get("/api/chat/ws", h.HandleWebSocket)
}

// Conns returns the live websocket registry.
func (h *Handler) Conns() *ConnManager { return h.conns }

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
	h.conns.CloseAll()
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		metrics.Get().RateLimited.Inc()
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = userID
	req.SessionID = sessionID
	reqID := chiMiddleware.GetReqID(r.Context())

	h.logger.Info("chat request",
		"user_id", userID,
		"session_id", sessionID,
		"remote_ip", identity.IPFromRequest(r),
		"messages", len(req.Messages),
	)
	h.logUserMessage(req, "chat_http", reqID)

	decision := h.guard.EvaluateConversation(req.Messages)
	metrics.Get().GuardDecisions.WithLabelValues("conversation", string(decision.Kind)).Inc()
	if !decision.Allowed {
		h.logger.Info("chat rejected by guard", "user_id", userID, "session_id", sessionID, "kind", decision.Kind)
		writeJSON(w, http.StatusOK, RejectionResponse{Role: domain.RoleAssistant, Content: decision.Reason})
		return
	}

	var (
		out stream.Writer
		err error
	)
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		out, err = stream.NewSSE(w)
	} else {
		out, err = stream.NewDataStream(w)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	t := h.runTurn(r, req, out)
	h.logAssistantMessage(req.UserID, req.SessionID, "chat_http", t, reqID)
}

// turn summarizes a streamed assistant reply for the transcript.
type turn struct {
	content  strings.Builder
	chunks   int
	tools    []string
	drafts   int
	partial  bool
	errorMsg string

	// writeFailed means the client can no longer be written to.
	writeFailed bool
}

// runTurn drives one chat turn into out. Write failures end the turn
// early and are recorded as partial.
func (h *Handler) runTurn(r *http.Request, req ChatRequest, out stream.Writer) *turn {
	t := &turn{}
	for ev, err := range h.agent.Chat(r.Context(), req) {
		if err != nil {
			t.partial = true
			t.errorMsg = err.Error()
			if writeErr := out.Error(streamErrorMessage); writeErr != nil {
				h.logger.Warn("failed to write stream error", "error", writeErr)
				t.writeFailed = true
				return t
			}
			if writeErr := out.Finish(FinishError); writeErr != nil {
				h.logger.Warn("failed to write stream finish", "error", writeErr)
				t.writeFailed = true
			}
			return t
		}

		switch ev.Type {
		case EventText:
			t.chunks++
			t.content.WriteString(ev.Text)
		case EventToolCall:
			t.tools = append(t.tools, ev.ToolCall.Name)
		case EventDrafts:
			t.drafts += len(ev.Drafts)
		}

		if err := emit(out, ev); err != nil {
			h.logger.Warn("failed to write stream part", "type", ev.Type, "error", err)
			t.partial = true
			t.errorMsg = err.Error()
			t.writeFailed = true
			return t
		}
	}
	return t
}

// emit writes one event through a stream.Writer.
func emit(out stream.Writer, ev *Event) error {
	switch ev.Type {
	case EventText:
		return out.Text(ev.Text)
	case EventToolCall:
		return out.ToolCall(*ev.ToolCall)
	case EventToolResult:
		return out.ToolResult(ev.ToolCallID, ev.Result)
	case EventDrafts:
		return out.Drafts(ev.Drafts)
	case EventStepFinish:
		return out.StepFinish(ev.FinishReason, ev.Continued)
	case EventFinish:
		return out.Finish(ev.FinishReason)
	}
	return nil
}

func (h *Handler) logUserMessage(req ChatRequest, channel, reqID string) {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: last,
		Content:    cleanForReadability(last),
		Meta: map[string]any{
			"request_id": reqID,
			"messages":   len(req.Messages),
		},
	})
}

func (h *Handler) logAssistantMessage(userID, sessionID, channel string, t *turn, reqID string) {
	content := t.content.String()
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"stream_chunks": t.chunks,
			"tools_used":    t.tools,
			"drafts":        t.drafts,
			"partial":       t.partial,
			"stream_error":  t.errorMsg,
			"request_id":    reqID,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
