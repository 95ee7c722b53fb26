package agent

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/stream"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const wsWriteTimeout = 10 * time.Second

// Websocket frame types.
const (
	frameChat       = "chat"
	framePing       = "ping"
	framePong       = "pong"
	frameText       = "text"
	frameToolCall   = "tool_call"
	frameToolResult = "tool_result"
	frameDraft      = "draft"
	frameFinish     = "finish"
	frameRejected   = "rejected"
	frameError      = "error"
)

// wsClientFrame is a message from the browser.
type wsClientFrame struct {
	Type     string           `json:"type"`
	Messages []domain.Message `json:"messages,omitempty"`
}

// wsFrame is a message to the browser.
type wsFrame struct {
	Type         string              `json:"type"`
	Text         string              `json:"text,omitempty"`
	Content      string              `json:"content,omitempty"`
	ToolCall     *gateway.ToolCall   `json:"toolCall,omitempty"`
	ToolCallID   string              `json:"toolCallId,omitempty"`
	Result       string              `json:"result,omitempty"`
	Drafts       []domain.EmailDraft `json:"drafts,omitempty"`
	FinishReason string              `json:"finishReason,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// wsWriter frames a chat turn as websocket messages. Step boundaries are
// not sent.
type wsWriter struct {
	ctx  context.Context
	conn *websocket.Conn
}

var _ stream.Writer = (*wsWriter)(nil)

func (w *wsWriter) send(f wsFrame) error {
	ctx, cancel := context.WithTimeout(w.ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, w.conn, f)
}

func (w *wsWriter) Text(text string) error {
	return w.send(wsFrame{Type: frameText, Text: text})
}

func (w *wsWriter) ToolCall(call gateway.ToolCall) error {
	return w.send(wsFrame{Type: frameToolCall, ToolCall: &call})
}

func (w *wsWriter) ToolResult(callID, result string) error {
	return w.send(wsFrame{Type: frameToolResult, ToolCallID: callID, Result: result})
}

func (w *wsWriter) Drafts(drafts []domain.EmailDraft) error {
	return w.send(wsFrame{Type: frameDraft, Drafts: drafts})
}

func (w *wsWriter) Error(msg string) error {
	return w.send(wsFrame{Type: frameError, Error: msg})
}

func (w *wsWriter) StepFinish(string, bool) error { return nil }

func (w *wsWriter) Finish(reason string) error {
	return w.send(wsFrame{Type: frameFinish, FinishReason: reason})
}

// HandleWebSocket handles GET /api/chat/ws. Each chat frame runs one turn;
// turns on a connection are sequential.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		writeJSONError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(h.cfg.MaxRequestBodySize)

	h.conns.Register(userID, sessionID, ws)
	defer h.conns.Unregister(userID, sessionID, ws)

	ctx := r.Context()
	reqID := chiMiddleware.GetReqID(ctx)
	out := &wsWriter{ctx: ctx, conn: ws}

	for {
		var frame wsClientFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "user_id", userID)
			} else {
				h.logger.Warn("websocket read error", "error", err, "user_id", userID)
			}
			return
		}

		switch frame.Type {
		case framePing:
			if err := out.send(wsFrame{Type: framePong}); err != nil {
				h.logger.Debug("failed to send pong", "error", err)
				return
			}
		case frameChat:
			if !h.handleWSChat(r, out, frame, userID, sessionID, reqID) {
				return
			}
		default:
			if err := out.Error("unknown frame type"); err != nil {
				return
			}
		}
	}
}

// handleWSChat runs one chat frame. It returns false when the connection
// should be dropped.
func (h *Handler) handleWSChat(r *http.Request, out *wsWriter, frame wsClientFrame, userID, sessionID, reqID string) bool {
	if !h.rateLimiter.Allow(userID) {
		metrics.Get().RateLimited.Inc()
		return out.Error("rate limit exceeded") == nil
	}

	req := ChatRequest{Messages: frame.Messages, UserID: userID, SessionID: sessionID}
	h.logUserMessage(req, "chat_ws", reqID)

	decision := h.guard.EvaluateConversation(req.Messages)
	metrics.Get().GuardDecisions.WithLabelValues("conversation", string(decision.Kind)).Inc()
	if !decision.Allowed {
		return out.send(wsFrame{Type: frameRejected, Content: decision.Reason}) == nil
	}

	t := h.runTurn(r, req, out)
	h.logAssistantMessage(userID, sessionID, "chat_ws", t, reqID)
	return !t.writeFailed
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}
