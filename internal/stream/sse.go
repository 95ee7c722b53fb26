package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
)

// SSE writes each part as a named Server-Sent Event.
type SSE struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ Writer = (*SSE)(nil)

// NewSSE sets the event-stream headers on w.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	f, err := flusherFor(w)
	if err != nil {
		return nil, err
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSE{w: w, flusher: f}, nil
}

func (s *SSE) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if err := WriteSSE(s.w, name, string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Text implements Writer.
func (s *SSE) Text(text string) error {
	return s.event("text", map[string]string{"text": text})
}

// ToolCall implements Writer.
func (s *SSE) ToolCall(call gateway.ToolCall) error {
	return s.event("tool_call", toolCallPart(call))
}

// ToolResult implements Writer.
func (s *SSE) ToolResult(callID, result string) error {
	return s.event("tool_result", map[string]string{"toolCallId": callID, "result": result})
}

// Drafts implements Writer.
func (s *SSE) Drafts(drafts []domain.EmailDraft) error {
	return s.event("draft", map[string]any{"drafts": drafts})
}

// Error implements Writer.
func (s *SSE) Error(msg string) error {
	return s.event("error", map[string]string{"error": msg})
}

// StepFinish implements Writer.
func (s *SSE) StepFinish(reason string, continued bool) error {
	return s.event("step_finish", map[string]any{"finishReason": reason, "isContinued": continued})
}

// Finish implements Writer.
func (s *SSE) Finish(reason string) error {
	return s.event("finish", map[string]string{"finishReason": reason})
}

// WriteSSE writes one event frame.
func WriteSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
