// Package stream frames a chat turn for the wire: the AI SDK data stream
// protocol used by the web UI and plain Server-Sent Events.
package stream

import (
	"errors"
	"net/http"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer receives the parts of one assistant turn in order. Every call is
// flushed to the client before it returns.
type Writer interface {
	Text(text string) error
	ToolCall(call gateway.ToolCall) error
	ToolResult(callID, result string) error
	Drafts(drafts []domain.EmailDraft) error
	Error(msg string) error
	StepFinish(reason string, continued bool) error
	Finish(reason string) error
}

// Usage is reported in finish parts. Token counts are not tracked.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

func flusherFor(w http.ResponseWriter) (http.Flusher, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return f, nil
}
