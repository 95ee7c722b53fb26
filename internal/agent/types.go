// Package agent runs the email-drafting chat turn: guard, tool-calling model
// loop, draft extraction, and the HTTP and websocket transports for it.
package agent

import (
	"time"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages  []domain.Message `json:"messages"`
	UserID    string           `json:"-"`
	SessionID string           `json:"-"`
}

// RejectionResponse is returned with status 200 when the guard rejects a
// conversation, so the UI renders it as a normal assistant reply.
type RejectionResponse struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// EventType categorizes the parts of a chat turn.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDrafts     EventType = "draft"
	EventStepFinish EventType = "step_finish"
	EventFinish     EventType = "finish"
)

// Event is one part of a chat turn, in emission order.
type Event struct {
	Type         EventType           `json:"type"`
	Text         string              `json:"text,omitempty"`
	ToolCall     *gateway.ToolCall   `json:"toolCall,omitempty"`
	ToolCallID   string              `json:"toolCallId,omitempty"`
	Result       string              `json:"result,omitempty"`
	Drafts       []domain.EmailDraft `json:"drafts,omitempty"`
	FinishReason string              `json:"finishReason,omitempty"`
	Continued    bool                `json:"isContinued,omitempty"`
}

// Config holds chat turn settings.
type Config struct {
	MaxSteps        int
	MaxDuration     time.Duration
	Temperature     *float32
	MaxOutputTokens int
}

// DefaultConfig returns the chat defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:    5,
		MaxDuration: 30 * time.Second,
	}
}

// Finish reasons reported to clients.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
	FinishLength    = "length"
	FinishError     = "error"
)

// ChatApology replaces the assistant reply when the model call fails.
const ChatApology = "I apologize, but I encountered an error while processing your request. Please try again."
