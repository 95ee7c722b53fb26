// Package gateway is the contract with the hosted text-generation model and
// its provider implementations (OpenAI-compatible endpoints such as
// OpenRouter, and Gemini).
package gateway

import (
	"context"
	"errors"
	"iter"

	"github.com/ashureev/mailsmith/internal/domain"
)

var (
	// ErrEmptyResponse is returned when the model finished without output.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrCircuitOpen is returned while the provider circuit breaker is open.
	ErrCircuitOpen = errors.New("model provider unavailable")
)

// Gateway forwards a prompt or conversation to a model.
type Gateway interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Stream yields chunks as the model produces them. The sequence ends
	// after the final chunk or the first error.
	Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error]
	// Complete returns the whole generated text.
	Complete(ctx context.Context, req *Request) (string, error)
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role       domain.Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a function call requested by the model. Arguments is a JSON
// object.
type ToolCall struct {
	ID        string `json:"toolCallId"`
	Name      string `json:"toolName"`
	Arguments string `json:"args"`
}

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Properties  []Param
}

// ToolSpec declares a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Request carries everything sent to the model for one call. When Prompt is
// set it is appended as a final user message.
type Request struct {
	System      string
	Messages    []Message
	Prompt      string
	Tools       []ToolSpec
	Temperature *float32
	MaxTokens   int
}

// Conversation returns Messages plus Prompt as a trailing user message.
func (r *Request) Conversation() []Message {
	if r.Prompt == "" {
		return r.Messages
	}
	out := make([]Message, 0, len(r.Messages)+1)
	out = append(out, r.Messages...)
	return append(out, Message{Role: domain.RoleUser, Content: r.Prompt})
}

// Chunk is one streamed increment. Tool calls are delivered whole, once
// their arguments are complete.
type Chunk struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// collect drains a stream into text, the shared Complete fallback.
func collect(seq iter.Seq2[*Chunk, error]) (string, error) {
	var text []byte
	for chunk, err := range seq {
		if err != nil {
			return "", err
		}
		text = append(text, chunk.Text...)
	}
	if len(text) == 0 {
		return "", ErrEmptyResponse
	}
	return string(text), nil
}
