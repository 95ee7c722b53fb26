// Package gatewaytest provides a scripted gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"iter"
	"sync"

	"github.com/ashureev/mailsmith/internal/gateway"
)

// Turn is the scripted result of one Stream call.
type Turn struct {
	Chunks []*gateway.Chunk
	Err    error
}

// Text returns a turn that streams text in one chunk and then finishes.
func Text(s string) Turn {
	return Turn{Chunks: []*gateway.Chunk{{Text: s}, {FinishReason: "stop"}}}
}

// Calls returns a turn that requests the given tool calls.
func Calls(calls ...gateway.ToolCall) Turn {
	return Turn{Chunks: []*gateway.Chunk{{ToolCalls: calls, FinishReason: "tool_calls"}}}
}

// Fake replays scripted turns. Stream calls past the script yield an
// empty finished turn.
type Fake struct {
	mu           sync.Mutex
	turns        []Turn
	completeText string
	completeErr  error
	streamReqs   []*gateway.Request
	completeReqs []*gateway.Request
}

var _ gateway.Gateway = (*Fake)(nil)

// New creates a fake with the given stream script.
func New(turns ...Turn) *Fake {
	return &Fake{turns: turns}
}

// WithComplete sets the result of Complete.
func (f *Fake) WithComplete(text string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeText, f.completeErr = text, err
	return f
}

// Name implements gateway.Gateway.
func (f *Fake) Name() string { return "fake" }

// Stream implements gateway.Gateway.
func (f *Fake) Stream(_ context.Context, req *gateway.Request) iter.Seq2[*gateway.Chunk, error] {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	turn := Turn{Chunks: []*gateway.Chunk{{FinishReason: "stop"}}}
	if len(f.turns) > 0 {
		turn, f.turns = f.turns[0], f.turns[1:]
	}
	f.mu.Unlock()

	return func(yield func(*gateway.Chunk, error) bool) {
		for _, c := range turn.Chunks {
			if !yield(c, nil) {
				return
			}
		}
		if turn.Err != nil {
			yield(nil, turn.Err)
		}
	}
}

// Complete implements gateway.Gateway.
func (f *Fake) Complete(_ context.Context, req *gateway.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeReqs = append(f.completeReqs, req)
	return f.completeText, f.completeErr
}

// StreamRequests returns the requests passed to Stream.
func (f *Fake) StreamRequests() []*gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*gateway.Request(nil), f.streamReqs...)
}

// CompleteRequests returns the requests passed to Complete.
func (f *Fake) CompleteRequests() []*gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*gateway.Request(nil), f.completeReqs...)
}
