package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
)

// Data stream part type prefixes.
const (
	partText       = '0'
	partData       = '2'
	partError      = '3'
	partToolCall   = '9'
	partToolResult = 'a'
	partStepFinish = 'e'
	partFinish     = 'd'
)

// DataStreamHeader marks a response as an AI SDK data stream.
const DataStreamHeader = "X-Vercel-AI-Data-Stream"

// DataStream writes AI SDK data stream parts, one "<type>:<json>\n" line each.
type DataStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ Writer = (*DataStream)(nil)

// NewDataStream sets the data stream headers on w.
func NewDataStream(w http.ResponseWriter) (*DataStream, error) {
	f, err := flusherFor(w)
	if err != nil {
		return nil, err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(DataStreamHeader, "v1")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &DataStream{w: w, flusher: f}, nil
}

func (d *DataStream) part(kind byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stream part %c: %w", kind, err)
	}
	if _, err := fmt.Fprintf(d.w, "%c:%s\n", kind, data); err != nil {
		return err
	}
	d.flusher.Flush()
	return nil
}

// Text implements Writer.
func (d *DataStream) Text(text string) error {
	return d.part(partText, text)
}

// ToolCall implements Writer.
func (d *DataStream) ToolCall(call gateway.ToolCall) error {
	return d.part(partToolCall, toolCallPart(call))
}

// ToolResult implements Writer.
func (d *DataStream) ToolResult(callID, result string) error {
	return d.part(partToolResult, map[string]any{"toolCallId": callID, "result": result})
}

// Drafts implements Writer.
func (d *DataStream) Drafts(drafts []domain.EmailDraft) error {
	return d.part(partData, []any{map[string]any{"type": "drafts", "drafts": drafts}})
}

// Error implements Writer.
func (d *DataStream) Error(msg string) error {
	return d.part(partError, msg)
}

// StepFinish implements Writer.
func (d *DataStream) StepFinish(reason string, continued bool) error {
	return d.part(partStepFinish, map[string]any{
		"finishReason": reason,
		"usage":        Usage{},
		"isContinued":  continued,
	})
}

// Finish implements Writer.
func (d *DataStream) Finish(reason string) error {
	return d.part(partFinish, map[string]any{
		"finishReason": reason,
		"usage":        Usage{},
	})
}

// toolCallPart renders args as a JSON object rather than a string.
func toolCallPart(call gateway.ToolCall) map[string]any {
	args := json.RawMessage(call.Arguments)
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}
	return map[string]any{
		"toolCallId": call.ID,
		"toolName":   call.Name,
		"args":       args,
	}
}
