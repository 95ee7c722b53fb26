package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
)

func writeTurn(t *testing.T, w Writer) {
	t.Helper()
	require.NoError(t, w.Text("Hello \"there\"\n"))
	require.NoError(t, w.ToolCall(gateway.ToolCall{ID: "c1", Name: "generateEmail", Arguments: `{"purpose":"apology"}`}))
	require.NoError(t, w.ToolResult("c1", "done"))
	require.NoError(t, w.StepFinish("tool-calls", true))
	require.NoError(t, w.Drafts([]domain.EmailDraft{{ID: "d1", Subject: "Hi", CreatedAt: time.Unix(0, 0).UTC()}}))
	require.NoError(t, w.Error("boom"))
	require.NoError(t, w.Finish("stop"))
}

func TestDataStream(t *testing.T) {
	rec := httptest.NewRecorder()
	ds, err := NewDataStream(rec)
	require.NoError(t, err)

	writeTurn(t, ds)

	assert.Equal(t, "v1", rec.Header().Get(DataStreamHeader))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, `0:"Hello \"there\"\n"`, lines[0])
	assert.Equal(t, `9:{"args":{"purpose":"apology"},"toolCallId":"c1","toolName":"generateEmail"}`, lines[1])
	assert.Equal(t, `a:{"result":"done","toolCallId":"c1"}`, lines[2])
	assert.Equal(t, `e:{"finishReason":"tool-calls","isContinued":true,"usage":{"promptTokens":0,"completionTokens":0}}`, lines[3])
	assert.True(t, strings.HasPrefix(lines[4], `2:[{"drafts":[{"id":"d1","subject":"Hi"`))
	assert.Equal(t, `3:"boom"`, lines[5])
	assert.Equal(t, `d:{"finishReason":"stop","usage":{"promptTokens":0,"completionTokens":0}}`, lines[6])
}

func TestDataStreamInvalidToolArgs(t *testing.T) {
	rec := httptest.NewRecorder()
	ds, err := NewDataStream(rec)
	require.NoError(t, err)

	require.NoError(t, ds.ToolCall(gateway.ToolCall{ID: "c1", Name: "x", Arguments: `{"broken`}))
	assert.Equal(t, "9:{\"args\":{},\"toolCallId\":\"c1\",\"toolName\":\"x\"}\n", rec.Body.String())
}

func TestSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	require.NoError(t, err)

	writeTurn(t, s)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: text\ndata: {\"text\":\"Hello \\\"there\\\"\\n\"}\n\n")
	assert.Contains(t, body, "event: tool_call\ndata: ")
	assert.Contains(t, body, "event: draft\ndata: ")
	assert.Contains(t, body, "event: error\ndata: {\"error\":\"boom\"}\n\n")
	assert.True(t, strings.HasSuffix(body, "event: finish\ndata: {\"finishReason\":\"stop\"}\n\n"))
}

type noFlush struct{ http.ResponseWriter }

func TestStreamingUnsupported(t *testing.T) {
	_, err := NewDataStream(noFlush{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
	_, err = NewSSE(noFlush{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
