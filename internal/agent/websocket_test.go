package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway/gatewaytest"
	"github.com/ashureev/mailsmith/internal/guard"
	"github.com/ashureev/mailsmith/internal/identity"
)

func dialChat(t *testing.T, h *Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleWebSocket(w, r.WithContext(identity.WithIdentity(r.Context(), "user-1", "sess-1")))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string) []wsFrame {
	t.Helper()
	var frames []wsFrame
	for {
		var f wsFrame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
		if f.Type == frameType {
			return frames
		}
	}
}

func TestWebSocketChatTurn(t *testing.T) {
	reply := "```email\n" + generatedEmail + "\n```"
	h, _ := newTestHandler(t, gatewaytest.New(gatewaytest.Text(reply)), HandlerConfig{})
	conn, ctx := dialChat(t, h)

	require.NoError(t, wsjson.Write(ctx, conn, wsClientFrame{
		Type:     frameChat,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "write an email to Sam"}},
	}))

	frames := readUntil(t, ctx, conn, frameFinish)
	require.Len(t, frames, 3)
	assert.Equal(t, frameText, frames[0].Type)
	assert.Equal(t, frameDraft, frames[1].Type)
	require.Len(t, frames[1].Drafts, 1)
	assert.Equal(t, "Meeting follow-up", frames[1].Drafts[0].Subject)
	assert.Equal(t, FinishStop, frames[2].FinishReason)
	assert.NotNil(t, h.Conns().Get("user-1", "sess-1"))
}

func TestWebSocketPingAndRejection(t *testing.T) {
	h, _ := newTestHandler(t, gatewaytest.New(), HandlerConfig{})
	conn, ctx := dialChat(t, h)

	require.NoError(t, wsjson.Write(ctx, conn, wsClientFrame{Type: framePing}))
	frames := readUntil(t, ctx, conn, framePong)
	assert.Len(t, frames, 1)

	require.NoError(t, wsjson.Write(ctx, conn, wsClientFrame{
		Type:     frameChat,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "write me a poem"}},
	}))
	frames = readUntil(t, ctx, conn, frameRejected)
	require.Len(t, frames, 1)
	assert.Equal(t, guard.OffDomainReply, frames[0].Content)

	require.NoError(t, wsjson.Write(ctx, conn, wsClientFrame{Type: frameChat}))
	frames = readUntil(t, ctx, conn, frameRejected)
	require.Len(t, frames, 1)
	assert.Equal(t, guard.OffDomainReply, frames[0].Content)
}

func TestWebSocketOriginCheck(t *testing.T) {
	h, _ := newTestHandler(t, gatewaytest.New(), HandlerConfig{AllowedOrigin: "https://mail.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req = req.WithContext(identity.WithIdentity(req.Context(), "user-1", "sess-1"))
	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.True(t, h.checkOrigin(httptest.NewRequest(http.MethodGet, "/", nil)))
	h.cfg.IsDev = true
	assert.True(t, h.checkOrigin(req))
}
