package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/gateway/gatewaytest"
	"github.com/ashureev/mailsmith/internal/prompt"
	"github.com/ashureev/mailsmith/internal/session"
	"github.com/ashureev/mailsmith/internal/slots"
)

const generatedEmail = "Subject: Meeting follow-up\n\nDear Sam,\n\nThanks for the call today.\n\nBest regards,\nAlex"

func collectEvents(t *testing.T, svc *Service, req ChatRequest) ([]*Event, error) {
	t.Helper()
	var events []*Event
	for ev, err := range svc.Chat(context.Background(), req) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func eventTypes(events []*Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func userRequest(content string) ChatRequest {
	return ChatRequest{
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: content}},
		UserID:    "user-1",
		SessionID: "sess-1",
	}
}

func TestChatPlainReplyExtractsDrafts(t *testing.T) {
	t.Parallel()

	reply := "Here is your email:\n\n```email\n" + generatedEmail + "\n```\n\nLet me know if you need changes."
	fake := gatewaytest.New(gatewaytest.Text(reply))
	arena := session.NewArena()
	svc := NewService(fake, arena, DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email to Sam"))
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventText, EventDrafts, EventFinish}, eventTypes(events))
	assert.Equal(t, FinishStop, events[2].FinishReason)

	require.Len(t, events[1].Drafts, 1)
	assert.Equal(t, "Meeting follow-up", events[1].Drafts[0].Subject)

	sess, err := arena.Get("user-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, sess.Drafts(), 1)

	reqs := fake.StreamRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, prompt.SystemInstruction, reqs[0].System)
	assert.Len(t, reqs[0].Tools, 2)
}

func TestChatRepeatedReplyDoesNotDuplicateDrafts(t *testing.T) {
	t.Parallel()

	reply := "```email\n" + generatedEmail + "\n```"
	fake := gatewaytest.New(gatewaytest.Text(reply), gatewaytest.Text(reply))
	arena := session.NewArena()
	svc := NewService(fake, arena, DefaultConfig(), nil)

	_, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventText, EventFinish}, eventTypes(events))

	sess, err := arena.Get("user-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, sess.Drafts(), 1)
}

func TestChatToolLoopGeneratesEmail(t *testing.T) {
	t.Parallel()

	track := gateway.ToolCall{
		ID:        "call-1",
		Name:      ToolTrackContext,
		Arguments: `{"gatheredInfo":{"purpose":"follow-up","context":"call with Sam","tone":"friendly"},"readyToGenerate":true}`,
	}
	generate := gateway.ToolCall{
		ID:        "call-2",
		Name:      ToolGenerateEmail,
		Arguments: `{"purpose":"follow-up","context":"call with Sam","tone":"friendly","recipient":"Sam"}`,
	}
	fake := gatewaytest.New(
		gatewaytest.Calls(track),
		gatewaytest.Calls(generate),
		gatewaytest.Text("Your email is ready."),
	).WithComplete(generatedEmail, nil)
	arena := session.NewArena()
	svc := NewService(fake, arena, DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("help me write an email"))
	require.NoError(t, err)
	assert.Equal(t, []EventType{
		EventToolCall, EventToolResult, EventStepFinish,
		EventToolCall, EventToolResult, EventStepFinish,
		EventText, EventDrafts, EventFinish,
	}, eventTypes(events))

	assert.Equal(t, readyResult, events[1].Result)
	assert.Equal(t, prompt.WrapEmail(generatedEmail), events[4].Result)
	assert.True(t, events[2].Continued)
	require.Len(t, events[7].Drafts, 1)
	assert.Equal(t, "Meeting follow-up", events[7].Drafts[0].Subject)
	assert.Equal(t, FinishStop, events[8].FinishReason)

	completes := fake.CompleteRequests()
	require.Len(t, completes, 1)
	require.NotNil(t, completes[0].Temperature)
	assert.InDelta(t, 0.7, *completes[0].Temperature, 0.001)
	assert.Equal(t, 1000, completes[0].MaxTokens)
	assert.Contains(t, completes[0].Prompt, "to Sam")
	assert.Empty(t, completes[0].System)

	// The tool result is fed back to the model on the next step.
	streams := fake.StreamRequests()
	require.Len(t, streams, 3)
	last := streams[2].Messages
	require.NotEmpty(t, last)
	assert.Equal(t, domain.RoleTool, last[len(last)-1].Role)
	assert.Equal(t, "call-2", last[len(last)-1].ToolCallID)

	sess, err := arena.Get("user-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, slots.StateGenerated, sess.Slots().State)
}

func TestChatGenerateEmailBlockedUntilReady(t *testing.T) {
	t.Parallel()

	generate := gateway.ToolCall{
		ID:        "call-1",
		Name:      ToolGenerateEmail,
		Arguments: `{"purpose":"follow-up","context":"call with Sam"}`,
	}
	fake := gatewaytest.New(gatewaytest.Calls(generate), gatewaytest.Text("What tone would you like?"))
	svc := NewService(fake, session.NewArena(), DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, "Missing required information: tone.", events[1].Result)
	assert.Empty(t, fake.CompleteRequests())
}

func TestChatGenerateEmailFailureApologizes(t *testing.T) {
	t.Parallel()

	generate := gateway.ToolCall{
		ID:        "call-1",
		Name:      ToolGenerateEmail,
		Arguments: `{"purpose":"follow-up","context":"call with Sam","tone":"formal"}`,
	}
	fake := gatewaytest.New(gatewaytest.Calls(generate), gatewaytest.Text("Sorry about that.")).
		WithComplete("", errors.New("upstream down"))
	arena := session.NewArena()
	svc := NewService(fake, arena, DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	assert.Equal(t, prompt.GenerationApology, events[1].Result)

	sess, err := arena.Get("user-1", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Drafts())
	assert.Equal(t, slots.StateReady, sess.Slots().State)
}

func TestChatTrackContextAsksNextQuestion(t *testing.T) {
	t.Parallel()

	track := gateway.ToolCall{
		ID:        "call-1",
		Name:      ToolTrackContext,
		Arguments: `{"gatheredInfo":{"purpose":"follow-up"},"readyToGenerate":false}`,
	}
	fake := gatewaytest.New(gatewaytest.Calls(track), gatewaytest.Text("What should the email cover?"))
	svc := NewService(fake, session.NewArena(), DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	assert.Equal(t, nextQuestionPrefix+"What background should the email cover?", events[1].Result)
}

func TestChatUnknownToolAndBadArgs(t *testing.T) {
	t.Parallel()

	fake := gatewaytest.New(
		gatewaytest.Calls(
			gateway.ToolCall{ID: "a", Name: "sendEmail", Arguments: `{}`},
			gateway.ToolCall{ID: "b", Name: ToolGenerateEmail, Arguments: `not json`},
		),
		gatewaytest.Text("ok"),
	)
	svc := NewService(fake, session.NewArena(), DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	assert.Equal(t, unknownToolResult, events[1].Result)
	assert.Equal(t, invalidArgsResult, events[3].Result)
}

func TestChatStopsAtMaxSteps(t *testing.T) {
	t.Parallel()

	call := gateway.ToolCall{ID: "c", Name: ToolTrackContext, Arguments: `{"gatheredInfo":{},"readyToGenerate":false}`}
	fake := gatewaytest.New(gatewaytest.Calls(call), gatewaytest.Calls(call), gatewaytest.Calls(call))
	cfg := DefaultConfig()
	cfg.MaxSteps = 2
	svc := NewService(fake, session.NewArena(), cfg, nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.NoError(t, err)
	assert.Len(t, fake.StreamRequests(), 2)

	last := events[len(events)-1]
	assert.Equal(t, EventFinish, last.Type)
	assert.Equal(t, FinishToolCalls, last.FinishReason)
	assert.False(t, events[len(events)-2].Continued)
}

func TestChatGatewayErrorYieldsApologyThenError(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider unavailable")
	fake := gatewaytest.New(gatewaytest.Turn{Err: boom})
	svc := NewService(fake, session.NewArena(), DefaultConfig(), nil)

	events, err := collectEvents(t, svc, userRequest("write an email"))
	require.ErrorIs(t, err, boom)
	require.Len(t, events, 1)
	assert.Equal(t, ChatApology, events[0].Text)
}

func TestToGatewayMessages(t *testing.T) {
	t.Parallel()

	msgs := []domain.Message{
		{Role: domain.RoleUser, Content: "write an email"},
		{
			Role: domain.RoleAssistant,
			ToolInvocations: []domain.ToolInvocation{
				{ToolCallID: "c1", ToolName: ToolTrackContext, Args: []byte(`{"readyToGenerate":false}`), Result: "Next question to ask: tone?"},
				{ToolCallID: "c2", ToolName: ToolGenerateEmail},
			},
		},
		{Role: domain.RoleAssistant, Content: ""},
		{Role: domain.RoleTool, Content: "orphan"},
		{Role: domain.RoleUser, Content: "formal"},
	}

	got := toGatewayMessages(msgs)
	require.Len(t, got, 4)
	assert.Equal(t, domain.RoleUser, got[0].Role)
	assert.Equal(t, domain.RoleAssistant, got[1].Role)
	require.Len(t, got[1].ToolCalls, 1)
	assert.Equal(t, "c1", got[1].ToolCalls[0].ID)
	assert.Equal(t, domain.RoleTool, got[2].Role)
	assert.Equal(t, "c1", got[2].ToolCallID)
	assert.Equal(t, "formal", got[3].Content)
}

func TestNormalizeFinishReason(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           FinishStop,
		"STOP":       FinishStop,
		"tool_calls": FinishToolCalls,
		"MAX_TOKENS": FinishLength,
		"SAFETY":     "safety",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeFinishReason(in), in)
	}
}
