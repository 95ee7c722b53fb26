package agent

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strings"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/extract"
	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/prompt"
	"github.com/ashureev/mailsmith/internal/session"
)

// Processor runs one chat turn.
type Processor interface {
	Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Event, error]
}

// Service runs the chat turn against a model gateway and records drafts in
// the caller's session.
type Service struct {
	gw        gateway.Gateway
	arena     *session.Arena
	extractor *extract.Extractor
	cfg       Config
	logger    *slog.Logger
}

var _ Processor = (*Service)(nil)

// NewService creates a chat service.
func NewService(gw gateway.Gateway, arena *session.Arena, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	return &Service{
		gw:        gw,
		arena:     arena,
		extractor: extract.New(),
		cfg:       cfg,
		logger:    logger.With("component", "agent"),
	}
}

// Chat streams one assistant turn. The model may call tools up to MaxSteps
// times; each tool call and result is yielded as it happens. After the last
// step the assistant text is scanned for email drafts and new ones are
// yielded before the finish event.
//
// A gateway failure yields an apology text followed by the error, after
// which the sequence ends.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		if s.cfg.MaxDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
			defer cancel()
		}

		sess := s.arena.Open(req.UserID, req.SessionID)
		logger := s.logger.With("user_id", req.UserID, "session_id", req.SessionID)
		runner := &toolRunner{gw: s.gw, sess: sess, logger: logger}

		conv := toGatewayMessages(req.Messages)
		var reply strings.Builder
		var toolEmails []string
		finish := FinishStop

		for step := 0; step < s.cfg.MaxSteps; step++ {
			var stepText strings.Builder
			var calls []gateway.ToolCall
			reason := ""

			for chunk, err := range s.gw.Stream(ctx, &gateway.Request{
				System:      prompt.SystemInstruction,
				Messages:    conv,
				Tools:       Tools(),
				Temperature: s.cfg.Temperature,
				MaxTokens:   s.cfg.MaxOutputTokens,
			}) {
				if err != nil {
					logger.Error("chat step failed", "step", step, "error", err)
					if yield(&Event{Type: EventText, Text: ChatApology}, nil) {
						yield(nil, err)
					}
					return
				}
				if chunk.Text != "" {
					stepText.WriteString(chunk.Text)
					if !yield(&Event{Type: EventText, Text: chunk.Text}, nil) {
						return
					}
				}
				calls = append(calls, chunk.ToolCalls...)
				if chunk.FinishReason != "" {
					reason = chunk.FinishReason
				}
			}
			reply.WriteString(stepText.String())

			if len(calls) == 0 {
				finish = normalizeFinishReason(reason)
				break
			}

			conv = append(conv, gateway.Message{
				Role:      domain.RoleAssistant,
				Content:   stepText.String(),
				ToolCalls: calls,
			})
			for _, call := range calls {
				if !yield(&Event{Type: EventToolCall, ToolCall: &call}, nil) {
					return
				}
				out := runner.run(ctx, call)
				if out.Email != "" {
					toolEmails = append(toolEmails, out.Result)
				}
				conv = append(conv, gateway.Message{
					Role:       domain.RoleTool,
					Content:    out.Result,
					ToolCallID: call.ID,
					Name:       call.Name,
				})
				if !yield(&Event{Type: EventToolResult, ToolCallID: call.ID, Result: out.Result}, nil) {
					return
				}
			}

			finish = FinishToolCalls
			continued := step+1 < s.cfg.MaxSteps
			if !yield(&Event{Type: EventStepFinish, FinishReason: FinishToolCalls, Continued: continued}, nil) {
				return
			}
		}

		drafts := s.extractor.Extract(reply.String())
		for _, text := range toolEmails {
			drafts = append(drafts, s.extractor.Extract(text)...)
		}
		if added := sess.AddDrafts(drafts...); len(added) > 0 {
			logger.Info("drafts extracted", "count", len(added))
			if !yield(&Event{Type: EventDrafts, Drafts: added}, nil) {
				return
			}
		}
		yield(&Event{Type: EventFinish, FinishReason: finish}, nil)
	}
}

// toGatewayMessages converts client messages to model messages. Tool
// invocations without a result are dropped since providers reject a call
// that is never answered.
func toGatewayMessages(messages []domain.Message) []gateway.Message {
	out := make([]gateway.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser, domain.RoleSystem:
			out = append(out, gateway.Message{Role: m.Role, Content: m.Content})
		case domain.RoleAssistant:
			var calls []gateway.ToolCall
			var results []gateway.Message
			for _, inv := range m.ToolInvocations {
				if inv.Result == "" {
					continue
				}
				args := string(inv.Args)
				if args == "" || !json.Valid(inv.Args) {
					args = "{}"
				}
				calls = append(calls, gateway.ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Arguments: args})
				results = append(results, gateway.Message{
					Role:       domain.RoleTool,
					Content:    inv.Result,
					ToolCallID: inv.ToolCallID,
					Name:       inv.ToolName,
				})
			}
			if m.Content == "" && len(calls) == 0 {
				continue
			}
			out = append(out, gateway.Message{Role: domain.RoleAssistant, Content: m.Content, ToolCalls: calls})
			out = append(out, results...)
		}
	}
	return out
}

func normalizeFinishReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop", "end_turn":
		return FinishStop
	case "tool_calls", "tool-calls", "function_call":
		return FinishToolCalls
	case "length", "max_tokens":
		return FinishLength
	default:
		return strings.ToLower(reason)
	}
}
