package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ashureev/mailsmith/internal/domain"
)

// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	name   string
	logger *slog.Logger
}

var _ Gateway = (*OpenAI)(nil)

// NewOpenAI creates a gateway for an OpenAI-compatible endpoint.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		name:   "openrouter",
		logger: logger.With("component", "gateway", "provider", "openrouter"),
	}
}

// Name implements Gateway.
func (g *OpenAI) Name() string { return g.name }

// Stream implements Gateway.
func (g *OpenAI) Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		creq := g.chatRequest(req)
		creq.Stream = true

		stream, err := g.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			yield(nil, fmt.Errorf("create chat stream: %w", err))
			return
		}
		defer stream.Close()

		acc := newToolCallAccumulator()
		finish := ""
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("receive chat stream: %w", err))
				return
			}

			for _, choice := range resp.Choices {
				for _, tc := range choice.Delta.ToolCalls {
					acc.add(tc)
				}
				if choice.FinishReason != "" {
					finish = string(choice.FinishReason)
				}
				if choice.Delta.Content != "" {
					if !yield(&Chunk{Text: choice.Delta.Content}, nil) {
						return
					}
				}
			}
		}

		calls := acc.calls()
		g.logger.Debug("chat stream finished", "model", g.model, "finish_reason", finish, "tool_calls", len(calls))
		yield(&Chunk{ToolCalls: calls, FinishReason: finish}, nil)
	}
}

// Complete implements Gateway.
func (g *OpenAI) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.chatRequest(req))
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAI) chatRequest(req *Request) openai.ChatCompletionRequest {
	creq := openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  toOpenAIMessages(req.System, req.Conversation()),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}
	for _, spec := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toJSONSchema(spec.Params),
			},
		})
	}
	return creq
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case domain.RoleSystem:
			msg.Role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
		case domain.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		default:
			msg.Role = openai.ChatMessageRoleUser
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toJSONSchema(params []Param) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition, len(params)),
	}
	for _, p := range params {
		var prop jsonschema.Definition
		switch p.Type {
		case TypeObject:
			prop = toJSONSchema(p.Properties)
		case TypeBoolean:
			prop = jsonschema.Definition{Type: jsonschema.Boolean}
		default:
			prop = jsonschema.Definition{Type: jsonschema.String}
		}
		prop.Description = p.Description
		def.Properties[p.Name] = prop
		if p.Required {
			def.Required = append(def.Required, p.Name)
		}
	}
	return def
}

// toolCallAccumulator joins streamed tool-call fragments. Fragments are keyed
// by their index; providers that omit the index continue the last call
// unless a new ID starts one.
type toolCallAccumulator struct {
	byIndex map[int]*ToolCall
	args    map[int]*strings.Builder
	last    int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		byIndex: make(map[int]*ToolCall),
		args:    make(map[int]*strings.Builder),
		last:    -1,
	}
}

func (a *toolCallAccumulator) add(delta openai.ToolCall) {
	idx := a.last
	switch {
	case delta.Index != nil:
		idx = *delta.Index
	case delta.ID != "" || idx < 0:
		idx = len(a.byIndex)
	}
	a.last = idx

	tc, ok := a.byIndex[idx]
	if !ok {
		tc = &ToolCall{}
		a.byIndex[idx] = tc
		a.args[idx] = &strings.Builder{}
	}
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Function.Name != "" {
		tc.Name = delta.Function.Name
	}
	a.args[idx].WriteString(delta.Function.Arguments)
}

func (a *toolCallAccumulator) calls() []ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := make([]ToolCall, 0, len(idxs))
	for _, i := range idxs {
		tc := *a.byIndex[i]
		tc.Arguments = a.args[i].String()
		if tc.Arguments == "" {
			tc.Arguments = "{}"
		}
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", i)
		}
		out = append(out, tc)
	}
	return out
}
