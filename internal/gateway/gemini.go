package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/mailsmith/internal/domain"
)

// Gemini talks to the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ Gateway = (*Gemini)(nil)

// NewGemini creates a Gemini gateway.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: logger.With("component", "gateway", "provider", "gemini"),
	}, nil
}

// Name implements Gateway.
func (g *Gemini) Name() string { return "gemini" }

// Stream implements Gateway.
func (g *Gemini) Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		var calls []ToolCall
		finish := ""
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, toGeminiContents(req.Conversation()), g.config(req)) {
			if err != nil {
				yield(nil, fmt.Errorf("gemini stream: %w", err))
				return
			}
			text, fc, reason := readGeminiResponse(resp, len(calls))
			calls = append(calls, fc...)
			if reason != "" {
				finish = reason
			}
			if text != "" {
				if !yield(&Chunk{Text: text}, nil) {
					return
				}
			}
		}
		g.logger.Debug("gemini stream finished", "model", g.model, "finish_reason", finish, "tool_calls", len(calls))
		yield(&Chunk{ToolCalls: calls, FinishReason: finish}, nil)
	}
}

// Complete implements Gateway.
func (g *Gemini) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(req.Conversation()), g.config(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text, _, _ := readGeminiResponse(resp, 0)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) config(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toGeminiSchema(spec.Params),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func readGeminiResponse(resp *genai.GenerateContentResponse, callOffset int) (string, []ToolCall, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil, ""
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	var calls []ToolCall
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
			if fc := part.FunctionCall; fc != nil {
				args, err := json.Marshal(fc.Args)
				if err != nil || fc.Args == nil {
					args = []byte("{}")
				}
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", callOffset+len(calls))
				}
				calls = append(calls, ToolCall{ID: id, Name: fc.Name, Arguments: string(args)})
			}
		}
	}
	return text.String(), calls, string(cand.FinishReason)
}

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(c.Parts) > 0 {
				out = append(out, c)
			}
		case domain.RoleTool:
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.Name,
					Response: map[string]any{"result": m.Content},
				}}},
			})
		default:
			// System messages inside the history are folded into user turns.
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return out
}

func toGeminiSchema(params []Param) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for _, p := range params {
		var prop *genai.Schema
		switch p.Type {
		case TypeObject:
			prop = toGeminiSchema(p.Properties)
		case TypeBoolean:
			prop = &genai.Schema{Type: genai.TypeBoolean}
		default:
			prop = &genai.Schema{Type: genai.TypeString}
		}
		prop.Description = p.Description
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}
