package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/prompt"
	"github.com/ashureev/mailsmith/internal/session"
	"github.com/ashureev/mailsmith/internal/slots"
)

// Tool names exposed to the model.
const (
	ToolGenerateEmail = "generateEmail"
	ToolTrackContext  = "trackConversationContext"
)

// Tool result texts.
const (
	readyResult        = "Ready to generate email with gathered information."
	nextQuestionPrefix = "Next question to ask: "
	invalidArgsResult  = "Invalid arguments for tool call."
	unknownToolResult  = "Unknown tool."
)

// Generation settings for generateEmail.
const (
	generateTemperature = 0.7
	generateMaxTokens   = 1000
)

// Tools returns the tool declarations sent with every chat step.
func Tools() []gateway.ToolSpec {
	return []gateway.ToolSpec{
		{
			Name:        ToolGenerateEmail,
			Description: "Generate a professional email once purpose, context and tone are known.",
			Params: []gateway.Param{
				{Name: "context", Type: gateway.TypeString, Description: "Background information for the email", Required: true},
				{Name: "purpose", Type: gateway.TypeString, Description: "Main purpose of the email", Required: true},
				{Name: "tone", Type: gateway.TypeString, Description: "Desired tone, for example formal or friendly", Required: true},
				{Name: "recipient", Type: gateway.TypeString, Description: "Who the email is addressed to"},
				{Name: "additionalRequirements", Type: gateway.TypeString, Description: "Any other requirements"},
			},
		},
		{
			Name:        ToolTrackContext,
			Description: "Record what has been learned about the email so far and what to ask next.",
			Params: []gateway.Param{
				{
					Name:        "gatheredInfo",
					Type:        gateway.TypeObject,
					Description: "Information gathered so far",
					Required:    true,
					Properties: []gateway.Param{
						{Name: slots.SlotPurpose, Type: gateway.TypeString},
						{Name: slots.SlotRecipient, Type: gateway.TypeString},
						{Name: slots.SlotTone, Type: gateway.TypeString},
						{Name: slots.SlotContext, Type: gateway.TypeString},
						{Name: slots.SlotIndustry, Type: gateway.TypeString},
						{Name: slots.SlotDeadline, Type: gateway.TypeString},
						{Name: slots.SlotSpecificRequirements, Type: gateway.TypeString},
					},
				},
				{Name: "nextQuestionNeeded", Type: gateway.TypeString, Description: "The next question to ask the user"},
				{Name: "readyToGenerate", Type: gateway.TypeBoolean, Description: "Whether enough information is gathered", Required: true},
			},
		},
	}
}

type generateEmailArgs struct {
	Context                string `json:"context"`
	Purpose                string `json:"purpose"`
	Tone                   string `json:"tone"`
	Recipient              string `json:"recipient"`
	AdditionalRequirements string `json:"additionalRequirements"`
}

type trackContextArgs struct {
	GatheredInfo       slots.Record `json:"gatheredInfo"`
	NextQuestionNeeded string       `json:"nextQuestionNeeded"`
	ReadyToGenerate    bool         `json:"readyToGenerate"`
}

// toolRunner executes tool calls against one session.
type toolRunner struct {
	gw     gateway.Gateway
	sess   *session.Session
	logger *slog.Logger
}

// toolOutput is the result of one call. Email is set when generateEmail
// produced a draft.
type toolOutput struct {
	Result string
	Email  string
}

func (r *toolRunner) run(ctx context.Context, call gateway.ToolCall) toolOutput {
	metrics.Get().ToolCalls.WithLabelValues(call.Name).Inc()

	switch call.Name {
	case ToolGenerateEmail:
		var args generateEmailArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			r.logger.Warn("invalid generateEmail arguments", "error", err)
			return toolOutput{Result: invalidArgsResult}
		}
		return r.generateEmail(ctx, args)
	case ToolTrackContext:
		var args trackContextArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			r.logger.Warn("invalid trackConversationContext arguments", "error", err)
			return toolOutput{Result: invalidArgsResult}
		}
		return toolOutput{Result: r.trackContext(args)}
	default:
		r.logger.Warn("unknown tool requested", "tool", call.Name)
		return toolOutput{Result: unknownToolResult}
	}
}

func (r *toolRunner) generateEmail(ctx context.Context, args generateEmailArgs) toolOutput {
	res := r.sess.UpdateSlots(slots.Record{
		Purpose:              args.Purpose,
		Context:              args.Context,
		Tone:                 args.Tone,
		Recipient:            args.Recipient,
		SpecificRequirements: args.AdditionalRequirements,
	})
	if !res.ReadyToGenerate {
		return toolOutput{Result: slots.MissingMessage(res.Missing)}
	}

	rec := res.Record
	req := prompt.EmailRequest{
		Context:                rec.Context,
		Purpose:                rec.Purpose,
		Tone:                   rec.Tone,
		Recipient:              rec.Recipient,
		AdditionalRequirements: rec.SpecificRequirements,
	}
	email, err := Generate(ctx, r.gw, req)
	if err != nil {
		r.logger.Error("email generation failed", "error", err)
		return toolOutput{Result: prompt.GenerationApology}
	}
	if err := r.sess.MarkGenerated(); err != nil {
		r.logger.Warn("mark generated", "error", err)
	}
	return toolOutput{Result: prompt.WrapEmail(email), Email: email}
}

func (r *toolRunner) trackContext(args trackContextArgs) string {
	res := r.sess.UpdateSlots(args.GatheredInfo)
	if args.ReadyToGenerate != res.ReadyToGenerate {
		r.logger.Debug("model readiness disagrees with slots",
			"model_ready", args.ReadyToGenerate,
			"missing", res.Missing,
		)
	}
	if res.ReadyToGenerate {
		return readyResult
	}
	question := args.NextQuestionNeeded
	if question == "" {
		question = res.NextQuestion
	}
	return nextQuestionPrefix + question
}

// Generate composes the prompt for req, asks the model for the email and
// makes sure it starts with a Subject line. The call carries no system
// instruction; the composed prompt is the whole request.
func Generate(ctx context.Context, gw gateway.Gateway, req prompt.EmailRequest) (string, error) {
	text, err := gw.Complete(ctx, &gateway.Request{
		Prompt:      prompt.Compose(req),
		Temperature: gateway.Float32(generateTemperature),
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return prompt.EnsureSubject(text, req.Purpose), nil
}
