// Package prompt renders the text handed to the model: the chat system
// instruction, the email-generation prompt, and the post-processing of the
// model's email output.
package prompt

import (
	"strings"
)

// EmailRequest carries the gathered slots for one email generation.
type EmailRequest struct {
	Context                string `json:"context" validate:"required"`
	Purpose                string `json:"purpose" validate:"required"`
	Tone                   string `json:"tone"`
	Recipient              string `json:"recipient,omitempty"`
	AdditionalRequirements string `json:"additionalRequirements,omitempty"`
}

const formatInstructions = `IMPORTANT: Format the email EXACTLY as follows:
Subject: [Create a compelling subject line under 50 characters]

[Appropriate greeting based on relationship and tone]

[Well-structured email body with clear paragraphs that address the context and purpose]

[Professional closing appropriate for the tone]
[Sender name placeholder]

Make it polished, actionable, and ready to send. Ensure proper spacing between sections.`

// Compose renders the generation prompt. Context and purpose are assumed
// non-empty; callers validate them. The recipient clause and the additional
// requirements line are omitted when empty.
func Compose(req EmailRequest) string {
	var b strings.Builder

	b.WriteString("Generate a professional ")
	b.WriteString(req.Purpose)
	b.WriteString(" email")
	if r := strings.TrimSpace(req.Recipient); r != "" {
		b.WriteString(" to ")
		b.WriteString(r)
	}
	b.WriteString(" with the following details:\n\n")

	b.WriteString("Context: ")
	b.WriteString(req.Context)
	b.WriteString("\nTone: ")
	b.WriteString(req.Tone)
	b.WriteString("\n")
	if ar := strings.TrimSpace(req.AdditionalRequirements); ar != "" {
		b.WriteString("Additional Requirements: ")
		b.WriteString(ar)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(formatInstructions)
	return b.String()
}
