package domain

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolInvocation is a tool call made by the model, optionally with its result.
type ToolInvocation struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     string          `json:"result,omitempty"`
}

// Message is one entry of a conversation, in the order the client sent it.
type Message struct {
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
}

// JoinContents concatenates the content of every message, separated by a space.
func JoinContents(messages []Message) string {
	n := 0
	for _, m := range messages {
		n += len(m.Content) + 1
	}
	buf := make([]byte, 0, n)
	for i, m := range messages {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
