package bqanalyst

import (
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MessagesChannel is the state channel holding the conversation transcript.
const MessagesChannel = "messages"

// Message is one entry in the conversation transcript. The struct is
// JSON-shaped because transcripts round-trip through the checkpoint codec.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages requesting tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// IsError marks a tool message carrying a failure the model should
	// react to.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// messagesFromValue rebuilds a transcript from a codec-decoded channel
// value. The checkpoint codec hands back untyped JSON shapes, so the
// value takes one more marshal round trip into the typed form.
func messagesFromValue(v any) ([]Message, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode transcript value: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return msgs, nil
}
