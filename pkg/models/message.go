package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentBlock is a typed fragment of message content. Inbound payloads may
// carry content as a plain string or as a list of blocks; both map onto this.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// Raw preserves the original payload for block types we do not model.
	Raw json.RawMessage `json:"-"`
}

// Message is the unified conversation message format.
type Message struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Text flattens the message content into a single string, extracting text
// from any block shape. Blocks without a text field are stringified.
func (m *Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.Blocks)+1)
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, b := range m.Blocks {
		switch {
		case b.Text != "":
			parts = append(parts, b.Text)
		case len(b.Raw) > 0:
			parts = append(parts, string(b.Raw))
		default:
			parts = append(parts, fmt.Sprintf("%+v", b))
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution. Errors are carried
// inline with IsError set rather than aborting the conversation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
