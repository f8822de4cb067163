package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/dispatch/pkg/models"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of communicating with different LLM
// APIs while presenting a unified streaming interface to the control loop.
//
// Implementations must be safe for concurrent use; multiple goroutines may
// call Complete simultaneously for different requests.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider default
	// is used.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []models.Message `json:"messages"`

	// Tools defines the tools the model may request to execute.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the response length. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionChunk is a single chunk in a streaming LLM response.
type CompletionChunk struct {
	// Text contains partial response text.
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream completed successfully.
	Done bool `json:"done,omitempty"`

	// OutputText carries the fully assembled response text on the Done
	// chunk, when the provider pre-extracts it. Consumers prefer this
	// over their own accumulation.
	OutputText string `json:"output_text,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`
}

// Tool defines the interface for executable tools offered to the model.
type Tool interface {
	// Name returns the tool name for model function calling.
	Name() string

	// Description returns what the tool does, for the model's benefit.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool. Errors are converted to error-shaped results
	// by the executor; they never abort the loop.
	Execute(ctx context.Context, input json.RawMessage) (*ToolOutput, error)
}

// ToolOutput is the raw output of a tool execution before it is wrapped
// into a models.ToolResult keyed by call ID.
type ToolOutput struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}
