package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/dispatch/internal/agent"
	"github.com/haasonsaas/dispatch/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIConvertMessagesInjectsSystem(t *testing.T) {
	p := &OpenAIProvider{}
	result := p.convertMessages([]models.Message{
		{Role: models.RoleUser, Content: "hello"},
	}, "you are a QA analyst")

	if len(result) != 2 {
		t.Fatalf("got %d messages, want 2", len(result))
	}
	if result[0].Role != openai.ChatMessageRoleSystem || result[0].Content != "you are a QA analyst" {
		t.Errorf("first message = %+v, want system prompt", result[0])
	}
	if result[1].Role != "user" || result[1].Content != "hello" {
		t.Errorf("second message = %+v", result[1])
	}
}

func TestOpenAIConvertMessagesSplitsToolResults(t *testing.T) {
	p := &OpenAIProvider{}
	result := p.convertMessages([]models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "get_ticket", Input: json.RawMessage(`{"number":"SCS0001234"}`)},
			},
		},
		{
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{ToolCallID: "call-1", Content: `{"state":"open"}`},
				{ToolCallID: "call-2", Content: `{"state":"closed"}`},
			},
		},
	}, "")

	if len(result) != 3 {
		t.Fatalf("got %d messages, want 3 (assistant + one per tool result)", len(result))
	}
	if len(result[0].ToolCalls) != 1 || result[0].ToolCalls[0].Function.Name != "get_ticket" {
		t.Errorf("assistant message tool calls = %+v", result[0].ToolCalls)
	}
	if result[1].Role != openai.ChatMessageRoleTool || result[1].ToolCallID != "call-1" {
		t.Errorf("first tool message = %+v", result[1])
	}
	if result[2].ToolCallID != "call-2" {
		t.Errorf("second tool message = %+v", result[2])
	}
}

func TestOpenAIConvertToolsBadSchemaDegrades(t *testing.T) {
	p := &OpenAIProvider{}
	tools := p.convertTools([]agent.Tool{
		&fakeTool{name: "broken", schema: `{not json`},
	})
	if len(tools) != 1 {
		t.Fatalf("got %d tools", len(tools))
	}
	params, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters type = %T", tools[0].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("degraded schema = %+v, want open object", params)
	}
}

type fakeTool struct {
	name   string
	schema string
}

func (t *fakeTool) Name() string            { return t.name }
func (t *fakeTool) Description() string     { return "fake tool" }
func (t *fakeTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }
func (t *fakeTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolOutput, error) {
	return &agent.ToolOutput{Content: `{}`}, nil
}
