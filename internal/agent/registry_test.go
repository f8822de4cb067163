package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type schemaTool struct {
	stubTool
	schema string
}

func (t *schemaTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }

func TestRegistrySubsetPreservesAllowlistOrder(t *testing.T) {
	registry := newTestRegistry(t,
		&stubTool{name: "get_ticket", execute: nilExec},
		&stubTool{name: "search_tickets", execute: nilExec},
		&stubTool{name: "check_clone_date", execute: nilExec},
	)

	subset := registry.Subset([]string{"check_clone_date", "get_ticket", "unknown_tool"})
	if len(subset) != 2 {
		t.Fatalf("got %d tools, want 2", len(subset))
	}
	if subset[0].Name() != "check_clone_date" || subset[1].Name() != "get_ticket" {
		t.Errorf("subset order = [%s, %s]", subset[0].Name(), subset[1].Name())
	}
}

func TestRegistryRejectsMalformedSchema(t *testing.T) {
	registry := NewToolRegistry()
	err := registry.Register(&schemaTool{
		stubTool: stubTool{name: "broken", execute: nilExec},
		schema:   `{"type": ???}`,
	})
	if err == nil {
		t.Fatal("expected compile error for malformed schema")
	}
}

func TestRegistryValidatesInput(t *testing.T) {
	registry := NewToolRegistry()
	err := registry.Register(&schemaTool{
		stubTool: stubTool{
			name: "get_ticket",
			execute: func(ctx context.Context, input json.RawMessage) (*ToolOutput, error) {
				return &ToolOutput{Content: `{"ok": true}`}, nil
			},
		},
		schema: `{
			"type": "object",
			"properties": {"number": {"type": "string"}},
			"required": ["number"]
		}`,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := registry.Execute(context.Background(), "get_ticket", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError || !strings.Contains(out.Content, "invalid") {
		t.Errorf("output = %+v, want validation error result", out)
	}

	out, err = registry.Execute(context.Background(), "get_ticket", json.RawMessage(`{"number": "SCS0001234"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Errorf("valid input rejected: %+v", out)
	}
}

func TestRegistryUnknownToolResult(t *testing.T) {
	registry := NewToolRegistry()
	out, err := registry.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError || !strings.Contains(out.Content, "Tool missing not found") {
		t.Errorf("output = %+v", out)
	}
}

func nilExec(ctx context.Context, input json.RawMessage) (*ToolOutput, error) {
	return &ToolOutput{Content: `{}`}, nil
}
