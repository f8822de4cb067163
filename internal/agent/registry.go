package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tool input is validated against the tool's schema before
// execution; invalid input becomes an error-shaped result, not a failure.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name, replacing any existing
// tool with the same name. The tool's schema is compiled eagerly so a
// malformed schema fails at startup rather than mid-conversation.
func (r *ToolRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool with empty name")
	}
	if raw := tool.Schema(); len(raw) > 0 {
		compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
		if err != nil {
			return fmt.Errorf("compile schema for tool %q: %w", name, err)
		}
		r.schemas[name] = compiled
	}
	r.tools[name] = tool
	return nil
}

// MustRegister registers a tool and panics on schema errors. Intended for
// static catalogs wired at startup.
func (r *ToolRegistry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in unspecified order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Subset returns the registered tools whose names appear in the allowlist,
// preserving allowlist order. Unknown names are skipped.
func (r *ToolRegistry) Subset(allowlist []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(allowlist))
	for _, name := range allowlist {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// All returns every registered tool in unspecified order.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	return out
}

// ValidateInput checks tool input against the tool's compiled schema.
// Tools registered without a schema accept any input.
func (r *ToolRegistry) ValidateInput(name string, input json.RawMessage) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return nil
	}

	var decoded any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &decoded); err != nil {
			return fmt.Errorf("decode tool input: %w", err)
		}
	} else {
		decoded = map[string]any{}
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool input invalid: %w", err)
	}
	return nil
}

// Execute runs a tool by name with validated input. The caller receives an
// error-shaped output for unknown tools and invalid input; Go errors are
// returned only for actual execution failures so the executor can convert
// them uniformly.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (*ToolOutput, error) {
	tool, ok := r.Get(name)
	if !ok {
		return &ToolOutput{
			Content: fmt.Sprintf(`{"error": "Tool %s not found"}`, name),
			IsError: true,
		}, nil
	}
	if err := r.ValidateInput(name, input); err != nil {
		return &ToolOutput{
			Content: fmt.Sprintf(`{"error": %q}`, err.Error()),
			IsError: true,
		}, nil
	}
	return tool.Execute(ctx, input)
}
