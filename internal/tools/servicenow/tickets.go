package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/dispatch/internal/agent"
)

// TicketReader is the client surface the ticket tools need.
type TicketReader interface {
	GetIncident(ctx context.Context, idOrNumber string) (*Incident, error)
	SearchIncidents(ctx context.Context, opts SearchIncidentsOptions) ([]Incident, error)
}

// GetTicketTool retrieves a specific incident.
type GetTicketTool struct {
	client TicketReader
}

// NewGetTicketTool creates a get_ticket tool over the given client.
func NewGetTicketTool(client TicketReader) *GetTicketTool {
	return &GetTicketTool{client: client}
}

func (t *GetTicketTool) Name() string {
	return "get_ticket"
}

func (t *GetTicketTool) Description() string {
	return "Get details of a specific ServiceNow ticket by number (e.g., INC0012345 or SCS0001234)"
}

func (t *GetTicketTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"number": {
				"type": "string",
				"description": "The ticket number (e.g., INC0012345) or sys_id"
			}
		},
		"required": ["number"]
	}`)
}

func (t *GetTicketTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.Number == "" {
		return &agent.ToolOutput{
			Content: "number is required",
			IsError: true,
		}, nil
	}

	incident, err := t.client.GetIncident(ctx, input.Number)
	if err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error getting ticket: %v", err),
			IsError: true,
		}, nil
	}

	return &agent.ToolOutput{
		Content: FormatIncident(incident),
	}, nil
}

// SearchTicketsTool searches incidents with optional filters.
type SearchTicketsTool struct {
	client TicketReader
}

// NewSearchTicketsTool creates a search_tickets tool over the given client.
func NewSearchTicketsTool(client TicketReader) *SearchTicketsTool {
	return &SearchTicketsTool{client: client}
}

func (t *SearchTicketsTool) Name() string {
	return "search_tickets"
}

func (t *SearchTicketsTool) Description() string {
	return "Search ServiceNow tickets by text, state, or priority. Returns the most recently opened matches."
}

func (t *SearchTicketsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {
				"type": "string",
				"description": "Free text to match against short descriptions"
			},
			"state": {
				"type": "string",
				"description": "Filter by state",
				"enum": ["new", "in_progress", "on_hold", "resolved", "closed"]
			},
			"priority": {
				"type": "string",
				"description": "Filter by priority",
				"enum": ["critical", "high", "moderate", "low"]
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of tickets to return (default 10)",
				"default": 10
			}
		}
	}`)
}

func (t *SearchTicketsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Text     string `json:"text"`
		State    string `json:"state"`
		Priority string `json:"priority"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	opts := SearchIncidentsOptions{
		Text:  input.Text,
		Limit: input.Limit,
	}

	switch strings.ToLower(input.State) {
	case "new":
		opts.State = "1"
	case "in_progress":
		opts.State = "2"
	case "on_hold":
		opts.State = "3"
	case "resolved":
		opts.State = "6"
	case "closed":
		opts.State = "7"
	}

	switch strings.ToLower(input.Priority) {
	case "critical":
		opts.Priority = "1"
	case "high":
		opts.Priority = "2"
	case "moderate":
		opts.Priority = "3"
	case "low":
		opts.Priority = "4"
	}

	incidents, err := t.client.SearchIncidents(ctx, opts)
	if err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error searching tickets: %v", err),
			IsError: true,
		}, nil
	}

	if len(incidents) == 0 {
		return &agent.ToolOutput{
			Content: "No tickets found matching the criteria.",
		}, nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d tickets:\n\n", len(incidents)))
	for i, inc := range incidents {
		result.WriteString(fmt.Sprintf("%d. %s\n", i+1, FormatIncident(&inc)))
		if i < len(incidents)-1 {
			result.WriteString("\n---\n\n")
		}
	}

	return &agent.ToolOutput{
		Content: result.String(),
	}, nil
}
