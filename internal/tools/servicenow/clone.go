package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/dispatch/internal/agent"
)

// DefaultStaleDays is the age after which a UAT clone is considered stale.
const DefaultStaleDays = 30

// CloneHistoryReader is the client surface the clone check needs.
type CloneHistoryReader interface {
	LastCloneRecord(ctx context.Context, targetInstance string) (*CloneRecord, error)
}

// CloneStatus describes the freshness of the last clone into an instance.
type CloneStatus struct {
	TargetInstance string `json:"target_instance"`
	LastCloneDate  string `json:"last_clone_date"`
	DaysSinceClone int    `json:"days_since_clone"`
	IsStale        bool   `json:"is_stale"`
	Status         string `json:"status"`
	RecordSysID    string `json:"raw_record_sys_id,omitempty"`
}

// cloneTimeLayouts are the timestamp formats ServiceNow emits for clone
// history records.
var cloneTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000000",
}

func parseCloneTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range cloneTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date value %q", value)
}

// EvaluateCloneStatus fetches the last completed clone for the target
// instance and judges its freshness against the stale threshold.
func EvaluateCloneStatus(ctx context.Context, client CloneHistoryReader, targetInstance string, staleAfterDays int, now time.Time) (*CloneStatus, error) {
	if staleAfterDays <= 0 {
		staleAfterDays = DefaultStaleDays
	}

	record, err := client.LastCloneRecord(ctx, targetInstance)
	if err != nil {
		return nil, err
	}

	cloneTime, err := parseCloneTime(record.Timestamp())
	if err != nil {
		return nil, fmt.Errorf("clone record is missing a usable timestamp: %w", err)
	}

	daysSince := int(now.UTC().Sub(cloneTime).Hours() / 24)
	isStale := daysSince > staleAfterDays

	status := "OK"
	if isStale {
		status = "WARNING"
	}

	return &CloneStatus{
		TargetInstance: targetInstance,
		LastCloneDate:  cloneTime.Format(time.RFC3339),
		DaysSinceClone: daysSince,
		IsStale:        isStale,
		Status:         status,
		RecordSysID:    record.SysID,
	}, nil
}

// CheckCloneDateTool reports when a sub-production instance was last cloned
// from production and whether that clone is stale.
type CheckCloneDateTool struct {
	client CloneHistoryReader
	now    func() time.Time
}

// NewCheckCloneDateTool creates a check_clone_date tool.
func NewCheckCloneDateTool(client CloneHistoryReader) *CheckCloneDateTool {
	return &CheckCloneDateTool{client: client, now: time.Now}
}

func (t *CheckCloneDateTool) Name() string {
	return "check_clone_date"
}

func (t *CheckCloneDateTool) Description() string {
	return "Check when a ServiceNow instance (typically UAT) was last cloned from production and whether the clone is stale."
}

func (t *CheckCloneDateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"target_instance": {
				"type": "string",
				"description": "Instance being validated (default UAT)",
				"default": "UAT"
			},
			"stale_after_days": {
				"type": "integer",
				"description": "Days after which the clone is considered stale (default 30)",
				"default": 30
			}
		}
	}`)
}

func (t *CheckCloneDateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		TargetInstance string `json:"target_instance"`
		StaleAfterDays int    `json:"stale_after_days"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.TargetInstance == "" {
		input.TargetInstance = "UAT"
	}

	status, err := EvaluateCloneStatus(ctx, t.client, input.TargetInstance, input.StaleAfterDays, t.now())
	if err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error checking clone date: %v", err),
			IsError: true,
		}, nil
	}

	payload, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &agent.ToolOutput{Content: string(payload)}, nil
}
