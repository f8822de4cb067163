package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeTicketReader struct {
	incident *Incident
	results  []Incident
	err      error
}

func (f *fakeTicketReader) GetIncident(ctx context.Context, idOrNumber string) (*Incident, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.incident, nil
}

func (f *fakeTicketReader) SearchIncidents(ctx context.Context, opts SearchIncidentsOptions) ([]Incident, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestGetTicketTool(t *testing.T) {
	tool := NewGetTicketTool(&fakeTicketReader{
		incident: &Incident{Number: "SCS0001234", State: "2", ShortDescription: "CPU pegged", AssignedTo: "qa.analyst"},
	})

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "get_ticket" {
			t.Errorf("Name() = %q", tool.Name())
		}
	})

	t.Run("Schema", func(t *testing.T) {
		var parsed map[string]any
		if err := json.Unmarshal(tool.Schema(), &parsed); err != nil {
			t.Fatalf("Schema() is not valid JSON: %v", err)
		}
		if parsed["type"] != "object" {
			t.Errorf("schema type = %v", parsed["type"])
		}
	})

	t.Run("Execute", func(t *testing.T) {
		out, err := tool.Execute(context.Background(), json.RawMessage(`{"number": "SCS0001234"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if out.IsError {
			t.Fatalf("unexpected error result: %s", out.Content)
		}
		if !strings.Contains(out.Content, "SCS0001234") || !strings.Contains(out.Content, "In Progress") {
			t.Errorf("Content = %q", out.Content)
		}
	})

	t.Run("MissingNumber", func(t *testing.T) {
		out, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !out.IsError {
			t.Error("expected error result for missing number")
		}
	})

	t.Run("ClientError", func(t *testing.T) {
		errTool := NewGetTicketTool(&fakeTicketReader{err: errors.New("instance unreachable")})
		out, err := errTool.Execute(context.Background(), json.RawMessage(`{"number": "INC0000001"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !out.IsError || !strings.Contains(out.Content, "instance unreachable") {
			t.Errorf("result = %+v", out)
		}
	})
}

func TestSearchTicketsTool(t *testing.T) {
	tool := NewSearchTicketsTool(&fakeTicketReader{
		results: []Incident{
			{Number: "INC0000010", State: "2", ShortDescription: "router down"},
			{Number: "INC0000009", State: "1", ShortDescription: "vpn flaky"},
		},
	})

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"text": "router", "state": "in_progress", "priority": "high"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Content, "Found 2 tickets") {
		t.Errorf("Content = %q", out.Content)
	}

	empty := NewSearchTicketsTool(&fakeTicketReader{})
	out, err = empty.Execute(context.Background(), json.RawMessage(`{"text": "nothing"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Content, "No tickets found") {
		t.Errorf("Content = %q", out.Content)
	}
}

type fakeCatalogReader struct {
	item      *CatalogItem
	variables []CatalogVariable
}

func (f *fakeCatalogReader) GetCatalogItem(ctx context.Context, identifier string) (*CatalogItem, error) {
	return f.item, nil
}

func (f *fakeCatalogReader) GetCatalogItemVariables(ctx context.Context, itemSysID string) ([]CatalogVariable, error) {
	return f.variables, nil
}

func healthyItem() *CatalogItem {
	return &CatalogItem{
		SysID:            "abc123",
		Name:             "New Laptop Request",
		ShortDescription: "Request a standard corporate laptop with approvals.",
		Active:           "true",
		Category:         "hardware",
		Workflow:         "laptop_flow",
		Icon:             "laptop.png",
	}
}

func healthyVariables() []CatalogVariable {
	return []CatalogVariable{
		{Name: "model", QuestionText: "Which model?", Active: "true", Mandatory: "true", HelpText: "Pick from the standard list."},
		{Name: "notes", QuestionText: "Anything else?", Active: "true"},
	}
}

func TestValidateCatalogItemAllPass(t *testing.T) {
	result, err := ValidateCatalogItem(context.Background(), &fakeCatalogReader{
		item:      healthyItem(),
		variables: healthyVariables(),
	}, "New Laptop Request")
	if err != nil {
		t.Fatalf("ValidateCatalogItem: %v", err)
	}
	if result.OverallStatus != "PASS" {
		t.Errorf("OverallStatus = %s, want PASS: %+v", result.OverallStatus, result.Checks)
	}
}

func TestValidateCatalogItemProhibitedName(t *testing.T) {
	item := healthyItem()
	item.Name = "Copy of New Laptop Request"
	result, err := ValidateCatalogItem(context.Background(), &fakeCatalogReader{
		item:      item,
		variables: healthyVariables(),
	}, item.Name)
	if err != nil {
		t.Fatalf("ValidateCatalogItem: %v", err)
	}
	if result.OverallStatus != "FAIL" {
		t.Errorf("OverallStatus = %s, want FAIL", result.OverallStatus)
	}

	var found bool
	for _, check := range result.Checks {
		if check.Name == "display_name_clean" && !check.Passed {
			found = true
		}
	}
	if !found {
		t.Error("display_name_clean check did not fail")
	}
}

func TestValidateCatalogItemWarningsOnly(t *testing.T) {
	item := healthyItem()
	item.Icon = ""
	item.Picture = ""
	result, err := ValidateCatalogItem(context.Background(), &fakeCatalogReader{
		item:      item,
		variables: healthyVariables(),
	}, item.Name)
	if err != nil {
		t.Fatalf("ValidateCatalogItem: %v", err)
	}
	if result.OverallStatus != "WARN" {
		t.Errorf("OverallStatus = %s, want WARN", result.OverallStatus)
	}
}

func TestValidateCatalogItemVariableChecks(t *testing.T) {
	result, err := ValidateCatalogItem(context.Background(), &fakeCatalogReader{
		item: healthyItem(),
		variables: []CatalogVariable{
			{Name: "broken", QuestionText: "", Active: "false", Mandatory: "true", HelpText: ""},
		},
	}, "item")
	if err != nil {
		t.Fatalf("ValidateCatalogItem: %v", err)
	}
	if result.OverallStatus != "FAIL" {
		t.Errorf("OverallStatus = %s, want FAIL (missing question text is an error)", result.OverallStatus)
	}

	byName := map[string]ValidationCheck{}
	for _, check := range result.Checks {
		byName[check.Name] = check
	}
	if byName["variable_question_text"].Passed {
		t.Error("variable_question_text should fail")
	}
	if byName["variable_active_state"].Passed {
		t.Error("variable_active_state should fail")
	}
	if byName["variable_help_text"].Passed {
		t.Error("variable_help_text should fail")
	}
}

type fakeCloneReader struct {
	record *CloneRecord
	err    error
}

func (f *fakeCloneReader) LastCloneRecord(ctx context.Context, targetInstance string) (*CloneRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func TestEvaluateCloneStatusFresh(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	status, err := EvaluateCloneStatus(context.Background(), &fakeCloneReader{
		record: &CloneRecord{SysID: "r1", LastCompletedTime: "2026-08-12 03:15:00"},
	}, "UAT", 30, now)
	if err != nil {
		t.Fatalf("EvaluateCloneStatus: %v", err)
	}
	if status.IsStale || status.Status != "OK" {
		t.Errorf("status = %+v, want fresh", status)
	}
	if status.DaysSinceClone != 8 {
		t.Errorf("DaysSinceClone = %d, want 8", status.DaysSinceClone)
	}
}

func TestEvaluateCloneStatusStale(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	status, err := EvaluateCloneStatus(context.Background(), &fakeCloneReader{
		record: &CloneRecord{SysID: "r1", Completed: "2026-05-01 00:00:00"},
	}, "UAT", 30, now)
	if err != nil {
		t.Fatalf("EvaluateCloneStatus: %v", err)
	}
	if !status.IsStale || status.Status != "WARNING" {
		t.Errorf("status = %+v, want stale WARNING", status)
	}
}

func TestEvaluateCloneStatusBadTimestamp(t *testing.T) {
	_, err := EvaluateCloneStatus(context.Background(), &fakeCloneReader{
		record: &CloneRecord{SysID: "r1"},
	}, "UAT", 30, time.Now())
	if err == nil || !strings.Contains(err.Error(), "timestamp") {
		t.Errorf("err = %v, want timestamp error", err)
	}
}

func TestCheckCloneDateToolDefaults(t *testing.T) {
	tool := NewCheckCloneDateTool(&fakeCloneReader{
		record: &CloneRecord{SysID: "r1", LastCompletedTime: "2026-08-12 03:15:00"},
	})
	tool.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }

	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error result: %s", out.Content)
	}
	var status CloneStatus
	if err := json.Unmarshal([]byte(out.Content), &status); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if status.TargetInstance != "UAT" {
		t.Errorf("TargetInstance = %q, want default UAT", status.TargetInstance)
	}
}
