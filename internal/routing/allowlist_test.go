package routing

import (
	"reflect"
	"testing"
)

func TestBuildAllowlistViableAndPending(t *testing.T) {
	viable := &HandlerDefinition{
		ID:    "incident-triage",
		Name:  "Incident Triage",
		Tools: []string{"a", "b"},
	}
	blocked := &HandlerDefinition{
		ID:           "catalog-validation",
		Name:         "Catalog Item Validation",
		Tools:        []string{"c"},
		Requirements: []ContextRequirement{ReqReleaseVersion},
	}

	result := BuildAllowlist([]HandlerMatch{
		{Handler: viable, HandlerID: viable.ID, Score: 4},
		{Handler: blocked, HandlerID: blocked.ID, Score: 2, MissingRequirements: []string{"release-version"}},
	})

	if !reflect.DeepEqual(result.Allowlist, []string{"a", "b"}) {
		t.Fatalf("unexpected allowlist %v", result.Allowlist)
	}
	if len(result.Pending) != 1 {
		t.Fatalf("expected one pending requirement, got %v", result.Pending)
	}
	pending := result.Pending[0]
	if pending.ID != "release-version" {
		t.Fatalf("unexpected pending id %q", pending.ID)
	}
	if !reflect.DeepEqual(pending.Handlers, []string{"Catalog Item Validation"}) {
		t.Fatalf("unexpected pending handlers %v", pending.Handlers)
	}
	if pending.Prompt == "" {
		t.Fatal("expected a composed prompt")
	}
}

func TestBuildAllowlistUnionPreservesRankOrder(t *testing.T) {
	first := &HandlerDefinition{ID: "first", Tools: []string{"x", "shared"}}
	second := &HandlerDefinition{ID: "second", Tools: []string{"shared", "y"}}

	result := BuildAllowlist([]HandlerMatch{
		{Handler: first, HandlerID: "first", Score: 5},
		{Handler: second, HandlerID: "second", Score: 3},
	})

	if !reflect.DeepEqual(result.Allowlist, []string{"x", "shared", "y"}) {
		t.Fatalf("unexpected union %v", result.Allowlist)
	}
}

func TestBuildAllowlistNoViableMatches(t *testing.T) {
	blocked := &HandlerDefinition{
		ID:           "uat-clone-check",
		Name:         "UAT Clone Check",
		Tools:        []string{"check_clone_date"},
		Requirements: []ContextRequirement{ReqTargetInstance},
	}

	result := BuildAllowlist([]HandlerMatch{
		{Handler: blocked, HandlerID: blocked.ID, Score: 2, MissingRequirements: []string{"target-instance"}},
	})

	if result.Allowlist != nil {
		t.Fatalf("expected no allowlist, got %v", result.Allowlist)
	}
	if len(result.Pending) != 1 {
		t.Fatalf("expected pending requirement, got %v", result.Pending)
	}
	if len(result.Matches) != 1 {
		t.Fatal("matches must be returned for the caller to surface")
	}
}

func TestBuildAllowlistMissingSignalNotPending(t *testing.T) {
	match := HandlerMatch{
		Handler:             &HandlerDefinition{ID: "device-monitoring", Tools: []string{"query_device_status"}},
		HandlerID:           "device-monitoring",
		Score:               2,
		MissingSignals:      []Signal{SignalNetworkDevice},
		MissingRequirements: []string{"target-instance"},
	}

	result := BuildAllowlist([]HandlerMatch{match})
	if len(result.Pending) != 0 {
		t.Fatalf("signal-deficient matches must not prompt, got %v", result.Pending)
	}
}

func TestBuildAllowlistMergesHandlersPerRequirement(t *testing.T) {
	a := &HandlerDefinition{ID: "a", Name: "Alpha", Tools: []string{"t1"}, Requirements: []ContextRequirement{ReqReleaseVersion}}
	b := &HandlerDefinition{ID: "b", Name: "Beta", Tools: []string{"t2"}, Requirements: []ContextRequirement{ReqReleaseVersion}}

	result := BuildAllowlist([]HandlerMatch{
		{Handler: a, HandlerID: "a", Score: 2, MissingRequirements: []string{"release-version"}},
		{Handler: b, HandlerID: "b", Score: 1, MissingRequirements: []string{"release-version"}},
	})

	if len(result.Pending) != 1 {
		t.Fatalf("expected merged pending entry, got %v", result.Pending)
	}
	if !reflect.DeepEqual(result.Pending[0].Handlers, []string{"Alpha", "Beta"}) {
		t.Fatalf("unexpected handler merge %v", result.Pending[0].Handlers)
	}
}
