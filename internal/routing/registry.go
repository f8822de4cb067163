package routing

import (
	"fmt"

	"github.com/haasonsaas/dispatch/internal/health"
)

// EntryPointKind describes how a handler is invoked.
type EntryPointKind string

const (
	// KindTool handlers expose tools to the model.
	KindTool EntryPointKind = "tool"

	// KindWorkflow handlers drive a multi-step workflow.
	KindWorkflow EntryPointKind = "workflow"

	// KindEvent handlers only emit events and expose no tools.
	KindEvent EntryPointKind = "event"
)

// CostClass buckets handlers by expected cost and latency.
type CostClass string

const (
	CostLow    CostClass = "low"
	CostMedium CostClass = "medium"
	CostHigh   CostClass = "high"
)

// ContextRequirement is a precondition a handler declares must hold before
// its tools may be offered. The predicate is evaluated per request against
// the detected signals and request metadata.
type ContextRequirement struct {
	// ID identifies the requirement across handlers; pending prompts are
	// merged by this key.
	ID string

	// Prompt is shown to the user when the requirement is unmet.
	Prompt string

	// Satisfied decides whether the requirement holds for this request.
	Satisfied func(signals SignalSet, meta RequestMeta) bool
}

// HandlerDefinition is the immutable declaration of one capability handler,
// loaded at process start.
type HandlerDefinition struct {
	ID         string
	Name       string
	Keywords   []string
	Utterances []string

	RequiredSignals []Signal
	OptionalSignals []Signal
	Requirements    []ContextRequirement

	// Tools lists the tool names this handler contributes to the
	// allowlist when viable.
	Tools []string

	// Events lists event tags emitted by event-kind handlers.
	Events []string

	Kind       EntryPointKind
	CostClass  CostClass
	BaseWeight float64

	// Probe optionally reports the health of the handler's backing
	// dependency; registered with the health monitor at startup.
	Probe health.Probe
}

// Registry is the static catalog of capability handlers. Declaration order
// is meaningful: equal-score matches keep it.
type Registry struct {
	handlers []HandlerDefinition
	byID     map[string]int
}

// NewRegistry builds a registry from handler definitions. Duplicate or
// empty IDs are rejected.
func NewRegistry(defs ...HandlerDefinition) (*Registry, error) {
	r := &Registry{
		handlers: make([]HandlerDefinition, 0, len(defs)),
		byID:     make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("handler with empty id")
		}
		if _, ok := r.byID[def.ID]; ok {
			return nil, fmt.Errorf("duplicate handler id %q", def.ID)
		}
		if def.BaseWeight == 0 {
			def.BaseWeight = 1.0
		}
		r.byID[def.ID] = len(r.handlers)
		r.handlers = append(r.handlers, def)
	}
	return r, nil
}

// All returns the handlers in declaration order.
func (r *Registry) All() []HandlerDefinition {
	return r.handlers
}

// Get returns a handler definition by ID.
func (r *Registry) Get(id string) (HandlerDefinition, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return HandlerDefinition{}, false
	}
	return r.handlers[idx], true
}

// RegisterProbes adds every handler probe to the health monitor.
func (r *Registry) RegisterProbes(monitor *health.Monitor) {
	if monitor == nil {
		return
	}
	for _, h := range r.handlers {
		if h.Probe != nil {
			monitor.RegisterProbe(h.ID, h.Probe)
		}
	}
}

// Shared context requirements.
var (
	// ReqTicketNumber requires a ticket identifier, either detected in the
	// corpus or supplied by the caller.
	ReqTicketNumber = ContextRequirement{
		ID:     "ticket-number",
		Prompt: "a ticket number (for example SCS0001234)",
		Satisfied: func(signals SignalSet, meta RequestMeta) bool {
			return signals.Has(SignalTicketID) || signals.Has(SignalCallerTicket)
		},
	}

	// ReqReleaseVersion requires the caller to name the release under
	// validation.
	ReqReleaseVersion = ContextRequirement{
		ID:     "release-version",
		Prompt: "the release version being validated",
		Satisfied: func(_ SignalSet, meta RequestMeta) bool {
			return meta.Field("release") != ""
		},
	}

	// ReqTargetInstance requires the caller to name the target instance.
	ReqTargetInstance = ContextRequirement{
		ID:     "target-instance",
		Prompt: "the target instance name (for example uat or dev)",
		Satisfied: func(_ SignalSet, meta RequestMeta) bool {
			return meta.Field("instance") != ""
		},
	}

	// ReqStandardsDoc requires a standards document reference.
	ReqStandardsDoc = ContextRequirement{
		ID:     "standards-doc",
		Prompt: "the standards document to update",
		Satisfied: func(_ SignalSet, meta RequestMeta) bool {
			return meta.Field("document") != ""
		},
	}
)

// DefaultHandlers returns the built-in handler catalog for the QA analyst
// assistant.
func DefaultHandlers() []HandlerDefinition {
	return []HandlerDefinition{
		{
			ID:              "incident-triage",
			Name:            "Incident Triage",
			Keywords:        []string{"triage", "incident", "outage", "escalate"},
			Utterances:      []string{"what is the status of", "who is working on"},
			RequiredSignals: []Signal{SignalTicketID},
			OptionalSignals: []Signal{SignalPriorityFlag},
			Tools:           []string{"get_ticket", "search_tickets"},
			Kind:            KindTool,
			CostClass:       CostLow,
			BaseWeight:      1.0,
		},
		{
			ID:           "catalog-validation",
			Name:         "Catalog Item Validation",
			Keywords:     []string{"catalog", "validate", "item", "variable set"},
			Utterances:   []string{"check this catalog item", "does the item meet standards"},
			Requirements: []ContextRequirement{ReqReleaseVersion},
			Tools:        []string{"validate_catalog_item", "get_ticket"},
			Kind:         KindWorkflow,
			CostClass:    CostMedium,
			BaseWeight:   1.0,
		},
		{
			ID:           "uat-clone-check",
			Name:         "UAT Clone Check",
			Keywords:     []string{"clone", "uat", "refresh", "stale"},
			Utterances:   []string{"when was uat cloned"},
			Requirements: []ContextRequirement{ReqTargetInstance},
			Tools:        []string{"check_clone_date"},
			Kind:         KindTool,
			CostClass:    CostLow,
			BaseWeight:   1.0,
		},
		{
			ID:              "device-monitoring",
			Name:            "Device Monitoring",
			Keywords:        []string{"device", "router", "switch", "interface", "cpu", "bgp"},
			RequiredSignals: []Signal{SignalNetworkDevice},
			Tools:           []string{"query_device_status"},
			Kind:            KindTool,
			CostClass:       CostHigh,
			BaseWeight:      1.0,
		},
		{
			ID:           "standards-update",
			Name:         "Standards Update",
			Keywords:     []string{"standards", "guideline", "documentation"},
			Requirements: []ContextRequirement{ReqStandardsDoc},
			Tools:        []string{"update_standards"},
			Kind:         KindWorkflow,
			CostClass:    CostMedium,
			BaseWeight:   1.0,
		},
		{
			ID:              "feedback-intake",
			Name:            "Feedback Intake",
			Keywords:        []string{"feedback", "suggestion"},
			RequiredSignals: []Signal{SignalFeedbackIntent},
			Events:          []string{"feedback.received"},
			Kind:            KindEvent,
			CostClass:       CostLow,
			BaseWeight:      0.5,
		},
	}
}
