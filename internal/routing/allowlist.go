package routing

import (
	"fmt"
	"strings"
)

// PendingRequirement is an unmet context requirement surfaced to the user,
// merged across every handler that declared it.
type PendingRequirement struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Handlers []string `json:"handlers"`
}

// AllowlistResult is the outcome of turning a shortlist into a concrete
// tool allowlist. When no match is viable, Allowlist is nil and callers
// must surface the pending prompts instead of proceeding with an
// unconstrained tool set.
type AllowlistResult struct {
	Allowlist []string             `json:"allowlist,omitempty"`
	Pending   []PendingRequirement `json:"pending_requirements,omitempty"`
	Matches   []HandlerMatch       `json:"matches"`
}

// Viable reports whether a match can contribute tools: no missing signals,
// no missing requirements, and a non-empty tool list.
func (m HandlerMatch) Viable() bool {
	return len(m.MissingSignals) == 0 &&
		len(m.MissingRequirements) == 0 &&
		m.Handler != nil &&
		len(m.Handler.Tools) > 0
}

// BuildAllowlist unions the tool names of all viable matches, in rank
// order, into the allowlist. Non-viable matches whose only deficiency is
// unmet context requirements contribute pending-requirement prompts keyed
// by requirement ID.
func BuildAllowlist(matches []HandlerMatch) AllowlistResult {
	result := AllowlistResult{Matches: matches}

	seen := make(map[string]struct{})
	pendingByID := make(map[string]*PendingRequirement)
	var pendingOrder []string

	for i := range matches {
		match := matches[i]
		if match.Viable() {
			for _, tool := range match.Handler.Tools {
				if _, ok := seen[tool]; ok {
					continue
				}
				seen[tool] = struct{}{}
				result.Allowlist = append(result.Allowlist, tool)
			}
			continue
		}

		// Only requirement-blocked matches become prompts; a missing
		// signal means the request simply is not about this handler.
		if len(match.MissingSignals) > 0 || len(match.MissingRequirements) == 0 {
			continue
		}
		for _, reqID := range match.MissingRequirements {
			entry, ok := pendingByID[reqID]
			if !ok {
				entry = &PendingRequirement{ID: reqID}
				pendingByID[reqID] = entry
				pendingOrder = append(pendingOrder, reqID)
			}
			name := match.HandlerID
			if match.Handler != nil && match.Handler.Name != "" {
				name = match.Handler.Name
			}
			if !containsString(entry.Handlers, name) {
				entry.Handlers = append(entry.Handlers, name)
			}
		}
	}

	for _, reqID := range pendingOrder {
		entry := pendingByID[reqID]
		entry.Prompt = composePrompt(reqID, entry.Handlers, matches)
		result.Pending = append(result.Pending, *entry)
	}

	return result
}

func composePrompt(reqID string, handlers []string, matches []HandlerMatch) string {
	base := requirementPrompt(reqID, matches)
	return fmt.Sprintf("Please provide %s (needed by %s).", base, strings.Join(handlers, ", "))
}

// requirementPrompt finds the declared prompt text for a requirement ID by
// scanning the matched handlers' declarations.
func requirementPrompt(reqID string, matches []HandlerMatch) string {
	for _, match := range matches {
		if match.Handler == nil {
			continue
		}
		for _, req := range match.Handler.Requirements {
			if req.ID == reqID && req.Prompt != "" {
				return req.Prompt
			}
		}
	}
	return reqID
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
