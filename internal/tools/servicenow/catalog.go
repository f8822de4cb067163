package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/dispatch/internal/agent"
)

// CatalogReader is the client surface the catalog validator needs.
type CatalogReader interface {
	GetCatalogItem(ctx context.Context, identifier string) (*CatalogItem, error)
	GetCatalogItemVariables(ctx context.Context, itemSysID string) ([]CatalogVariable, error)
}

var prohibitedNameTokens = []string{"copy of", "template", "draft", "test"}

var weakDescriptionTokens = []string{"tbd", "lorem", "test", "sample"}

// ValidationCheck is a single check outcome.
type ValidationCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Severity string `json:"severity"`
	Details  string `json:"details,omitempty"`
}

// ValidationResult aggregates the checks for one catalog item.
type ValidationResult struct {
	CatalogItemSysID string            `json:"catalog_item_sys_id"`
	ItemName         string            `json:"item_name"`
	Checks           []ValidationCheck `json:"checks"`
	OverallStatus    string            `json:"overall_status"`
}

// ValidateCatalogItem inspects a catalog item for common misconfigurations
// prior to production deployment: naming, metadata, attached workflows, and
// variable definitions.
func ValidateCatalogItem(ctx context.Context, client CatalogReader, identifier string) (*ValidationResult, error) {
	item, err := client.GetCatalogItem(ctx, identifier)
	if err != nil {
		return nil, err
	}
	variables, err := client.GetCatalogItemVariables(ctx, item.SysID)
	if err != nil {
		return nil, err
	}

	var checks []ValidationCheck
	checks = append(checks, checkActive(item))
	checks = append(checks, checkDisplayName(item))
	checks = append(checks, checkShortDescription(item))
	checks = append(checks, checkWorkflow(item))
	checks = append(checks, checkCategory(item))
	checks = append(checks, checkMedia(item))
	checks = append(checks, checkVariables(variables)...)

	return &ValidationResult{
		CatalogItemSysID: item.SysID,
		ItemName:         item.Name,
		Checks:           checks,
		OverallStatus:    overallStatus(checks),
	}, nil
}

func checkActive(item *CatalogItem) ValidationCheck {
	if toBool(item.Active, true) {
		return ValidationCheck{Name: "item_active", Passed: true, Severity: "INFO"}
	}
	return ValidationCheck{
		Name:     "item_active",
		Passed:   false,
		Severity: "ERROR",
		Details:  "Catalog item is inactive.",
	}
}

func checkDisplayName(item *CatalogItem) ValidationCheck {
	lower := strings.ToLower(strings.TrimSpace(item.Name))
	for _, token := range prohibitedNameTokens {
		if strings.Contains(lower, token) {
			return ValidationCheck{
				Name:     "display_name_clean",
				Passed:   false,
				Severity: "ERROR",
				Details:  fmt.Sprintf("Display name contains prohibited token %q.", token),
			}
		}
	}
	return ValidationCheck{Name: "display_name_clean", Passed: true, Severity: "INFO"}
}

func checkShortDescription(item *CatalogItem) ValidationCheck {
	desc := strings.TrimSpace(item.ShortDescription)
	if desc == "" {
		return ValidationCheck{
			Name:     "short_description_present",
			Passed:   false,
			Severity: "ERROR",
			Details:  "Short description is missing.",
		}
	}
	if len(desc) < 15 {
		return ValidationCheck{
			Name:     "short_description_length",
			Passed:   false,
			Severity: "WARNING",
			Details:  "Short description is unusually short (<15 characters).",
		}
	}
	lower := strings.ToLower(desc)
	for _, token := range weakDescriptionTokens {
		if strings.Contains(lower, token) {
			return ValidationCheck{
				Name:     "short_description_quality",
				Passed:   false,
				Severity: "WARNING",
				Details:  "Short description contains placeholder text.",
			}
		}
	}
	return ValidationCheck{Name: "short_description_quality", Passed: true, Severity: "INFO"}
}

func checkWorkflow(item *CatalogItem) ValidationCheck {
	if item.Workflow != "" || item.FlowDesignerFlow != "" {
		return ValidationCheck{Name: "workflow_attached", Passed: true, Severity: "INFO"}
	}
	return ValidationCheck{
		Name:     "workflow_attached",
		Passed:   false,
		Severity: "ERROR",
		Details:  "No workflow or Flow Designer flow is attached to the catalog item.",
	}
}

func checkCategory(item *CatalogItem) ValidationCheck {
	if item.Category != "" {
		return ValidationCheck{Name: "category_set", Passed: true, Severity: "INFO"}
	}
	return ValidationCheck{
		Name:     "category_set",
		Passed:   false,
		Severity: "ERROR",
		Details:  "Catalog item has no category.",
	}
}

func checkMedia(item *CatalogItem) ValidationCheck {
	if item.Picture != "" || item.Icon != "" {
		return ValidationCheck{Name: "media_present", Passed: true, Severity: "INFO"}
	}
	return ValidationCheck{
		Name:     "media_present",
		Passed:   false,
		Severity: "WARNING",
		Details:  "Catalog item is missing an icon or picture.",
	}
}

func checkVariables(variables []CatalogVariable) []ValidationCheck {
	if len(variables) == 0 {
		return []ValidationCheck{{
			Name:     "variables_defined",
			Passed:   false,
			Severity: "WARNING",
			Details:  "Catalog item has no variables defined.",
		}}
	}

	var missingQuestion, inactive, mandatoryMissingHelp []string
	for _, v := range variables {
		if strings.TrimSpace(v.QuestionText) == "" {
			missingQuestion = append(missingQuestion, v.Name)
		}
		if !toBool(v.Active, true) {
			inactive = append(inactive, v.Name)
		}
		if toBool(v.Mandatory, false) && strings.TrimSpace(v.HelpText) == "" {
			mandatoryMissingHelp = append(mandatoryMissingHelp, v.Name)
		}
	}

	var checks []ValidationCheck
	if len(missingQuestion) > 0 {
		checks = append(checks, ValidationCheck{
			Name:     "variable_question_text",
			Passed:   false,
			Severity: "ERROR",
			Details:  "Variables missing question text: " + strings.Join(missingQuestion, ", "),
		})
	} else {
		checks = append(checks, ValidationCheck{Name: "variable_question_text", Passed: true, Severity: "INFO"})
	}

	if len(inactive) > 0 {
		checks = append(checks, ValidationCheck{
			Name:     "variable_active_state",
			Passed:   false,
			Severity: "WARNING",
			Details:  "Inactive variables: " + strings.Join(inactive, ", "),
		})
	} else {
		checks = append(checks, ValidationCheck{Name: "variable_active_state", Passed: true, Severity: "INFO"})
	}

	if len(mandatoryMissingHelp) > 0 {
		checks = append(checks, ValidationCheck{
			Name:     "variable_help_text",
			Passed:   false,
			Severity: "WARNING",
			Details:  "Mandatory variables missing help text: " + strings.Join(mandatoryMissingHelp, ", "),
		})
	} else {
		checks = append(checks, ValidationCheck{Name: "variable_help_text", Passed: true, Severity: "INFO"})
	}

	return checks
}

// overallStatus is FAIL when any ERROR check failed, WARN when only
// WARNING checks failed, PASS otherwise.
func overallStatus(checks []ValidationCheck) string {
	status := "PASS"
	for _, check := range checks {
		if check.Passed {
			continue
		}
		if check.Severity == "ERROR" {
			return "FAIL"
		}
		status = "WARN"
	}
	return status
}

func toBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no", "":
		if value == "" {
			return fallback
		}
		return false
	default:
		return fallback
	}
}

// ValidateCatalogItemTool exposes catalog validation as an agent tool.
type ValidateCatalogItemTool struct {
	client CatalogReader
}

// NewValidateCatalogItemTool creates a validate_catalog_item tool.
func NewValidateCatalogItemTool(client CatalogReader) *ValidateCatalogItemTool {
	return &ValidateCatalogItemTool{client: client}
}

func (t *ValidateCatalogItemTool) Name() string {
	return "validate_catalog_item"
}

func (t *ValidateCatalogItemTool) Description() string {
	return "Validate a ServiceNow catalog item for release readiness: naming, description, workflow, category, media, and variable definitions."
}

func (t *ValidateCatalogItemTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"item": {
				"type": "string",
				"description": "Catalog item sys_id or exact name"
			}
		},
		"required": ["item"]
	}`)
}

func (t *ValidateCatalogItemTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Item string `json:"item"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.Item == "" {
		return &agent.ToolOutput{
			Content: "item is required",
			IsError: true,
		}, nil
	}

	result, err := ValidateCatalogItem(ctx, t.client, input.Item)
	if err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error validating catalog item: %v", err),
			IsError: true,
		}, nil
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &agent.ToolOutput{Content: string(payload)}, nil
}
