// Package standards maintains the living standards documentation generated
// from recurring validation findings. Generated sections live between HTML
// comment markers so hand-written content around them survives updates.
package standards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/dispatch/internal/agent"
)

const (
	commonMarkerStart = "<!-- AUTO-GENERATED:VALIDATION_COMMON_ISSUES -->"
	commonMarkerEnd   = "<!-- /AUTO-GENERATED:VALIDATION_COMMON_ISSUES -->"

	suggestionsMarkerStart = "<!-- AUTO-GENERATED:VALIDATION_STANDARD_SUGGESTIONS -->"
	suggestionsMarkerEnd   = "<!-- /AUTO-GENERATED:VALIDATION_STANDARD_SUGGESTIONS -->"
)

// FrequentIssue is an aggregated validation failure.
type FrequentIssue struct {
	CheckName     string `json:"check_name"`
	Occurrences   int    `json:"occurrences"`
	SampleDetails string `json:"sample_details"`
}

// IssueSource supplies the recurring validation failures to document.
type IssueSource interface {
	FrequentIssues(ctx context.Context, minOccurrences int) ([]FrequentIssue, error)
}

// BuildCommonIssuesTable renders a markdown table of recurring issues.
func BuildCommonIssuesTable(issues []FrequentIssue) string {
	lines := []string{
		"| Check | Occurrences | Sample Details |",
		"| --- | ---: | --- |",
	}
	for _, issue := range issues {
		details := strings.TrimSpace(strings.ReplaceAll(issue.SampleDetails, "\n", " "))
		if details == "" {
			details = "-"
		}
		lines = append(lines, fmt.Sprintf("| %s | %d | %s |", issue.CheckName, issue.Occurrences, details))
	}
	return strings.Join(lines, "\n")
}

// BuildSuggestions renders remediation bullets for recurring issues.
func BuildSuggestions(issues []FrequentIssue) string {
	var lines []string
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf(
			"- Investigate recurring `%s` failures (observed %d times) and codify remediation steps.",
			issue.CheckName, issue.Occurrences,
		))
	}
	if len(lines) == 0 {
		lines = append(lines, "- No new recurring issues met the threshold this run.")
	}
	return strings.Join(lines, "\n")
}

// UpdateMarkdownSection replaces the content between the markers in the
// file at path, appending a new marked section when the markers are absent
// and creating the file when it does not exist.
func UpdateMarkdownSection(path, startMarker, endMarker, content string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		title := titleCase(strings.ReplaceAll(strings.TrimSuffix(baseName(path), ".md"), "_", " "))
		rendered := fmt.Sprintf("# %s\n\n%s\n%s\n%s\n", title, startMarker, content, endMarker)
		return os.WriteFile(path, []byte(rendered), 0o644)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	current := string(raw)
	var updated string
	if strings.Contains(current, startMarker) && strings.Contains(current, endMarker) {
		before, remainder, _ := strings.Cut(current, startMarker)
		_, after, _ := strings.Cut(remainder, endMarker)
		updated = before + startMarker + "\n" + content + "\n" + endMarker + after
	} else {
		if !strings.HasSuffix(current, "\n") {
			current += "\n"
		}
		updated = current + startMarker + "\n" + content + "\n" + endMarker + "\n"
	}
	return os.WriteFile(path, []byte(updated), 0o644)
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// UpdateStandardsTool regenerates the auto-generated sections of the
// common mistakes and standards documents from recent validation data.
type UpdateStandardsTool struct {
	source IssueSource

	// CommonMistakesPath and StandardsPath locate the documents to
	// update. Both default to files in the working directory.
	CommonMistakesPath string
	StandardsPath      string
}

// NewUpdateStandardsTool creates an update_standards tool.
func NewUpdateStandardsTool(source IssueSource) *UpdateStandardsTool {
	return &UpdateStandardsTool{
		source:             source,
		CommonMistakesPath: "common_mistakes.md",
		StandardsPath:      "standards.md",
	}
}

func (t *UpdateStandardsTool) Name() string {
	return "update_standards"
}

func (t *UpdateStandardsTool) Description() string {
	return "Analyze recurring validation failures and refresh the auto-generated sections of the standards documentation."
}

func (t *UpdateStandardsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"min_occurrences": {
				"type": "integer",
				"description": "Minimum repeated occurrences required to flag an issue (default 3)",
				"default": 3
			},
			"dry_run": {
				"type": "boolean",
				"description": "Return the suggested updates without modifying files"
			}
		}
	}`)
}

func (t *UpdateStandardsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		MinOccurrences int  `json:"min_occurrences"`
		DryRun         bool `json:"dry_run"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.MinOccurrences <= 0 {
		input.MinOccurrences = 3
	}

	issues, err := t.source.FrequentIssues(ctx, input.MinOccurrences)
	if err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error fetching validation history: %v", err),
			IsError: true,
		}, nil
	}

	table := BuildCommonIssuesTable(issues)
	suggestions := BuildSuggestions(issues)

	if input.DryRun {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Common Issues Table:\n\n%s\n\nSuggested Standards:\n\n%s", table, suggestions),
		}, nil
	}

	if err := UpdateMarkdownSection(t.CommonMistakesPath, commonMarkerStart, commonMarkerEnd, table); err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error updating %s: %v", t.CommonMistakesPath, err),
			IsError: true,
		}, nil
	}
	if err := UpdateMarkdownSection(t.StandardsPath, suggestionsMarkerStart, suggestionsMarkerEnd, suggestions); err != nil {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error updating %s: %v", t.StandardsPath, err),
			IsError: true,
		}, nil
	}

	return &agent.ToolOutput{
		Content: fmt.Sprintf("Documentation updated: %d recurring issues documented.", len(issues)),
	}, nil
}
