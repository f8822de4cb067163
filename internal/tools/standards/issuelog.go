package standards

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// IssueRecord is one validation failure appended to the issue log by a
// validation run.
type IssueRecord struct {
	CheckName string `json:"check_name"`
	ItemName  string `json:"item_name,omitempty"`
	Details   string `json:"details,omitempty"`
}

// FileIssueSource aggregates recurring validation failures from a JSON
// Lines issue log, one IssueRecord per line. A missing log file reads as
// an empty history.
type FileIssueSource struct {
	Path string
}

// NewFileIssueSource creates an issue source over the log at path.
func NewFileIssueSource(path string) *FileIssueSource {
	return &FileIssueSource{Path: path}
}

// Append writes a validation failure to the log. Validation runs call this
// so the update_standards tool has history to aggregate.
func (s *FileIssueSource) Append(record IssueRecord) error {
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open issue log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// FrequentIssues counts failures per check name and returns those meeting
// the threshold, most frequent first. The sample details come from the
// first recorded occurrence of each check.
func (s *FileIssueSource) FrequentIssues(ctx context.Context, minOccurrences int) ([]FrequentIssue, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open issue log: %w", err)
	}
	defer f.Close()

	counts := map[string]int{}
	samples := map[string]string{}
	var order []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record IssueRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// Skip corrupt lines rather than losing the whole history.
			continue
		}
		if record.CheckName == "" {
			continue
		}
		if counts[record.CheckName] == 0 {
			order = append(order, record.CheckName)
			samples[record.CheckName] = record.Details
		}
		counts[record.CheckName]++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read issue log: %w", err)
	}

	var issues []FrequentIssue
	for _, name := range order {
		if counts[name] < minOccurrences {
			continue
		}
		issues = append(issues, FrequentIssue{
			CheckName:     name,
			Occurrences:   counts[name],
			SampleDetails: samples[name],
		})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Occurrences > issues[j].Occurrences
	})
	return issues, nil
}
