// Package sarif models the slice of the SARIF schema the analysis engine
// emits and merges many per-file reports into one deduplicated report.
package sarif

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// SchemaURI is the schema reference written into merged reports.
const SchemaURI = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

// Version is the SARIF version written into merged reports.
const Version = "2.1.0"

// Report is a SARIF document.
type Report struct {
	Schema  string `json:"$schema,omitempty"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run is one tool run within a report. Tool metadata is carried opaquely so
// merging preserves whatever the analysis engine wrote.
type Run struct {
	Tool    json.RawMessage `json:"tool,omitempty"`
	Results []Result        `json:"results"`
}

// Result is one finding.
type Result struct {
	RuleID    string     `json:"ruleId"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations"`
}

// Message carries the finding text.
type Message struct {
	Text string `json:"text"`
}

// Location wraps the physical location of a finding.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation is a file plus a region within it.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation identifies the file a finding refers to.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is the position of a finding within its file.
type Region struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
}

// dedupKey identifies a finding. Two results with equal keys are the same
// finding regardless of which report contributed them.
type dedupKey struct {
	uri     string
	ruleID  string
	line    int
	column  int
	message string
}

// Load parses one SARIF report from disk.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnostic log %s: %w", path, err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse diagnostic log %s: %w", path, err)
	}
	return &report, nil
}

// Merge combines the reports at the given paths into one single-run report.
// The first non-null tool block encountered becomes the merged report's tool
// metadata. Every result must carry a rule, message, and fully resolved
// location; a malformed result aborts the merge. Duplicate findings, keyed
// by (file, rule, line, column, message) across the whole run, are dropped;
// the first occurrence wins and keeps its encounter order.
func Merge(paths []string) (*Report, error) {
	merged := &Report{
		Schema:  SchemaURI,
		Version: Version,
		Runs:    []Run{{Results: []Result{}}},
	}

	seen := make(map[dedupKey]bool)

	for _, path := range paths {
		report, err := Load(path)
		if err != nil {
			return nil, err
		}

		for _, run := range report.Runs {
			if merged.Runs[0].Tool == nil && !isNullRaw(run.Tool) {
				merged.Runs[0].Tool = run.Tool
			}

			for _, result := range run.Results {
				if err := validateResult(result); err != nil {
					return nil, fmt.Errorf("malformed finding in %s: %w", path, err)
				}

				key := dedupKey{
					uri:     result.Locations[0].PhysicalLocation.ArtifactLocation.URI,
					ruleID:  result.RuleID,
					line:    result.Locations[0].PhysicalLocation.Region.StartLine,
					column:  result.Locations[0].PhysicalLocation.Region.StartColumn,
					message: result.Message.Text,
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				merged.Runs[0].Results = append(merged.Runs[0].Results, result)
			}
		}
	}

	return merged, nil
}

// validateResult rejects partial or garbled findings. Dropping them silently
// would hide analysis output, so malformedness is a fatal input error.
func validateResult(result Result) error {
	if result.RuleID == "" {
		return fmt.Errorf("finding with message %q has no ruleId", result.Message.Text)
	}
	if result.Message.Text == "" {
		return fmt.Errorf("finding for rule %s has no message", result.RuleID)
	}
	if len(result.Locations) == 0 {
		return fmt.Errorf("finding for rule %s (%q) has no location", result.RuleID, result.Message.Text)
	}
	loc := result.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI == "" {
		return fmt.Errorf("finding for rule %s (%q) has no file URI", result.RuleID, result.Message.Text)
	}
	if loc.Region.StartLine < 1 || loc.Region.StartColumn < 1 {
		return fmt.Errorf("finding for rule %s (%q) has an unresolved region %d:%d", result.RuleID, result.Message.Text, loc.Region.StartLine, loc.Region.StartColumn)
	}
	return nil
}

// Write serializes the report to the output path.
func Write(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode merged report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write merged report %s: %w", path, err)
	}
	return nil
}

func isNullRaw(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
