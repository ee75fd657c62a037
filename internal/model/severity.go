package model

import (
	"fmt"
	"strings"
)

// Severity represents the risk level of a vulnerability finding.
// The values match the severity labels used by the scanning tool, so
// they pass through unchanged to command-line flags and JSON documents.
//
// Design decision: We use a string-backed type rather than iota constants
// because severities cross three boundaries in their textual form: the
// -severity CLI flag of the external scanner, the bracketed tags in its
// output lines, and the persisted checkpoint/history documents. Keeping
// the wire form as the Go value avoids lossy mapping at each boundary.
type Severity string

const (
	// SeverityInfo indicates informational findings with no direct impact.
	SeverityInfo Severity = "info"

	// SeverityLow indicates minor issues with limited impact.
	SeverityLow Severity = "low"

	// SeverityMedium indicates moderate issues that warrant attention.
	SeverityMedium Severity = "medium"

	// SeverityHigh indicates serious issues that should be fixed promptly.
	SeverityHigh Severity = "high"

	// SeverityCritical indicates severe issues requiring immediate action.
	SeverityCritical Severity = "critical"
)

// severityRank orders severities from least to most severe.
// Used for sorting report sections and for threshold comparisons.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ValidSeverities returns all recognized severity levels ordered from
// least to most severe.
func ValidSeverities() []Severity {
	return []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// DefaultSeverities returns the severity levels scanned when the user
// does not specify any. Info findings are excluded by default because
// they dominate output volume without indicating exploitable issues.
func DefaultSeverities() []Severity {
	return []Severity{SeverityMedium, SeverityHigh, SeverityCritical}
}

// ParseSeverity converts a string into a Severity.
// Matching is case-insensitive and surrounding whitespace is ignored.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q (valid: %s)", s, JoinSeverities(ValidSeverities()))
	}
	return sev, nil
}

// ParseSeverities parses a comma-separated severity list such as
// "high,critical". Empty elements are skipped; an empty result is an error.
func ParseSeverities(s string) ([]Severity, error) {
	var out []Severity
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sev, err := ParseSeverity(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sev)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no severities given")
	}
	return out, nil
}

// JoinSeverities renders severities as the comma-separated form expected
// by the scanning tool's -severity flag.
func JoinSeverities(sevs []Severity) string {
	parts := make([]string, len(sevs))
	for i, s := range sevs {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// Valid reports whether the severity is one of the recognized levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the ordering of the severity from 0 (info) to 4 (critical).
// Unknown severities rank below info so they sort last in reports.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// String returns the upper-case display form of the severity.
func (s Severity) String() string {
	return strings.ToUpper(string(s))
}
