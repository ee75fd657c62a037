package model

import (
	"strings"
	"time"
)

// Finding is a single vulnerability finding reported by the scanning tool.
// Only the severity tag and the target are extracted from each output
// line; the rest of the line is carried verbatim. Deeper interpretation
// of tool output is deliberately out of scope.
type Finding struct {
	// TemplateID identifies the check that produced the finding,
	// taken from the first bracketed field of the output line.
	TemplateID string `json:"template_id"`

	// Severity is the bracketed severity tag, or SeverityInfo when the
	// line carries no recognizable tag.
	Severity Severity `json:"severity"`

	// Target is the host or URL the finding applies to.
	Target string `json:"target"`

	// Raw is the unmodified output line.
	Raw string `json:"raw"`
}

// ParseFindingLine extracts a Finding from one line of scanner output.
// Lines have the shape "[template-id] [protocol] [severity] target ...".
// It returns false for blank lines and comment lines. Malformed lines
// still count as findings (severity info) so result totals stay honest.
func ParseFindingLine(line string) (Finding, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Finding{}, false
	}

	f := Finding{Severity: SeverityInfo, Raw: trimmed}

	rest := trimmed
	var fields []string
	for strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			break
		}
		fields = append(fields, rest[1:end])
		rest = strings.TrimSpace(rest[end+1:])
	}

	if len(fields) > 0 {
		f.TemplateID = fields[0]
	}
	for _, field := range fields[min(1, len(fields)):] {
		if sev, err := ParseSeverity(field); err == nil {
			f.Severity = sev
			break
		}
	}
	if rest != "" {
		f.Target = strings.Fields(rest)[0]
	}

	return f, true
}

// ScanSummary is the condensed record of one scan, persisted to the
// history database and displayed by the history command.
type ScanSummary struct {
	// ScanID uniquely identifies the scan (domain + timestamp + hash).
	ScanID string `json:"scan_id"`

	// Domain is the root domain that was scanned.
	Domain string `json:"domain"`

	// Status is the terminal status of the scan.
	Status string `json:"status"`

	// StartTime is when the scan began.
	StartTime time.Time `json:"start_time"`

	// Duration is the total wall-clock scan time.
	Duration time.Duration `json:"duration"`

	// SubdomainsFound is the number of subdomains discovered.
	SubdomainsFound int `json:"subdomains_found"`

	// AliveSubdomains is the number of subdomains that responded.
	AliveSubdomains int `json:"alive_subdomains"`

	// VulnerabilitiesFound is the number of findings reported.
	VulnerabilitiesFound int `json:"vulnerabilities_found"`
}
