package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter outputs human-readable text reports.
// This is the format of the scan_report.txt artifact.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether severity sections with no findings
	// are shown.
	showEmpty bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty severity sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given
// writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	s := report.Summary
	bar := strings.Repeat("=", 60)

	sb.WriteString(bar + "\n")
	sb.WriteString(fmt.Sprintf("Scan Report: %s\n", s.Domain))
	sb.WriteString(bar + "\n")
	sb.WriteString(fmt.Sprintf("Scan ID:    %s\n", s.ScanID))
	sb.WriteString(fmt.Sprintf("Status:     %s\n", s.Status))
	sb.WriteString(fmt.Sprintf("Started:    %s\n", s.StartTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", s.Duration.Round(time.Second)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Subdomains found:      %d\n", s.SubdomainsFound))
	sb.WriteString(fmt.Sprintf("Alive subdomains:      %d\n", s.AliveSubdomains))
	sb.WriteString(fmt.Sprintf("Vulnerabilities found: %d\n", s.VulnerabilitiesFound))

	if len(report.Findings) == 0 {
		sb.WriteString("\nNo findings.\n")
		return io.WriteString(w.output, sb.String())
	}

	for _, bucket := range bucketBySeverity(report.Findings) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("--- %s (%d) ---\n", bucket.Severity, len(bucket.Findings)))
		for _, f := range bucket.Findings {
			sb.WriteString("  " + f.Raw + "\n")
		}
	}

	return io.WriteString(w.output, sb.String())
}
