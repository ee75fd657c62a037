package report

import (
	"io"
	"sort"

	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// Report bundles everything a writer needs to render one scan.
type Report struct {
	// Summary is the condensed scan record.
	Summary *model.ScanSummary

	// Findings are the parsed vulnerability-scan results.
	Findings []model.Finding
}

// Writer defines the interface for report output.
// Implementations write scan results in various formats.
//
// Design decision: We use an interface to allow different output
// formats and destinations. This enables writing to files, stdout, or
// network connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *Report) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// bucketBySeverity groups findings by severity, most severe bucket
// first. Within a bucket the original tool-output order is preserved.
func bucketBySeverity(findings []model.Finding) []severityBucket {
	grouped := make(map[model.Severity][]model.Finding)
	for _, f := range findings {
		grouped[f.Severity] = append(grouped[f.Severity], f)
	}

	buckets := make([]severityBucket, 0, len(grouped))
	for sev, items := range grouped {
		buckets = append(buckets, severityBucket{Severity: sev, Findings: items})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Severity.Rank() > buckets[j].Severity.Rank()
	})
	return buckets
}

type severityBucket struct {
	Severity model.Severity
	Findings []model.Finding
}
