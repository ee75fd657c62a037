package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report.Summary)
	w.writeSummary(md, report.Findings)
	w.writeFindings(md, report.Findings)

	md.HorizontalRule()
	md.PlainText("Generated by autosubnuclei")

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.ScanSummary) {
	md.H1("Scan Report: " + s.Domain)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Scan ID", "`" + s.ScanID + "`"},
			{"Status", s.Status},
			{"Started", s.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration.Round(time.Second).String()},
			{"Subdomains found", strconv.Itoa(s.SubdomainsFound)},
			{"Alive subdomains", strconv.Itoa(s.AliveSubdomains)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the severity summary table.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, findings []model.Finding) {
	md.H2("Severity Summary")
	md.PlainText("")

	counts := make(map[model.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}

	rows := [][]string{
		{"🔴 Critical", strconv.Itoa(counts[model.SeverityCritical])},
		{"🟠 High", strconv.Itoa(counts[model.SeverityHigh])},
		{"🟡 Medium", strconv.Itoa(counts[model.SeverityMedium])},
		{"🔵 Low", strconv.Itoa(counts[model.SeverityLow])},
		{"⚪ Info", strconv.Itoa(counts[model.SeverityInfo])},
		{"**Total**", "**" + strconv.Itoa(len(findings)) + "**"},
	}
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFindings writes one section per severity, most severe first.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, findings []model.Finding) {
	if len(findings) == 0 {
		md.H2("Findings")
		md.PlainText("No findings.")
		md.PlainText("")
		return
	}

	for _, bucket := range bucketBySeverity(findings) {
		md.H2(bucket.Severity.String() + " (" + strconv.Itoa(len(bucket.Findings)) + ")")
		for _, f := range bucket.Findings {
			md.BulletList("`" + f.Raw + "`")
		}
		md.PlainText("")
	}
}
