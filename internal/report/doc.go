// Package report provides scan report generation and output.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable severity-bucketed text for
//     terminal display and the scan_report.txt artifact
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for documentation and sharing
//
// Design decision: We separate report writing from report data
// structures (which are in the model package) to follow the single
// responsibility principle. This allows adding new output formats
// without modifying the core data structures.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
