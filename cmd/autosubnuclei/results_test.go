package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/report"
	"github.com/autosubnuclei/autosubnuclei/internal/scanner"
)

// writeResultsFile writes a results artifact for a domain under a temp
// output root and returns the root.
func writeResultsFile(t *testing.T, domain string, lines []string) string {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, domain)
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("failed to create output dir: %v", err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, scanner.ResultsFile), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write results file: %v", err)
	}
	return root
}

// TestNewResultsCmd tests the results command creation.
func TestNewResultsCmd(t *testing.T) {
	t.Parallel()

	cmd := NewResultsCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "results [domain]" {
			t.Errorf("expected use 'results [domain]', got %q", cmd.Use)
		}
	})

	t.Run("has flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"output", "severities", "json"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q", name)
			}
		}
	})
}

// TestRunResultsCmd tests the results command end to end on disk
// artifacts.
func TestRunResultsCmd(t *testing.T) {
	t.Parallel()

	lines := []string{
		"[exposed-panel] [http] [high] https://admin.example.com",
		"[tls-version] [ssl] [info] https://www.example.com",
		"[sqli] [http] [critical] https://api.example.com",
	}

	t.Run("groups findings by severity", func(t *testing.T) {
		t.Parallel()

		root := writeResultsFile(t, "example.com", lines)

		cmd := NewResultsCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--output", root, "example.com"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("results command failed: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "Findings for example.com (3)") {
			t.Errorf("expected findings header, got %q", out)
		}
		// Critical leads the output.
		criticalAt := strings.Index(out, "CRITICAL")
		infoAt := strings.Index(out, "INFO")
		if criticalAt < 0 || infoAt < 0 || criticalAt > infoAt {
			t.Errorf("expected critical section before info, got %q", out)
		}
	})

	t.Run("severity filter", func(t *testing.T) {
		t.Parallel()

		root := writeResultsFile(t, "example.com", lines)

		cmd := NewResultsCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--output", root, "--severities", "critical", "example.com"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("results command failed: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "sqli") {
			t.Errorf("expected critical finding, got %q", out)
		}
		if strings.Contains(out, "tls-version") {
			t.Errorf("expected info finding filtered out, got %q", out)
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		root := writeResultsFile(t, "example.com", lines)

		cmd := NewResultsCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--output", root, "--json", "example.com"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("results command failed: %v", err)
		}

		var rep report.Report
		if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
			t.Fatalf("failed to decode JSON output: %v", err)
		}
		if len(rep.Findings) != 3 {
			t.Errorf("expected 3 findings, got %d", len(rep.Findings))
		}
		if rep.Summary == nil || rep.Summary.Domain != "example.com" {
			t.Errorf("expected summary for example.com, got %+v", rep.Summary)
		}
		if rep.Summary != nil && rep.Summary.VulnerabilitiesFound != 3 {
			t.Errorf("expected 3 vulnerabilities in summary, got %d", rep.Summary.VulnerabilitiesFound)
		}
	})

	t.Run("no results file", func(t *testing.T) {
		t.Parallel()

		cmd := NewResultsCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--output", t.TempDir(), "example.com"})
		err := cmd.Execute()
		if err == nil {
			t.Fatal("expected error for missing results file")
		}
		if !strings.Contains(err.Error(), "no results found") {
			t.Errorf("expected missing-results message, got %v", err)
		}
	})

	t.Run("empty results file", func(t *testing.T) {
		t.Parallel()

		root := writeResultsFile(t, "example.com", nil)

		cmd := NewResultsCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--output", root, "example.com"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("results command failed: %v", err)
		}
		if !strings.Contains(buf.String(), "No findings") {
			t.Errorf("expected no-findings message, got %q", buf.String())
		}
	})
}

// TestFilterFindings tests severity filtering.
func TestFilterFindings(t *testing.T) {
	t.Parallel()

	findings := []model.Finding{
		{TemplateID: "a", Severity: model.SeverityInfo},
		{TemplateID: "b", Severity: model.SeverityHigh},
		{TemplateID: "c", Severity: model.SeverityHigh},
	}

	t.Run("nil filter keeps everything", func(t *testing.T) {
		t.Parallel()
		if got := filterFindings(findings, nil); len(got) != 3 {
			t.Errorf("expected 3 findings, got %d", len(got))
		}
	})

	t.Run("filter selects matching severities", func(t *testing.T) {
		t.Parallel()
		got := filterFindings(findings, []model.Severity{model.SeverityHigh})
		if len(got) != 2 {
			t.Fatalf("expected 2 findings, got %d", len(got))
		}
		for _, f := range got {
			if f.Severity != model.SeverityHigh {
				t.Errorf("expected only high findings, got %s", f.Severity)
			}
		}
	})

	t.Run("filter with no matches is empty", func(t *testing.T) {
		t.Parallel()
		if got := filterFindings(findings, []model.Severity{model.SeverityCritical}); len(got) != 0 {
			t.Errorf("expected no findings, got %d", len(got))
		}
	})
}
