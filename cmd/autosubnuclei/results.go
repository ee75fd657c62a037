package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autosubnuclei/autosubnuclei/internal/config"
	"github.com/autosubnuclei/autosubnuclei/internal/database"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/report"
	"github.com/autosubnuclei/autosubnuclei/internal/scanner"
)

// NewResultsCmd creates the results command.
func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results [domain]",
		Short: "Show vulnerability findings from a finished scan",
		Long: `Results displays the findings recorded in a domain's results.txt
artifact, grouped by severity.

Examples:
  # Show all findings for a domain
  autosubnuclei results example.com

  # Show only high and critical findings
  autosubnuclei results -s high,critical example.com

  # Output findings as JSON
  autosubnuclei results --json example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runResultsCmd,
	}

	cmd.Flags().StringP("output", "o", "output",
		"Output directory root the scan wrote to")
	cmd.Flags().StringP("severities", "s", "",
		"Only show findings with these comma-separated severities")
	cmd.Flags().BoolP("json", "j", false,
		"Output findings in JSON format")

	return cmd
}

// runResultsCmd executes the results command.
func runResultsCmd(cmd *cobra.Command, args []string) error {
	domain := strings.ToLower(strings.TrimSpace(args[0]))

	outputDir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	severities, err := cmd.Flags().GetString("severities")
	if err != nil {
		return err
	}
	var filter []model.Severity
	if severities != "" {
		filter, err = model.ParseSeverities(severities)
		if err != nil {
			return err
		}
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// The results.txt artifact is authoritative; when it is gone (for
	// example the output directory was cleaned) the history database
	// still has the findings of the last recorded scan.
	resultsPath := filepath.Join(outputDir, domain, scanner.ResultsFile)
	findings, err := loadFindings(resultsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		findings, err = loadRecordedFindings(cmd.Context(), domain)
		if err != nil {
			return fmt.Errorf("no results found for %s (expected %s; run 'autosubnuclei scan' first)", domain, resultsPath)
		}
	}

	findings = filterFindings(findings, filter)

	if jsonOutput {
		w := report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint())
		_, err := w.Write(&report.Report{
			Summary: &model.ScanSummary{
				Domain:               domain,
				VulnerabilitiesFound: len(findings),
			},
			Findings: findings,
		})
		return err
	}

	printFindings(cmd, domain, findings)
	return nil
}

// loadRecordedFindings fetches the findings of the domain's most
// recent scan from the history database.
func loadRecordedFindings(ctx context.Context, domain string) ([]model.Finding, error) {
	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	scans, err := db.RecentScans(ctx, domain, 1)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, fmt.Errorf("no recorded scans for %s", domain)
	}
	return db.FindingsForScan(ctx, scans[0].ScanID)
}

// loadFindings parses the findings in a results artifact.
func loadFindings(path string) ([]model.Finding, error) {
	f, err := os.Open(path) //nolint:gosec // Results path is built from the output flag
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []model.Finding
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if finding, ok := model.ParseFindingLine(sc.Text()); ok {
			findings = append(findings, finding)
		}
	}
	return findings, sc.Err()
}

// filterFindings keeps findings whose severity is in the filter set.
// A nil filter keeps everything.
func filterFindings(findings []model.Finding, filter []model.Severity) []model.Finding {
	if len(filter) == 0 {
		return findings
	}
	keep := make(map[model.Severity]bool, len(filter))
	for _, s := range filter {
		keep[s] = true
	}
	var out []model.Finding
	for _, f := range findings {
		if keep[f.Severity] {
			out = append(out, f)
		}
	}
	return out
}

// printFindings renders findings grouped by severity, most severe first.
func printFindings(cmd *cobra.Command, domain string, findings []model.Finding) {
	out := cmd.OutOrStdout()

	if len(findings) == 0 {
		fmt.Fprintf(out, "No findings for %s.\n", domain)
		return
	}

	fmt.Fprintf(out, "Findings for %s (%d):\n", domain, len(findings))

	bySeverity := make(map[model.Severity][]model.Finding)
	for _, f := range findings {
		bySeverity[f.Severity] = append(bySeverity[f.Severity], f)
	}

	// Iterate severities in rank order so critical leads the output.
	ordered := model.ValidSeverities()
	for i := len(ordered) - 1; i >= 0; i-- {
		sev := ordered[i]
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s (%d):\n", sev.String(), len(group))
		for _, f := range group {
			fmt.Fprintf(out, "  %s\n", f.Raw)
		}
	}
}
