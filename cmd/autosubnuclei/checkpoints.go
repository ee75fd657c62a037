package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/tool"
)

// NewCheckpointsCmd creates the checkpoints command.
func NewCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints [domain]",
		Short: "Inspect a scan's checkpoint",
		Long: `Checkpoints shows the state of a domain's scan checkpoint: overall
status, per-phase progress, statistics, the recorded tool environment,
and any integrity issues.

The checkpoint is read without taking the advisory lock, so this is
safe to run while a scan is in progress; the view may be a moment
stale.

Examples:
  # Inspect the checkpoint for a domain
  autosubnuclei checkpoints example.com

  # Compare the recorded tool versions against the current toolchain
  autosubnuclei checkpoints --check-env example.com

  # Dump the raw checkpoint document as JSON
  autosubnuclei checkpoints --json example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckpointsCmd,
	}

	cmd.Flags().StringP("output", "o", "output",
		"Output directory root the scan wrote to")
	cmd.Flags().Bool("check-env", false,
		"Probe the installed tools and report version drift")
	cmd.Flags().BoolP("json", "j", false,
		"Output the checkpoint document in JSON format")

	return cmd
}

// runCheckpointsCmd executes the checkpoints command.
func runCheckpointsCmd(cmd *cobra.Command, args []string) error {
	domain := strings.ToLower(strings.TrimSpace(args[0]))

	outputDir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	checkEnv, err := cmd.Flags().GetBool("check-env")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(domain, filepath.Join(outputDir, domain))
	if err := store.Load(""); err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return fmt.Errorf("no checkpoint found for %s", domain)
		}
		return err
	}

	doc := store.Document()

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	}

	printCheckpoint(cmd, doc)

	if _, issues := store.VerifyIntegrity(); len(issues) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nIntegrity issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(cmd.OutOrStdout(), "  ! %s\n", issue)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'autosubnuclei resume' to repair and continue the scan.")
	}

	if checkEnv {
		printEnvironmentDrift(cmd, store)
	}

	return nil
}

// printCheckpoint renders the checkpoint document as tables.
func printCheckpoint(cmd *cobra.Command, doc *checkpoint.Document) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Checkpoint for %s\n", doc.Domain)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Scan ID:     %s\n", doc.ScanID)
	fmt.Fprintf(out, "Status:      %s\n", displayName(string(doc.Status)))
	fmt.Fprintf(out, "Started:     %s\n", doc.StartTime)
	fmt.Fprintf(out, "Last update: %s\n", doc.LastUpdate)

	fmt.Fprintln(out, "\nPhases:")
	fmt.Fprintf(out, "  %-24s  %-12s  %9s  %8s\n", "Phase", "Status", "Progress", "Results")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, phase := range checkpoint.Phases() {
		state := doc.Phases[phase]
		if state == nil {
			fmt.Fprintf(out, "  %-24s  %-12s  %9s  %8s\n", displayName(string(phase)), "missing", "-", "-")
			continue
		}
		fmt.Fprintf(out, "  %-24s  %-12s  %8d%%  %8d\n",
			displayName(string(phase)),
			displayName(string(state.Status)),
			state.ProgressValue(),
			state.ResultsCountValue(),
		)
	}

	fmt.Fprintln(out, "\nStatistics:")
	for _, key := range []string{
		checkpoint.StatSubdomainsFound,
		checkpoint.StatAliveSubdomains,
		checkpoint.StatVulnerabilitiesFound,
	} {
		fmt.Fprintf(out, "  %-24s  %d\n", displayName(key), doc.Statistics[key])
	}

	if doc.Environment != nil && len(doc.Environment.ToolVersions) > 0 {
		fmt.Fprintln(out, "\nRecorded environment:")
		for _, name := range tool.Names() {
			if v, ok := doc.Environment.ToolVersions[name]; ok {
				fmt.Fprintf(out, "  %-24s  %s\n", name, v)
			}
		}
		if doc.Environment.TemplatesHash != "" {
			fmt.Fprintf(out, "  %-24s  %s\n", "templates hash", doc.Environment.TemplatesHash)
		}
	}
}

// printEnvironmentDrift probes the installed tools and reports the
// differences against the checkpoint's recorded environment.
func printEnvironmentDrift(cmd *cobra.Command, store *checkpoint.Store) {
	out := cmd.OutOrStdout()

	runner := tool.NewExecRunner(tool.NewRegistry(""))
	current := tool.Versions(context.Background(), runner)

	ok, drift := store.ValidateEnvironment(current)
	if ok {
		fmt.Fprintln(out, "\nEnvironment matches the recorded tool versions.")
		return
	}

	fmt.Fprintf(out, "\nEnvironment drift (%d):\n", len(drift))
	for _, d := range drift {
		fmt.Fprintf(out, "  ~ %s\n", d)
	}
	fmt.Fprintln(out, "\nResuming is still possible; results across the drift may not be comparable.")
}

// titleCaser renders snake_case identifiers as display labels.
var titleCaser = cases.Title(language.English)

// displayName turns an identifier like "subdomain_enumeration" into
// "Subdomain Enumeration" for table output.
func displayName(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}
