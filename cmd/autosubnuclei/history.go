package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autosubnuclei/autosubnuclei/internal/config"
	"github.com/autosubnuclei/autosubnuclei/internal/database"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "List past scans from the history database",
		Long: `History lists completed scans recorded in the local scan database.

Without an argument it lists scans across all domains; with a domain
argument it lists only that domain's scans, newest first.

Examples:
  # List the last 20 scans
  autosubnuclei history

  # List scans for one domain
  autosubnuclei history example.com

  # Show the 5 most recent scans as JSON
  autosubnuclei history --limit 5 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of scans to list")
	cmd.Flags().BoolP("json", "j", false,
		"Output scan history in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var domain string
	if len(args) > 0 {
		domain = strings.ToLower(strings.TrimSpace(args[0]))
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	scans, err := db.RecentScans(context.Background(), domain, limit)
	if err != nil {
		return fmt.Errorf("failed to list scan history: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(scans)
	}

	printScanHistory(cmd.OutOrStdout(), domain, scans)
	return nil
}

// printScanHistory renders scan summaries as a table, newest first.
func printScanHistory(out io.Writer, domain string, scans []model.ScanSummary) {
	if len(scans) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No scan history found for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No scan history found.")
		}
		fmt.Fprintln(out, "\nUse 'autosubnuclei scan <domain>' to run a scan.")
		return
	}

	fmt.Fprintf(out, "Scan history (%d scans):\n\n", len(scans))
	fmt.Fprintf(out, "  %-28s  %-19s  %-10s  %-9s  %6s  %6s  %6s\n",
		"Domain", "Started", "Status", "Duration", "Subs", "Alive", "Vulns")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 95))

	for _, scan := range scans {
		fmt.Fprintf(out, "  %-28s  %-19s  %-10s  %-9s  %6d  %6d  %6d\n",
			scan.Domain,
			scan.StartTime.Format("2006-01-02 15:04:05"),
			scan.Status,
			scan.Duration.Round(time.Second),
			scan.SubdomainsFound,
			scan.AliveSubdomains,
			scan.VulnerabilitiesFound,
		)
	}

	fmt.Fprintln(out, "\nUse 'autosubnuclei results <domain>' to inspect a scan's findings.")
}
