// Package main provides the entry point for the autosubnuclei CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for autosubnuclei.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autosubnuclei",
		Short: "Automated subdomain reconnaissance and vulnerability scanning",
		Long: `autosubnuclei chains subfinder, httpx, and nuclei into a resumable
reconnaissance pipeline: enumerate subdomains of a root domain, probe
them for liveness, and scan the live hosts for vulnerabilities.

Every batch of work is checkpointed, so a scan interrupted by Ctrl-C,
a crash, or a reboot continues from where it stopped:

  autosubnuclei scan example.com
  autosubnuclei resume example.com

Scan artifacts (subdomains.txt, alive.txt, results.txt and the report)
are written under <output>/<domain>/.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON for log aggregation")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewResultsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCheckpointsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
