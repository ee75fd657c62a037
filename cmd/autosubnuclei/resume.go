package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/config"
)

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [domain]",
		Short: "Resume an interrupted scan from its checkpoint",
		Long: `Resume continues a paused or failed scan from its last checkpoint.

Completed phases are skipped entirely; a phase that was interrupted
mid-way restarts at its last completed batch, keeping the results of
batches that already ran.

Before resuming, the checkpoint is verified. Damage such as missing
fields is repaired after confirmation (--yes skips the prompt); a
checkpoint recorded for a different domain is never repaired.

Examples:
  # Resume the scan for a domain
  autosubnuclei resume example.com

  # Resume without prompting, repairing checkpoint damage if needed
  autosubnuclei resume --yes example.com

  # Resume with artifacts in a non-default output directory
  autosubnuclei resume -o /data/recon example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runResumeCmd,
	}

	addPipelineFlags(cmd)

	cmd.Flags().BoolP("yes", "y", false,
		"Repair checkpoint damage without asking")

	return cmd
}

// runResumeCmd executes the resume command.
func runResumeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(getPersistentBool(cmd, "verbose"), getPersistentBool(cmd, "log-json"))
	slog.SetDefault(logger)

	assumeYes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	// Preview the checkpoint before the orchestrator takes over, so
	// the operator decides about repairs instead of the pipeline.
	if err := confirmRepair(cmd.OutOrStdout(), cmd.InOrStdin(), cfg, assumeYes); err != nil {
		return err
	}

	return runPipeline(cmd.Context(), cfg, logger, true)
}

// confirmRepair loads the checkpoint read-only and, when integrity
// issues are found, asks the operator whether to repair and continue.
// The actual repair happens inside the resume pipeline; this only
// decides whether to proceed.
func confirmRepair(out io.Writer, in io.Reader, cfg *config.Config, assumeYes bool) error {
	store := checkpoint.NewStore(cfg.Domain, cfg.DomainOutputDir())
	if err := store.Load(""); err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return fmt.Errorf("no resumable scan found for %s (use 'autosubnuclei scan' to start one)", cfg.Domain)
		}
		return err
	}

	ok, issues := store.VerifyIntegrity()
	if ok {
		return nil
	}

	fmt.Fprintf(out, "Checkpoint for %s has integrity issues:\n", cfg.Domain)
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
		if strings.HasPrefix(issue, "domain mismatch") {
			return errors.New("checkpoint belongs to a different domain and cannot be repaired")
		}
	}

	if assumeYes {
		fmt.Fprintln(out, "Repairing and resuming (--yes).")
		return nil
	}

	fmt.Fprint(out, "Repair missing fields and resume? [y/N]: ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return errors.New("resume aborted")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errors.New("resume aborted")
}
