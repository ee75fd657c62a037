package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/config"
	"github.com/autosubnuclei/autosubnuclei/internal/database"
	"github.com/autosubnuclei/autosubnuclei/internal/log"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/notify"
	"github.com/autosubnuclei/autosubnuclei/internal/progress"
	"github.com/autosubnuclei/autosubnuclei/internal/report"
	"github.com/autosubnuclei/autosubnuclei/internal/scanner"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [domain]",
		Short: "Run the reconnaissance pipeline against a domain",
		Long: `Scan runs the full three-phase pipeline against a root domain:

1. Enumerate subdomains with subfinder
2. Probe them for liveness with httpx
3. Scan the live hosts for vulnerabilities with nuclei

Progress is checkpointed after every batch. Interrupt with Ctrl-C and
the scan pauses cleanly; 'autosubnuclei resume <domain>' picks it up
from the last completed batch.

Examples:
  # Scan a domain with default severities (medium,high,critical)
  autosubnuclei scan example.com

  # Scan all severities with a custom template bundle
  autosubnuclei scan -s info,low,medium,high,critical -T ./templates example.com

  # Limit probe concurrency and disable the enumeration cache
  autosubnuclei scan -C 4 --no-cache example.com

  # Use a custom settings file
  autosubnuclei scan -c mysettings.yaml example.com

Settings file (.autosubnuclei) example:
  discordWebhook: "https://discord.com/api/webhooks/..."
  notificationsEnabled: true
  defaultSeverities: [high, critical]
  defaultOutputDir: "/data/recon"`,
		Args: cobra.ExactArgs(1),
		RunE: runScanCmd,
	}

	addPipelineFlags(cmd)

	return cmd
}

// addPipelineFlags registers the flags shared by scan and resume.
func addPipelineFlags(cmd *cobra.Command) {
	// Pipeline behavior flags
	cmd.Flags().StringP("output", "o", "output",
		"Output directory root (artifacts go to <output>/<domain>/)")
	cmd.Flags().StringP("templates", "T", "",
		"Path to the nuclei template bundle directory")
	cmd.Flags().StringP("severities", "s", "",
		"Comma-separated severity levels passed to nuclei (default: medium,high,critical)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultToolTimeout,
		"Timeout for each external tool invocation")
	cmd.Flags().IntP("concurrency", "C", 0,
		"Maximum concurrent probe batches (0 = number of CPU cores)")
	cmd.Flags().Uint64P("memory-threshold", "m", config.DefaultMemoryThresholdMB,
		"Memory budget in MB for adaptive batch sizing")

	// Cache flags
	cmd.Flags().Bool("no-cache", false,
		"Disable the enumeration result cache")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"Maximum age of a cache entry before it is considered stale")

	// Side-channel flags
	cmd.Flags().Bool("no-notify", false,
		"Disable webhook notifications even if a webhook is configured")
	cmd.Flags().Bool("no-db", false,
		"Do not record the scan in the history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Settings file path (default: .autosubnuclei in current or home directory)")
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(getPersistentBool(cmd, "verbose"), getPersistentBool(cmd, "log-json"))
	slog.SetDefault(logger)

	return runPipeline(cmd.Context(), cfg, logger, false)
}

// getPersistentBool retrieves a boolean flag from the command or its
// root's persistent flags.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}

// buildConfig creates a Config from cobra command flags and the
// optional settings file. Flags override settings file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.New()

	var err error

	cfg.SettingsFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load the settings file. An explicitly specified path that does
	// not exist is an error; a missing default file is not.
	explicitSettingsPath := cfg.SettingsFilePath != ""
	settingsPath := config.FindSettingsFile(cfg.SettingsFilePath)
	if settingsPath != "" {
		cfg.Settings, err = config.LoadSettingsFile(settingsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", settingsPath, err)
		}
	} else if explicitSettingsPath {
		return nil, fmt.Errorf("settings file not found: %s", cfg.SettingsFilePath)
	}

	if sevs := cfg.Settings.Severities(); sevs != nil {
		cfg.Severities = sevs
	}

	cfg.OutputDir, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("output") && cfg.Settings != nil && cfg.Settings.DefaultOutputDir != "" {
		cfg.OutputDir = cfg.Settings.DefaultOutputDir
	}

	cfg.TemplatesPath, err = cmd.Flags().GetString("templates")
	if err != nil {
		return nil, err
	}

	severities, err := cmd.Flags().GetString("severities")
	if err != nil {
		return nil, err
	}
	if severities != "" {
		cfg.Severities, err = model.ParseSeverities(severities)
		if err != nil {
			return nil, err
		}
	}

	cfg.ToolTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.MemoryThresholdMB, err = cmd.Flags().GetUint64("memory-threshold")
	if err != nil {
		return nil, err
	}

	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return nil, err
	}
	cfg.CacheEnabled = !noCache

	cfg.CacheTTL, err = cmd.Flags().GetDuration("cache-ttl")
	if err != nil {
		return nil, err
	}

	noNotify, err := cmd.Flags().GetBool("no-notify")
	if err != nil {
		return nil, err
	}
	cfg.NotifyEnabled = !noNotify

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	// Positional argument: the root domain. URLs are rejected by
	// Validate; the caller must pass a bare domain name.
	cfg.Domain = strings.ToLower(strings.TrimSpace(args[0]))

	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// The sanitizing handler keeps webhook URLs and other credential-shaped
// values out of the log stream; jsonOutput selects the JSON handler for
// log aggregation.
func setupLogger(verbose, jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return log.NewJSONLogger(os.Stderr, verbose)
	}
	return log.NewLogger(os.Stderr, verbose)
}

// newNotifier builds the webhook notifier from settings, or nil when
// notifications are disabled or unconfigured.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.NotifyEnabled || cfg.Settings == nil {
		return nil
	}
	if !cfg.Settings.NotificationsEnabled || cfg.Settings.DiscordWebhook == "" {
		return nil
	}
	return notify.NewWebhookNotifier(cfg.Settings.DiscordWebhook, notify.WithLogger(logger))
}

// runPipeline drives a scan or resume to completion: signal handling,
// progress display, report output, and history persistence.
func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, resume bool) error {
	// Ctrl-C cancels the context; the orchestrator turns that into a
	// clean pause with the checkpoint left resumable.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := scanner.New(cfg,
		scanner.WithLogger(logger),
		scanner.WithNotifier(newNotifier(cfg, logger)),
	)

	// The monitor prints stage transitions while the pipeline runs.
	// It gets its own context so the final stage is still printed
	// after an interrupt cancels the scan context.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		progress.New(orch.State(), os.Stdout).Run(monitorCtx)
	}()

	var runErr error
	if resume {
		runErr = orch.Resume(ctx)
	} else {
		runErr = orch.Scan(ctx)
	}

	stopMonitor()
	wg.Wait()

	// A scan that never initialized its checkpoint has nothing to
	// report or record.
	if _, serr := orch.Store().Summary(); serr != nil {
		return runErr
	}

	summary, err := orch.Summary()
	if err != nil {
		logger.Warn("could not build scan summary", "error", err)
		return runErr
	}

	if err := outputReport(cfg, summary, orch.Findings()); err != nil {
		logger.Warn("could not write scan report", "error", err)
	}

	if cfg.SaveToDB && summary.Status == string(checkpoint.ScanCompleted) {
		if err := saveScanHistory(ctx, cfg, summary, orch.Findings()); err != nil {
			logger.Warn("could not record scan history", "error", err)
		}
	}

	return runErr
}

// outputReport writes the scan_report.txt and scan_report.md artifacts
// to the domain's output directory.
func outputReport(cfg *config.Config, summary *model.ScanSummary, findings []model.Finding) error {
	dir := cfg.DomainOutputDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	rep := &report.Report{Summary: summary, Findings: findings}

	txt, err := os.Create(filepath.Join(dir, scanner.ReportFile)) //nolint:gosec // Report path is built from scan output dir
	if err != nil {
		return err
	}
	defer txt.Close()
	if _, err := report.NewSimpleWriter(txt).Write(rep); err != nil {
		return err
	}

	md, err := os.Create(filepath.Join(dir, "scan_report.md")) //nolint:gosec // Report path is built from scan output dir
	if err != nil {
		return err
	}
	defer md.Close()
	_, err = report.NewMarkdownWriter(md).Write(rep)
	return err
}

// saveScanHistory records a completed scan in the history database.
func saveScanHistory(ctx context.Context, cfg *config.Config, summary *model.ScanSummary, findings []model.Finding) error {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.RecordScan(ctx, summary, findings)
	return err
}
