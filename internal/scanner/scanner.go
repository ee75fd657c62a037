package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/autosubnuclei/autosubnuclei/internal/cache"
	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/config"
	"github.com/autosubnuclei/autosubnuclei/internal/executor"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/notify"
	"github.com/autosubnuclei/autosubnuclei/internal/tool"
)

// Orchestrator drives one scan through the three pipeline phases.
// It is single-use: create a fresh Orchestrator per scan or resume.
type Orchestrator struct {
	cfg      *config.Config
	store    *checkpoint.Store
	registry *tool.Registry
	runner   tool.Runner
	batches  *executor.BatchExecutor
	sizer    *executor.BatchSizer
	cache    *cache.Cache
	notifier notify.Notifier
	logger   *slog.Logger

	state    *State
	resuming bool

	// findings collects parsed vulnerability-scan output for report
	// generation after the pipeline finishes.
	findings []model.Finding
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner substitutes the tool runner, for tests.
func WithRunner(r tool.Runner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// WithStore substitutes the checkpoint store.
func WithStore(s *checkpoint.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithCache substitutes the result cache.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithSizer substitutes the batch sizer, for tests.
func WithSizer(s *executor.BatchSizer) Option {
	return func(o *Orchestrator) {
		o.sizer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator for cfg. Collaborators not overridden by
// options are wired from the configuration.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:   cfg,
		state: NewState(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	outputDir := cfg.DomainOutputDir()

	var toolsDir string
	if cfg.Settings != nil {
		toolsDir = cfg.Settings.ToolsDir
	}
	o.registry = tool.NewRegistry(toolsDir)

	if o.runner == nil {
		o.runner = tool.NewExecRunner(o.registry,
			tool.WithTimeout(cfg.ToolTimeout),
			tool.WithRunnerLogger(o.logger),
		)
	}
	if o.store == nil {
		o.store = checkpoint.NewStore(cfg.Domain, outputDir,
			checkpoint.WithLockTiming(cfg.LockTimeout, cfg.LockPollInterval),
			checkpoint.WithStoreLogger(o.logger),
		)
	}
	if o.cache == nil && cfg.CacheEnabled {
		o.cache = cache.New(config.XDGCacheDir(), cfg.CacheTTL, cache.WithLogger(o.logger))
	}
	if o.sizer == nil {
		o.sizer = executor.NewBatchSizer(cfg.MemoryThresholdMB, executor.WithSizerLogger(o.logger))
	}
	o.batches = executor.New(o.runner, o.store,
		executor.WithScratchDir(filepath.Join(outputDir, "scratch")),
		executor.WithLogger(o.logger),
	)

	return o
}

// State returns the transient scan state for progress polling.
func (o *Orchestrator) State() *State {
	return o.state
}

// Store returns the checkpoint store backing this scan.
func (o *Orchestrator) Store() *checkpoint.Store {
	return o.store
}

// Findings returns the parsed vulnerability findings after the
// pipeline finished.
func (o *Orchestrator) Findings() []model.Finding {
	return o.findings
}

// Scan runs a fresh scan from the beginning: verify the tool chain,
// snapshot the environment, initialize the checkpoint, and drive the
// phases. Cache and backup retention are enforced up front so growth
// stays bounded without a separate maintenance command.
func (o *Orchestrator) Scan(ctx context.Context) error {
	o.state.setStage(StageInitializing)
	o.writeStateSnapshot()

	if _, err := o.registry.ResolveRequired(); err != nil {
		o.state.setError(err)
		o.writeStateSnapshot()
		return err
	}

	if o.cache != nil {
		if err := o.cache.Prune(config.DefaultMaxCacheEntries); err != nil {
			o.logger.Warn("cache prune failed", "error", err)
		}
	}
	if err := o.store.CleanupOld(config.DefaultMaxBackups); err != nil {
		o.logger.Warn("backup cleanup failed", "error", err)
	}

	versions := tool.Versions(ctx, o.runner)
	if err := o.store.Initialize(ctx, versions); err != nil {
		o.state.setError(err)
		o.writeStateSnapshot()
		return err
	}

	if o.cfg.TemplatesPath != "" {
		hash, err := HashTemplates(o.cfg.TemplatesPath)
		if err != nil {
			o.logger.Warn("could not fingerprint templates", "path", o.cfg.TemplatesPath, "error", err)
		} else if err := o.store.SetTemplatesHash(ctx, hash); err != nil {
			return err
		}
	}

	return o.run(ctx)
}

// Resume continues an interrupted scan from its checkpoint: load,
// verify (repairing missing-field damage), back up the pre-resume
// state, check environment drift, and re-enter the pipeline. Completed
// phases are skipped via their artifacts; a partially finished batched
// phase restarts at its recorded batch offset.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.state.setStage(StageInitializing)
	o.writeStateSnapshot()

	if err := o.store.Load(""); err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return fmt.Errorf("%w: %s", ErrNotResumable, o.cfg.Domain)
		}
		return err
	}

	if summary, serr := o.store.Summary(); serr == nil && summary.Status == checkpoint.ScanCompleted {
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, summary.ScanID)
	}

	if ok, issues := o.store.VerifyIntegrity(); !ok {
		for _, issue := range issues {
			if strings.HasPrefix(issue, "domain mismatch") {
				// Repair only synthesizes missing data; it must never
				// reinterpret someone else's checkpoint as ours.
				return fmt.Errorf("%w: %s", ErrCheckpointUnrepairable, issue)
			}
		}
		o.logger.Warn("checkpoint integrity issues, attempting repair", "issues", issues)
		if err := o.store.Repair(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrCheckpointUnrepairable, err)
		}
		if ok, issues := o.store.VerifyIntegrity(); !ok {
			return fmt.Errorf("%w: %v", ErrCheckpointUnrepairable, issues)
		}
	}

	if err := o.store.CreateBackup(ctx); err != nil {
		o.logger.Warn("could not back up checkpoint before resume", "error", err)
	}
	if err := o.store.CleanupOld(config.DefaultMaxBackups); err != nil {
		o.logger.Warn("backup cleanup failed", "error", err)
	}

	if _, err := o.registry.ResolveRequired(); err != nil {
		o.state.setError(err)
		o.writeStateSnapshot()
		return err
	}

	if ok, drift := o.store.ValidateEnvironment(tool.Versions(ctx, o.runner)); !ok {
		// Advisory only. Results across the resume boundary may not be
		// comparable, but redoing completed phases would be worse.
		for _, d := range drift {
			o.logger.Warn("environment drift detected", "detail", d)
		}
	}

	if err := o.store.SetScanStatus(ctx, checkpoint.ScanInProgress); err != nil {
		return err
	}

	o.resuming = true
	return o.run(ctx)
}

// run drives the phases in their fixed order and renders the final
// verdict.
func (o *Orchestrator) run(ctx context.Context) error {
	subdomains, err := o.enumerate(ctx)
	if err != nil {
		return o.finish(ctx, err)
	}

	alive, err := o.probe(ctx, subdomains)
	if err != nil {
		return o.finish(ctx, err)
	}

	if err := o.scanVulnerabilities(ctx, alive); err != nil {
		return o.finish(ctx, err)
	}

	return o.finish(ctx, nil)
}

// finish persists the scan's final status and transient snapshot for
// every outcome, so a later resume always starts from consistent
// state.
func (o *Orchestrator) finish(ctx context.Context, runErr error) error {
	// The final persistence must happen even when the run context is
	// already cancelled.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		if err := o.store.SetScanStatus(finalCtx, checkpoint.ScanCompleted); err != nil {
			o.logger.Warn("could not record scan completion", "error", err)
		}
		o.state.setStage(StageCompleted)
		o.notifyf(finalCtx, "Scan Complete", "%s", o.summaryLine())
		o.logger.Info("scan completed", "domain", o.cfg.Domain)

	// A deadline on the scan context itself is an interruption like
	// Ctrl-C. A tool's own timeout fires while the scan context is
	// still live and falls through to the failure case below.
	case errors.Is(runErr, context.Canceled),
		errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() != nil:
		if err := o.store.SetScanStatus(finalCtx, checkpoint.ScanPaused); err != nil {
			o.logger.Warn("could not record scan pause", "error", err)
		}
		o.state.setStage(StagePaused)
		o.notifyf(finalCtx, "Scan Paused", "%s: interrupted, resume to continue", o.cfg.Domain)
		o.logger.Info("scan paused", "domain", o.cfg.Domain)

	default:
		if err := o.store.SetScanStatus(finalCtx, checkpoint.ScanFailed); err != nil {
			o.logger.Warn("could not record scan failure", "error", err)
		}
		o.state.setError(runErr)
		o.notifyf(finalCtx, "Scan Failed", "%s: %v", o.cfg.Domain, runErr)
		o.logger.Error("scan failed", "domain", o.cfg.Domain, "error", runErr)
	}

	o.writeStateSnapshot()
	return runErr
}

// Summary builds the scan's result summary from the checkpoint.
func (o *Orchestrator) Summary() (*model.ScanSummary, error) {
	cs, err := o.store.Summary()
	if err != nil {
		return nil, err
	}

	snap := o.state.Snapshot()
	return &model.ScanSummary{
		ScanID:               cs.ScanID,
		Domain:               cs.Domain,
		Status:               string(cs.Status),
		StartTime:            snap.StartTime,
		Duration:             snap.Duration,
		SubdomainsFound:      snap.Subdomains,
		AliveSubdomains:      snap.Alive,
		VulnerabilitiesFound: snap.Vulnerable,
	}, nil
}

func (o *Orchestrator) summaryLine() string {
	snap := o.state.Snapshot()
	return fmt.Sprintf("%s: %d subdomains, %d alive, %d findings in %s",
		o.cfg.Domain, snap.Subdomains, snap.Alive, snap.Vulnerable,
		snap.Duration.Round(time.Second))
}

// notifyf delivers a best-effort notification. Failures are logged and
// swallowed.
func (o *Orchestrator) notifyf(ctx context.Context, title, format string, args ...any) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, title, fmt.Sprintf(format, args...)); err != nil {
		o.logger.Warn("notification failed", "title", title, "error", err)
	}
}

func (o *Orchestrator) writeStateSnapshot() {
	if err := o.state.WriteFile(o.cfg.DomainOutputDir()); err != nil {
		o.logger.Warn("could not write state snapshot", "error", err)
	}
}
