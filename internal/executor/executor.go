package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/tool"
)

// ProgressRecorder receives per-batch progress. checkpoint.Store
// satisfies it.
type ProgressRecorder interface {
	UpdateCheckpoint(ctx context.Context, phase checkpoint.Phase, state map[string]any) error
	UpdatePhaseStatus(ctx context.Context, phase checkpoint.Phase, status checkpoint.PhaseStatus, progress, resultsCount int) error
}

// Request describes one phase's batched tool run.
type Request struct {
	// Phase owns the checkpoint offsets this run records.
	Phase checkpoint.Phase

	// Tool is the registered tool name to invoke per batch.
	Tool string

	// Args builds the tool's argument list for one batch, given the
	// scratch input file (newline-delimited targets) and the output
	// file the tool must write results to.
	Args func(inputFile, outputFile string) []string

	// Targets is the full target list for the phase.
	Targets []string

	// BatchSize is the number of targets per batch.
	BatchSize int

	// Concurrency bounds in-flight batches. Zero or one means
	// sequential.
	Concurrency int

	// SkipBatches is the count of leading batches to skip, computed by
	// the resume path from the phase's recorded offsets.
	SkipBatches int

	// Persist writes the merged output of every batch completed so far
	// to the phase artifact. It runs before the batch watermark is
	// recorded, so an interrupted scan never checkpoints offsets for
	// results that only ever existed in memory. Nil skips persistence.
	Persist func(lines []string) error

	// ReclaimMemory requests an explicit memory-reclaim hint between
	// sequential batches, for tools with heavy per-process footprints.
	ReclaimMemory bool
}

// Result carries one phase's merged batch output. Lines are
// deduplicated across batches and sorted, so concurrent completion
// order never shows through.
type Result struct {
	// Lines is the merged output of all executed batches.
	Lines []string

	// BatchesRun counts batches actually executed (skipped batches
	// excluded).
	BatchesRun int

	// Err aggregates per-batch failures. Non-nil means the phase must
	// be marked failed even though Lines holds the partial results of
	// the batches that did succeed.
	Err error
}

// BatchExecutor runs a phase's targets through an external tool in
// checkpointed batches.
type BatchExecutor struct {
	runner     tool.Runner
	recorder   ProgressRecorder
	scratchDir string
	logger     *slog.Logger

	// progressMu serializes persist-then-record sequences so a stale
	// artifact write can never land after a newer watermark.
	progressMu sync.Mutex
}

// Option configures a BatchExecutor.
type Option func(*BatchExecutor)

// WithScratchDir sets the directory for per-batch scratch files.
func WithScratchDir(dir string) Option {
	return func(e *BatchExecutor) {
		e.scratchDir = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *BatchExecutor) {
		e.logger = logger
	}
}

// New creates a BatchExecutor that invokes tools through runner and
// records progress through recorder.
func New(runner tool.Runner, recorder ProgressRecorder, opts ...Option) *BatchExecutor {
	e := &BatchExecutor{
		runner:     runner,
		recorder:   recorder,
		scratchDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run executes req's targets in batches. A single batch's failure is
// recorded and does not abort batches already in flight; the
// aggregated failure surfaces in Result.Err. Progress offsets are
// recorded as a contiguous watermark, so a resume never skips a batch
// that merely finished out of order.
func (e *BatchExecutor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", req.BatchSize)
	}

	batches := splitBatches(req.Targets, req.BatchSize)
	total := len(batches)
	if req.SkipBatches >= total {
		e.logger.Info("all batches already completed", "phase", req.Phase, "batches", total)
		return &Result{}, nil
	}

	pending := batches[req.SkipBatches:]
	e.logger.Info("running batched phase",
		"phase", req.Phase,
		"tool", req.Tool,
		"targets", len(req.Targets),
		"batch_size", req.BatchSize,
		"batches", total,
		"skipped", req.SkipBatches,
	)

	tracker := newBatchTracker(req.SkipBatches, total)

	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, batch := range pending {
		index := req.SkipBatches + i
		targets := batch

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			lines, err := e.runBatch(gctx, req, targets)
			if err != nil {
				// Cancellation is not a batch failure: it must surface
				// as-is so the caller can pause instead of marking the
				// phase failed. A tool hitting its own deadline while
				// the run context is still live is a real failure.
				if gctx.Err() != nil || errors.Is(err, context.Canceled) {
					return err
				}
				// Record the failure but let sibling batches finish;
				// the phase verdict is rendered from the aggregate.
				e.logger.Warn("batch failed", "phase", req.Phase, "batch_index", index, "error", err)
				tracker.fail(index, err)
			} else {
				tracker.complete(index, lines)
			}

			e.recordProgress(ctx, req, tracker, total)

			if req.ReclaimMemory && concurrency == 1 {
				runtime.GC()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Lines:      tracker.mergedLines(),
		BatchesRun: len(pending),
		Err:        tracker.aggregateError(),
	}
	return result, nil
}

// runBatch executes one batch: scratch input file in, tool run,
// output file parsed and removed.
func (e *BatchExecutor) runBatch(ctx context.Context, req Request, targets []string) ([]string, error) {
	if err := os.MkdirAll(e.scratchDir, 0750); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	inputFile := filepath.Join(e.scratchDir, fmt.Sprintf("targets_%s.txt", id))
	outputFile := filepath.Join(e.scratchDir, fmt.Sprintf("out_%s.txt", id))
	defer os.Remove(inputFile)
	defer os.Remove(outputFile)

	content := strings.Join(targets, "\n") + "\n"
	if err := os.WriteFile(inputFile, []byte(content), 0600); err != nil {
		return nil, err
	}

	if err := e.runner.Run(ctx, req.Tool, req.Args(inputFile, outputFile)...); err != nil {
		return nil, err
	}

	return readLines(outputFile)
}

// recordProgress persists the merged batch output, then the
// contiguous-completion watermark and result count, into the phase
// checkpoint. The ordering is load-bearing: the watermark may only
// advance past batches whose output has already reached disk, so a
// resume that skips them still finds their results. Recording errors
// are logged, not propagated: losing one progress write costs at most
// one batch of rework on resume.
func (e *BatchExecutor) recordProgress(ctx context.Context, req Request, tracker *batchTracker, total int) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()

	watermark, resultCount, lines := tracker.progress()

	if req.Persist != nil {
		if err := req.Persist(lines); err != nil {
			e.logger.Warn("failed to persist batch results", "phase", req.Phase, "error", err)
			return
		}
	}

	if err := e.recorder.UpdateCheckpoint(ctx, req.Phase, map[string]any{
		checkpoint.BatchIndexKey: watermark,
		checkpoint.BatchSizeKey:  req.BatchSize,
	}); err != nil {
		e.logger.Warn("failed to record batch offset", "phase", req.Phase, "error", err)
		return
	}

	progress := 0
	if total > 0 {
		progress = watermark * 100 / total
	}
	if err := e.recorder.UpdatePhaseStatus(ctx, req.Phase, checkpoint.PhaseInProgress, progress, resultCount); err != nil {
		e.logger.Warn("failed to record phase progress", "phase", req.Phase, "error", err)
	}
}

// batchTracker accumulates per-batch outcomes and maintains the
// contiguous-completion watermark used for resumption offsets.
type batchTracker struct {
	mu        sync.Mutex
	done      map[int]bool
	lines     map[string]struct{}
	errs      []error
	watermark int
	total     int
}

func newBatchTracker(skip, total int) *batchTracker {
	return &batchTracker{
		done:      make(map[int]bool),
		lines:     make(map[string]struct{}),
		watermark: skip,
		total:     total,
	}
}

func (t *batchTracker) complete(index int, lines []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done[index] = true
	for _, line := range lines {
		t.lines[line] = struct{}{}
	}
	t.advance()
}

func (t *batchTracker) fail(index int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A failed batch still advances the watermark: its targets were
	// attempted and rerunning them on resume would not recover the
	// failure, only repeat it.
	t.done[index] = true
	t.errs = append(t.errs, fmt.Errorf("batch %d: %w", index, err))
	t.advance()
}

// advance moves the watermark across the contiguous prefix of
// completed batches. Caller holds t.mu.
func (t *batchTracker) advance() {
	for t.watermark < t.total && t.done[t.watermark] {
		t.watermark++
	}
}

// progress returns the watermark together with the lines backing it,
// taken under one lock so the persisted artifact always covers the
// recorded offset.
func (t *batchTracker) progress() (watermark, resultCount int, lines []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark, len(t.lines), t.sortedLinesLocked()
}

func (t *batchTracker) mergedLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedLinesLocked()
}

// sortedLinesLocked copies the merged line set in sorted order. Caller
// holds t.mu.
func (t *batchTracker) sortedLinesLocked() []string {
	merged := make([]string, 0, len(t.lines))
	for line := range t.lines {
		merged = append(merged, line)
	}
	sort.Strings(merged)
	return merged
}

func (t *batchTracker) aggregateError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return errors.Join(t.errs...)
}

// splitBatches chunks targets into fixed-size batches, last one
// possibly short.
func splitBatches(targets []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(targets); start += size {
		end := start + size
		if end > len(targets) {
			end = len(targets)
		}
		batches = append(batches, targets[start:end])
	}
	return batches
}

// SkipCount converts a phase's processed-target count into the number
// of whole batches a resume can skip.
func SkipCount(processed, batchSize int) int {
	if batchSize <= 0 || processed <= 0 {
		return 0
	}
	return processed / batchSize
}

// readLines reads a newline-delimited file, dropping blank lines. A
// missing file yields no lines: several tools simply do not create an
// output file when nothing matched.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // Scratch path generated by this process
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
