package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/executor"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/tool"
)

// enumerate runs the subdomain-enumeration phase: a single subfinder
// invocation, with the result cache consulted first. Its artifact is
// subdomains.txt.
func (o *Orchestrator) enumerate(ctx context.Context) ([]string, error) {
	phase := checkpoint.PhaseSubdomainEnumeration
	outputDir := o.cfg.DomainOutputDir()

	if done, lines, err := o.completedPhaseArtifact(phase, SubdomainsFile); done || err != nil {
		if err == nil {
			o.state.setCounts(len(lines), -1, -1)
		}
		return lines, err
	}

	o.state.setStage(StageDiscovering)
	o.writeStateSnapshot()
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseInProgress, 0, 0); err != nil {
		return nil, err
	}

	command := []string{tool.Subfinder, "-d", o.cfg.Domain, "-all", "-silent"}

	var lines []string
	cached := false
	if o.cache != nil {
		if result, ok := o.cache.Get(command); ok {
			lines = splitLines(result)
			cached = true
			o.state.setCacheHit()
			o.logger.Info("using cached enumeration result", "domain", o.cfg.Domain, "subdomains", len(lines))
		}
	}

	if !cached {
		out, err := o.runner.Output(ctx, tool.Subfinder, command[1:]...)
		if err != nil {
			return nil, o.failPhase(ctx, phase, err)
		}
		lines = splitLines(string(out))
		if o.cache != nil {
			if err := o.cache.Put(command, string(out)); err != nil {
				o.logger.Warn("could not cache enumeration result", "error", err)
			}
		}
	}

	if err := writeArtifact(outputDir, SubdomainsFile, lines); err != nil {
		return nil, err
	}
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseCompleted, 100, len(lines)); err != nil {
		return nil, err
	}
	if err := o.store.UpdateStatistics(ctx, map[string]int{checkpoint.StatSubdomainsFound: len(lines)}); err != nil {
		return nil, err
	}

	o.state.setCounts(len(lines), -1, -1)
	o.logger.Info("enumeration finished", "domain", o.cfg.Domain, "subdomains", len(lines))
	return lines, nil
}

// probe runs the liveness-probing phase: httpx over the subdomain list
// in concurrent batches. Its artifact is alive.txt.
func (o *Orchestrator) probe(ctx context.Context, subdomains []string) ([]string, error) {
	phase := checkpoint.PhaseAliveCheck
	outputDir := o.cfg.DomainOutputDir()

	if done, lines, err := o.completedPhaseArtifact(phase, AliveFile); done || err != nil {
		if err == nil {
			o.state.setCounts(-1, len(lines), -1)
		}
		return lines, err
	}

	o.state.setStage(StageProbing)
	o.writeStateSnapshot()

	if len(subdomains) == 0 {
		return nil, o.completeEmptyPhase(ctx, phase, AliveFile, checkpoint.StatAliveSubdomains)
	}

	batchSize, skip, err := o.resumeOffsets(phase, len(subdomains))
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseInProgress, 0, 0); err != nil {
		return nil, err
	}

	// Batches checkpointed before an interruption persisted their
	// output through the artifact; carry it into every later write so
	// skipped batches keep their results.
	var prior []string
	if skip > 0 {
		prior, err = readArtifact(outputDir, AliveFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	result, err := o.batches.Run(ctx, executor.Request{
		Phase:       phase,
		Tool:        tool.HTTPX,
		Args:        httpxArgs,
		Targets:     subdomains,
		BatchSize:   batchSize,
		Concurrency: o.cfg.EffectiveConcurrency(),
		SkipBatches: skip,
		Persist: func(lines []string) error {
			return writeArtifact(outputDir, AliveFile, mergeLines(prior, lines))
		},
	})
	if err != nil {
		return nil, o.failPhase(ctx, phase, err)
	}

	alive := mergeLines(prior, result.Lines)
	if err := writeArtifact(outputDir, AliveFile, alive); err != nil {
		return nil, err
	}

	if result.Err != nil {
		return nil, o.failPhase(ctx, phase, fmt.Errorf("%w: %v", ErrPhaseFailed, result.Err))
	}

	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseCompleted, 100, len(alive)); err != nil {
		return nil, err
	}
	if err := o.store.UpdateStatistics(ctx, map[string]int{checkpoint.StatAliveSubdomains: len(alive)}); err != nil {
		return nil, err
	}

	o.state.setCounts(-1, len(alive), -1)
	o.logger.Info("probing finished", "alive", len(alive), "probed", len(subdomains))
	return alive, nil
}

// scanVulnerabilities runs the final phase: nuclei over the alive
// targets, sequentially batched with memory reclaim between batches.
// Its artifact is results.txt, written even when empty.
func (o *Orchestrator) scanVulnerabilities(ctx context.Context, alive []string) error {
	phase := checkpoint.PhaseVulnerabilityScan
	outputDir := o.cfg.DomainOutputDir()

	if done, lines, err := o.completedPhaseArtifact(phase, ResultsFile); done || err != nil {
		if err == nil {
			o.recordFindings(lines)
		}
		return err
	}

	o.state.setStage(StageScanning)
	o.writeStateSnapshot()

	if len(alive) == 0 {
		return o.completeEmptyPhase(ctx, phase, ResultsFile, checkpoint.StatVulnerabilitiesFound)
	}

	batchSize, skip, err := o.resumeOffsets(phase, len(alive))
	if err != nil {
		return err
	}
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseInProgress, 0, 0); err != nil {
		return err
	}

	severities := o.cfg.Severities
	if len(severities) == 0 {
		severities = model.DefaultSeverities()
	}

	var prior []string
	if skip > 0 {
		prior, err = readArtifact(outputDir, ResultsFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	result, err := o.batches.Run(ctx, executor.Request{
		Phase:         phase,
		Tool:          tool.Nuclei,
		Args:          o.nucleiArgs(severities),
		Targets:       alive,
		BatchSize:     batchSize,
		SkipBatches:   skip,
		ReclaimMemory: true,
		Persist: func(lines []string) error {
			return writeArtifact(outputDir, ResultsFile, mergeLines(prior, lines))
		},
	})
	if err != nil {
		return o.failPhase(ctx, phase, err)
	}

	lines := mergeLines(prior, result.Lines)
	if err := writeArtifact(outputDir, ResultsFile, lines); err != nil {
		return err
	}

	if result.Err != nil {
		return o.failPhase(ctx, phase, fmt.Errorf("%w: %v", ErrPhaseFailed, result.Err))
	}

	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseCompleted, 100, len(lines)); err != nil {
		return err
	}
	if err := o.store.UpdateStatistics(ctx, map[string]int{checkpoint.StatVulnerabilitiesFound: len(lines)}); err != nil {
		return err
	}

	o.recordFindings(lines)
	o.logger.Info("vulnerability scan finished", "findings", len(lines), "targets", len(alive))
	return nil
}

// completedPhaseArtifact handles the resume fast path: a phase the
// checkpoint marks completed is never re-executed, its artifact is
// loaded instead. A completed marker without the artifact on disk is a
// hard error.
func (o *Orchestrator) completedPhaseArtifact(phase checkpoint.Phase, artifact string) (bool, []string, error) {
	if !o.resuming {
		return false, nil, nil
	}

	ps, err := o.store.PhaseState(phase)
	if err != nil {
		return false, nil, err
	}
	if ps.Status != checkpoint.PhaseCompleted {
		return false, nil, nil
	}

	lines, err := readArtifact(o.cfg.DomainOutputDir(), artifact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil, fmt.Errorf("%w: %s (%s)", ErrArtifactMissing, phase, artifact)
		}
		return false, nil, err
	}

	o.logger.Info("skipping completed phase", "phase", phase, "results", len(lines))
	return true, lines, nil
}

// resumeOffsets derives the batch size and skip count for a batched
// phase. A resume reuses the recorded batch size; changing it would
// shift every batch boundary and invalidate the recorded offsets.
func (o *Orchestrator) resumeOffsets(phase checkpoint.Phase, total int) (batchSize, skip int, err error) {
	ps, err := o.store.PhaseState(phase)
	if err != nil {
		return 0, 0, err
	}

	if o.resuming {
		if recorded, ok := ps.CheckpointInt(checkpoint.BatchSizeKey); ok && recorded > 0 {
			batchSize = recorded
			if index, ok := ps.CheckpointInt(checkpoint.BatchIndexKey); ok && index > 0 {
				skip = executor.SkipCount(index*recorded, recorded)
			}
			o.logger.Info("resuming batched phase",
				"phase", phase,
				"batch_size", batchSize,
				"skip_batches", skip,
			)
			return batchSize, skip, nil
		}
	}

	return o.sizer.BatchSize(total), 0, nil
}

// completeEmptyPhase records a phase with nothing to do as completed
// with an empty artifact.
func (o *Orchestrator) completeEmptyPhase(ctx context.Context, phase checkpoint.Phase, artifact, stat string) error {
	if err := writeArtifact(o.cfg.DomainOutputDir(), artifact, nil); err != nil {
		return err
	}
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseInProgress, 0, 0); err != nil {
		return err
	}
	if err := o.store.UpdatePhaseStatus(ctx, phase, checkpoint.PhaseCompleted, 100, 0); err != nil {
		return err
	}
	if err := o.store.UpdateStatistics(ctx, map[string]int{stat: 0}); err != nil {
		return err
	}
	o.logger.Info("phase had no targets", "phase", phase)
	return nil
}

// failPhase marks a phase failed unless the failure is a cancellation
// of the scan context, which must leave the phase in_progress so a
// resume can pick it up. A deadline counts only when the scan context
// itself is done; a per-tool timeout fires while the scan context is
// still live and is a real phase failure.
func (o *Orchestrator) failPhase(ctx context.Context, phase checkpoint.Phase, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ps, perr := o.store.PhaseState(phase)
	progress, results := 0, 0
	if perr == nil {
		progress = ps.ProgressValue()
		results = ps.ResultsCountValue()
	}
	if uerr := o.store.UpdatePhaseStatus(fctx, phase, checkpoint.PhaseFailed, progress, results); uerr != nil {
		o.logger.Warn("could not record phase failure", "phase", phase, "error", uerr)
	}
	return fmt.Errorf("phase %s: %w", phase, err)
}

// recordFindings parses result lines into structured findings and
// updates the transient counters.
func (o *Orchestrator) recordFindings(lines []string) {
	findings := make([]model.Finding, 0, len(lines))
	for _, line := range lines {
		if f, ok := model.ParseFindingLine(line); ok {
			findings = append(findings, f)
		}
	}
	o.findings = findings
	o.state.setCounts(-1, -1, len(lines))
}

// httpxArgs builds the probing tool's argument list for one batch.
func httpxArgs(inputFile, outputFile string) []string {
	return []string{"-l", inputFile, "-o", outputFile, "-silent", "-no-color"}
}

// nucleiArgs builds the scanning tool's argument list for one batch.
func (o *Orchestrator) nucleiArgs(severities []model.Severity) func(inputFile, outputFile string) []string {
	return func(inputFile, outputFile string) []string {
		args := []string{
			"-l", inputFile,
			"-o", outputFile,
			"-severity", model.JoinSeverities(severities),
			"-silent", "-no-color",
		}
		if o.cfg.TemplatesPath != "" {
			args = append(args, "-t", o.cfg.TemplatesPath)
		}
		return args
	}
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// mergeLines unions two line sets, dropping duplicates and keeping a
// stable sorted order.
func mergeLines(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, line := range a {
		seen[line] = struct{}{}
	}
	for _, line := range b {
		seen[line] = struct{}{}
	}
	merged := make([]string, 0, len(seen))
	for line := range seen {
		merged = append(merged, line)
	}
	sort.Strings(merged)
	return merged
}
