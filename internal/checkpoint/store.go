package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/autosubnuclei/autosubnuclei/internal/lock"
)

const (
	// checkpointDirName is the subdirectory of the scan output
	// directory that holds the checkpoint, its lock, and its backups.
	checkpointDirName = "checkpoints"

	// checkpointFileName is the authoritative checkpoint document.
	checkpointFileName = "scan_state.json"

	// lockFileName protects the checkpoint against concurrent writers.
	lockFileName = "scan_state.lock"

	// backupTimeFormat is the timestamp suffix of backup files.
	backupTimeFormat = "20060102_150405"
)

// Store manages the checkpoint document for one scan.
//
// Two layers of serialization apply to mutations: a process-local mutex
// orders the orchestrator's own goroutines, and the cross-process
// advisory lock orders this process against a concurrent resume or
// inspect invocation. Each mutation is read-modify-write plus an atomic
// write to disk while both are held.
type Store struct {
	// domain is the root domain this store's scan targets.
	domain string

	// dir is the checkpoints directory.
	dir string

	// filePath is the checkpoint document path.
	filePath string

	// locker provides cross-process exclusion.
	locker lock.Locker

	// lockTimeout and lockPoll parameterize lock acquisition.
	lockTimeout time.Duration
	lockPoll    time.Duration

	// strict makes mutations fail with ErrLockNotHeld instead of
	// proceeding without the lock after an acquisition timeout.
	strict bool

	// logger for store diagnostics.
	logger *slog.Logger

	// mu serializes in-process access to doc.
	mu sync.Mutex

	// doc is the in-memory checkpoint document, nil until Initialize
	// or Load.
	doc *Document
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets a custom logger for the store.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLockTiming overrides the advisory lock timeout and poll interval.
func WithLockTiming(timeout, poll time.Duration) StoreOption {
	return func(s *Store) {
		s.lockTimeout = timeout
		s.lockPoll = poll
	}
}

// WithStrictLocking makes every mutation require the advisory lock.
// By default a mutation proceeds after a lock timeout (with a warning),
// matching the behavior resumable scans have always had; strict mode
// trades availability for a hard exclusivity guarantee.
func WithStrictLocking() StoreOption {
	return func(s *Store) {
		s.strict = true
	}
}

// WithLocker substitutes the cross-process locker, for tests.
func WithLocker(l lock.Locker) StoreOption {
	return func(s *Store) {
		s.locker = l
	}
}

// NewStore creates a Store for the given domain rooted at the scan's
// output directory. The checkpoints directory is created lazily on the
// first write.
func NewStore(domain, outputDir string, opts ...StoreOption) *Store {
	dir := filepath.Join(outputDir, checkpointDirName)
	s := &Store{
		domain:      domain,
		dir:         dir,
		filePath:    filepath.Join(dir, checkpointFileName),
		lockTimeout: 10 * time.Second,
		lockPoll:    100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.locker == nil {
		s.locker = lock.New(filepath.Join(dir, lockFileName))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Path returns the checkpoint document path.
func (s *Store) Path() string {
	return s.filePath
}

// ScanID returns the current document's scan ID, or empty.
func (s *Store) ScanID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ""
	}
	return s.doc.ScanID
}

// Initialize creates a brand-new checkpoint document with all phases
// pending, statistics zeroed, and the given environment snapshot, and
// persists it.
func (s *Store) Initialize(ctx context.Context, toolVersions map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = NewDocument(s.domain, toolVersions)
	s.logger.Info("initialized new scan checkpoint", "scan_id", s.doc.ScanID)
	return s.persistLocked(ctx)
}

// Load reads an existing checkpoint document from path.
// Missing files return ErrCheckpointNotFound; undecodable files return
// ErrCheckpointCorrupt. An empty path loads the store's default file.
func (s *Store) Load(path string) error {
	if path == "" {
		path = s.filePath
	}

	data, err := os.ReadFile(path) //nolint:gosec // Checkpoint path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, path)
		}
		return err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = &doc
	s.logger.Info("loaded checkpoint", "scan_id", doc.ScanID, "path", path)
	return nil
}

// Document returns a deep copy of the current document, or nil.
// Readers never observe store-owned state.
func (s *Store) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Summary returns a condensed view of the current document.
func (s *Store) Summary() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNotInitialized
	}
	return s.doc.Summarize(), nil
}

// PhaseStatus returns the status of one phase.
func (s *Store) PhaseStatus(phase Phase) (PhaseStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", ErrNotInitialized
	}
	ps, ok := s.doc.Phases[phase]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}
	return ps.Status, nil
}

// PhaseState returns a copy of one phase's full state.
func (s *Store) PhaseState(phase Phase) (*PhaseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNotInitialized
	}
	if _, ok := s.doc.Phases[phase]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}
	return s.doc.Clone().Phases[phase], nil
}

// UpdatePhaseStatus updates a phase's status, progress, and result
// count, refreshing last_update and persisting the document.
// The transition table is enforced; an illegal transition mutates
// nothing.
func (s *Store) UpdatePhaseStatus(ctx context.Context, phase Phase, status PhaseStatus, progress, resultsCount int) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}

	return s.mutate(ctx, func(doc *Document) error {
		ps, ok := doc.Phases[phase]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
		}
		if err := checkPhaseTransition(ps.Status, status); err != nil {
			return err
		}

		ps.Status = status
		ps.Progress = intPtr(clampProgress(progress))
		ps.ResultsCount = intPtr(resultsCount)

		s.logger.Debug("updated phase status",
			"phase", phase,
			"status", status,
			"progress", progress,
		)
		return nil
	})
}

// UpdateCheckpoint merges resumption state (batch offsets and similar)
// into a phase's checkpoint sub-document without touching its status or
// progress.
func (s *Store) UpdateCheckpoint(ctx context.Context, phase Phase, state map[string]any) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}

	return s.mutate(ctx, func(doc *Document) error {
		ps, ok := doc.Phases[phase]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
		}
		if ps.Checkpoint == nil {
			ps.Checkpoint = make(map[string]any, len(state))
		}
		for k, v := range state {
			ps.Checkpoint[k] = v
		}

		s.logger.Debug("updated phase checkpoint", "phase", phase)
		return nil
	})
}

// UpdateStatistics merges recognized statistic keys into the document.
// Unknown keys are ignored, and a value never decreases within a scan:
// statistics are monotonic by contract, so a smaller value indicates a
// caller racing with stale data and is dropped.
func (s *Store) UpdateStatistics(ctx context.Context, stats map[string]int) error {
	return s.mutate(ctx, func(doc *Document) error {
		if doc.Statistics == nil {
			doc.Statistics = defaultStatistics()
		}
		for k, v := range stats {
			if _, recognized := doc.Statistics[k]; !recognized {
				continue
			}
			if v > doc.Statistics[k] {
				doc.Statistics[k] = v
			}
		}

		s.logger.Debug("updated scan statistics", "statistics", stats)
		return nil
	})
}

// SetScanStatus updates the overall scan status, enforcing the
// transition table.
func (s *Store) SetScanStatus(ctx context.Context, status ScanStatus) error {
	return s.mutate(ctx, func(doc *Document) error {
		if err := checkScanTransition(doc.Status, status); err != nil {
			return err
		}
		doc.Status = status

		s.logger.Info("set scan status", "status", status)
		return nil
	})
}

// SetTemplatesHash records the template-bundle fingerprint in the
// environment snapshot.
func (s *Store) SetTemplatesHash(ctx context.Context, hash string) error {
	return s.mutate(ctx, func(doc *Document) error {
		if doc.Environment == nil {
			doc.Environment = &Environment{ToolVersions: make(map[string]string)}
		}
		doc.Environment.TemplatesHash = hash
		return nil
	})
}

// Save persists the current document under the advisory lock without
// mutating it. Used for final snapshots on fatal paths.
func (s *Store) Save(ctx context.Context) error {
	return s.mutate(ctx, func(*Document) error { return nil })
}

// VerifyIntegrity checks the loaded document for structural problems:
// missing top-level fields, missing phases or phase sub-fields, missing
// statistics keys, a missing tool-version map, and a domain mismatch
// between the document and this store's domain. The domain mismatch is
// reported, never auto-fixed.
func (s *Store) VerifyIntegrity() (bool, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return false, []string{"checkpoint not initialized"}
	}
	doc := s.doc

	var issues []string
	if doc.ScanID == "" {
		issues = append(issues, "missing required field: scan_id")
	}
	if doc.Domain == "" {
		issues = append(issues, "missing required field: domain")
	} else if doc.Domain != s.domain {
		// The mismatch must surface even on a structurally damaged
		// document, or a repair could mutate a foreign checkpoint
		// before the ownership check ever runs.
		issues = append(issues, fmt.Sprintf("domain mismatch: %s (checkpoint) vs %s (current)", doc.Domain, s.domain))
	}
	if doc.StartTime == "" {
		issues = append(issues, "missing required field: start_time")
	}
	if doc.LastUpdate == "" {
		issues = append(issues, "missing required field: last_update")
	}
	if doc.Status == "" {
		issues = append(issues, "missing required field: status")
	}
	if doc.Phases == nil {
		issues = append(issues, "missing required field: phases")
	}
	if doc.Statistics == nil {
		issues = append(issues, "missing required field: statistics")
	}
	if doc.Environment == nil {
		issues = append(issues, "missing required field: environment")
	}

	// Without the essential structure deeper checks would only cascade,
	// and a foreign checkpoint needs no deeper diagnosis.
	if len(issues) > 0 {
		s.logger.Warn("checkpoint integrity verification failed", "issues", issues)
		return false, issues
	}

	for _, phase := range Phases() {
		ps, ok := doc.Phases[phase]
		if !ok {
			issues = append(issues, fmt.Sprintf("missing phase: %s", phase))
			continue
		}
		if ps.Status == "" {
			issues = append(issues, fmt.Sprintf("missing status in phase: %s", phase))
		} else if !ps.Status.Valid() {
			issues = append(issues, fmt.Sprintf("invalid status %q in phase: %s", ps.Status, phase))
		}
		if ps.Progress == nil {
			issues = append(issues, fmt.Sprintf("missing progress percentage in phase: %s", phase))
		}
		if ps.ResultsCount == nil {
			issues = append(issues, fmt.Sprintf("missing results count in phase: %s", phase))
		}
	}

	for _, stat := range requiredStatistics {
		if _, ok := doc.Statistics[stat]; !ok {
			issues = append(issues, fmt.Sprintf("missing statistic: %s", stat))
		}
	}

	if doc.Environment.ToolVersions == nil {
		issues = append(issues, "missing tool versions in environment")
	}

	if len(issues) == 0 {
		s.logger.Info("checkpoint integrity verification passed")
		return true, nil
	}
	s.logger.Warn("checkpoint integrity verification failed", "issues", issues)
	return false, issues
}

// Repair synthesizes safe defaults for missing fields: a fresh scan ID,
// current timestamps, an in_progress status, pending phases, zeroed
// statistics, and an empty environment. A field that is present is
// never overwritten, even when its value looks suspicious. The repaired
// document is persisted under the advisory lock.
func (s *Store) Repair(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNotInitialized
	}
	doc := s.doc

	if doc.ScanID == "" {
		s.logger.Warn("repairing missing field", "field", "scan_id")
		doc.ScanID = GenerateScanID(s.domain)
	}
	if doc.Domain == "" {
		s.logger.Warn("repairing missing field", "field", "domain")
		doc.Domain = s.domain
	}
	now := time.Now().Format(time.RFC3339)
	if doc.StartTime == "" {
		s.logger.Warn("repairing missing field", "field", "start_time")
		doc.StartTime = now
	}
	if doc.LastUpdate == "" {
		s.logger.Warn("repairing missing field", "field", "last_update")
		doc.LastUpdate = now
	}
	if doc.Status == "" {
		s.logger.Warn("repairing missing field", "field", "status")
		doc.Status = ScanInProgress
	}
	if doc.Phases == nil {
		s.logger.Warn("repairing missing field", "field", "phases")
		doc.Phases = defaultPhases()
	}
	if doc.Statistics == nil {
		s.logger.Warn("repairing missing field", "field", "statistics")
		doc.Statistics = defaultStatistics()
	}
	if doc.Environment == nil {
		s.logger.Warn("repairing missing field", "field", "environment")
		doc.Environment = &Environment{ToolVersions: make(map[string]string)}
	}

	for _, phase := range Phases() {
		ps, ok := doc.Phases[phase]
		if !ok {
			s.logger.Warn("repairing missing phase", "phase", phase)
			doc.Phases[phase] = newPendingPhase()
			continue
		}
		if ps.Status == "" {
			ps.Status = PhasePending
		}
		if ps.Progress == nil {
			ps.Progress = intPtr(0)
		}
		if ps.ResultsCount == nil {
			ps.ResultsCount = intPtr(0)
		}
	}

	for _, stat := range requiredStatistics {
		if _, ok := doc.Statistics[stat]; !ok {
			doc.Statistics[stat] = 0
		}
	}
	if doc.Environment.ToolVersions == nil {
		doc.Environment.ToolVersions = make(map[string]string)
	}

	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.logger.Info("checkpoint repair successful")
	return nil
}

// ValidateEnvironment compares current tool versions against the
// versions recorded at scan start. Mismatches are advisory: the scan
// may proceed, but results across phases may not be comparable.
func (s *Store) ValidateEnvironment(current map[string]string) (bool, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil || s.doc.Environment == nil {
		return false, []string{"checkpoint not initialized"}
	}

	recorded := s.doc.Environment.ToolVersions
	var mismatches []string

	// Sorted iteration keeps the report deterministic.
	tools := make([]string, 0, len(current))
	for tool := range current {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		recordedVersion, ok := recorded[tool]
		if !ok {
			continue
		}
		if recordedVersion != current[tool] {
			mismatches = append(mismatches, fmt.Sprintf(
				"tool version mismatch for %s: %s (checkpoint) vs %s (current)",
				tool, recordedVersion, current[tool],
			))
		}
	}

	if len(mismatches) == 0 {
		s.logger.Info("environment validation passed")
		return true, nil
	}
	s.logger.Warn("environment validation failed", "mismatches", mismatches)
	return false, mismatches
}

// CreateBackup copies the checkpoint file to a timestamp-suffixed
// sibling, taken under the advisory lock so the copy is a consistent
// point-in-time snapshot.
func (s *Store) CreateBackup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNotInitialized
	}

	return lock.With(ctx, s.locker, s.lockTimeout, s.lockPoll, func(held bool) error {
		if !held && s.strict {
			return ErrLockNotHeld
		}

		src, err := os.Open(s.filePath)
		if err != nil {
			return fmt.Errorf("cannot back up checkpoint: %w", err)
		}
		defer src.Close()

		backupPath := filepath.Join(s.dir, fmt.Sprintf("scan_state_%s.json", time.Now().Format(backupTimeFormat)))
		dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return err
		}

		s.logger.Info("created checkpoint backup", "path", backupPath)
		return nil
	})
}

// CleanupOld retains the maxBackups most-recently-modified backup files
// and deletes the rest. The authoritative checkpoint file is never a
// candidate.
func (s *Store) CleanupOld(maxBackups int) error {
	backups, err := filepath.Glob(filepath.Join(s.dir, "scan_state_*.json"))
	if err != nil {
		return err
	}
	if len(backups) <= maxBackups {
		return nil
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(backups))
	for _, path := range backups {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: path, modTime: st.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.After(infos[j].modTime)
	})

	for _, fi := range infos[maxBackups:] {
		if err := os.Remove(fi.path); err != nil {
			s.logger.Warn("failed to remove old backup", "path", fi.path, "error", err)
		}
	}

	s.logger.Info("cleaned up old checkpoint backups", "kept", maxBackups)
	return nil
}

// mutate runs fn against the document and persists the result, all
// under both the process-local mutex and the cross-process advisory
// lock. last_update is refreshed on success.
func (s *Store) mutate(ctx context.Context, fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNotInitialized
	}

	return lock.With(ctx, s.locker, s.lockTimeout, s.lockPoll, func(held bool) error {
		if !held {
			if s.strict {
				return ErrLockNotHeld
			}
			s.logger.Warn("proceeding without advisory lock", "path", s.filePath)
		}

		if err := fn(s.doc); err != nil {
			return err
		}
		s.doc.LastUpdate = time.Now().Format(time.RFC3339)
		return s.persistLocked(ctx)
	})
}

// persistLocked writes the document to disk atomically (temp file +
// rename). Callers must hold s.mu.
func (s *Store) persistLocked(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return err
	}

	s.logger.Debug("checkpoint saved", "path", s.filePath)
	return nil
}

// clampProgress bounds a progress percentage to [0, 100].
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
