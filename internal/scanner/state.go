package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stage is the free-form observability label for where a scan
// currently is. It is coarser than the checkpoint's phase statuses and
// exists for progress display, not for resumption decisions.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageDiscovering  Stage = "discovering_subdomains"
	StageProbing      Stage = "probing_subdomains"
	StageScanning     Stage = "scanning_vulnerabilities"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
	StagePaused       Stage = "paused"
	StageCancelled    Stage = "cancelled"
)

// Snapshot is an immutable copy of the scan's transient state, handed
// to the progress monitor and written to disk for display tooling.
type Snapshot struct {
	Stage      Stage         `json:"status"`
	Subdomains int           `json:"subdomains"`
	Alive      int           `json:"alive"`
	Vulnerable int           `json:"vulnerabilities"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	CacheHit   bool          `json:"cache_hit,omitempty"`
	LastError  string        `json:"error,omitempty"`
}

// State is the orchestrator-owned transient scan state. The
// orchestrator is the only writer; everyone else sees copies through
// Snapshot, so a progress monitor can poll freely without racing the
// pipeline.
type State struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewState creates a State in the initializing stage.
func NewState() *State {
	return &State{snap: Snapshot{
		Stage:     StageInitializing,
		StartTime: time.Now(),
	}}
}

// Snapshot returns a copy of the current state with the duration
// brought up to date.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	if snap.Stage != StageCompleted && snap.Stage != StageError &&
		snap.Stage != StagePaused && snap.Stage != StageCancelled {
		snap.Duration = time.Since(snap.StartTime)
	}
	return snap
}

func (s *State) setStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stage = stage
	s.snap.Duration = time.Since(s.snap.StartTime)
}

func (s *State) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stage = StageError
	s.snap.LastError = err.Error()
	s.snap.Duration = time.Since(s.snap.StartTime)
}

func (s *State) setCounts(subdomains, alive, vulnerable int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subdomains >= 0 {
		s.snap.Subdomains = subdomains
	}
	if alive >= 0 {
		s.snap.Alive = alive
	}
	if vulnerable >= 0 {
		s.snap.Vulnerable = vulnerable
	}
}

func (s *State) setCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CacheHit = true
}

// WriteFile persists a display snapshot to dir/scan_state.json. This
// file is informational only; the authoritative progress document
// lives under checkpoints/.
func (s *State) WriteFile(dir string) error {
	snap := s.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "scan_state.json"), data, 0600)
}
