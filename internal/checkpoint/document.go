package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Statistic keys recognized by UpdateStatistics and required by
// VerifyIntegrity.
const (
	// StatSubdomainsFound counts subdomains discovered by enumeration.
	StatSubdomainsFound = "subdomains_found"

	// StatAliveSubdomains counts subdomains that answered the probe.
	StatAliveSubdomains = "alive_subdomains"

	// StatVulnerabilitiesFound counts findings from the scanning phase.
	StatVulnerabilitiesFound = "vulnerabilities_found"
)

// requiredStatistics lists the statistic keys every document must carry.
var requiredStatistics = []string{StatSubdomainsFound, StatAliveSubdomains, StatVulnerabilitiesFound}

// Batch checkpoint keys stored in a phase's resumption sub-document.
const (
	// BatchIndexKey records the number of batches already completed.
	BatchIndexKey = "batch_index"

	// BatchSizeKey records the batch size the offsets were computed with.
	BatchSizeKey = "batch_size"
)

// PhaseState is the persisted state of one pipeline phase.
//
// Progress and ResultsCount are pointers so a document written by an
// older or damaged process round-trips with its absent fields still
// absent; VerifyIntegrity distinguishes a missing field from a zero.
type PhaseState struct {
	// Status is the phase's current status.
	Status PhaseStatus `json:"status,omitempty"`

	// Progress is the completion percentage, 0-100.
	Progress *int `json:"progress_percentage,omitempty"`

	// ResultsCount is the number of results produced so far.
	ResultsCount *int `json:"results_count,omitempty"`

	// Checkpoint holds phase-specific resumption state, typically the
	// batch offsets written by the batch executor. Keys are merged, not
	// replaced, so independent writers do not clobber each other.
	Checkpoint map[string]any `json:"checkpoint,omitempty"`
}

// ProgressValue returns the progress percentage, or 0 when absent.
func (p *PhaseState) ProgressValue() int {
	if p == nil || p.Progress == nil {
		return 0
	}
	return *p.Progress
}

// ResultsCountValue returns the results count, or 0 when absent.
func (p *PhaseState) ResultsCountValue() int {
	if p == nil || p.ResultsCount == nil {
		return 0
	}
	return *p.ResultsCount
}

// CheckpointInt reads an integer from the resumption sub-document.
// JSON numbers decode as float64, so both forms are accepted.
func (p *PhaseState) CheckpointInt(key string) (int, bool) {
	if p == nil || p.Checkpoint == nil {
		return 0, false
	}
	switch v := p.Checkpoint[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Environment is the tool environment captured at scan start, compared
// on resume to detect drift.
type Environment struct {
	// ToolVersions maps tool name to its version string. An empty map
	// must survive a save and load round trip, so no omitempty: a scan
	// whose tools expose no versions is still a verifiable checkpoint.
	ToolVersions map[string]string `json:"tool_versions"`

	// TemplatesHash fingerprints the template bundle in use.
	TemplatesHash string `json:"templates_hash"`
}

// Document is the authoritative checkpoint document for one scan,
// persisted as JSON. Composite fields are pointers or maps so that a
// field absent from the file is distinguishable from a zero value.
type Document struct {
	// ScanID uniquely identifies this scan.
	ScanID string `json:"scan_id,omitempty"`

	// Domain is the root domain being scanned.
	Domain string `json:"domain,omitempty"`

	// StartTime is when the scan began, RFC 3339.
	StartTime string `json:"start_time,omitempty"`

	// LastUpdate is refreshed on every mutation, RFC 3339.
	LastUpdate string `json:"last_update,omitempty"`

	// Status is the overall scan status.
	Status ScanStatus `json:"status,omitempty"`

	// Phases maps phase name to its state. Exactly the three fixed
	// phases exist in a healthy document.
	Phases map[Phase]*PhaseState `json:"phases,omitempty"`

	// Statistics holds the running scan counters. Values are
	// monotonically non-decreasing within a scan.
	Statistics map[string]int `json:"statistics,omitempty"`

	// Environment is the tool environment snapshot.
	Environment *Environment `json:"environment,omitempty"`
}

// NewDocument creates a fresh document for a new scan: all phases
// pending, statistics zeroed, environment captured.
func NewDocument(domain string, toolVersions map[string]string) *Document {
	now := time.Now().Format(time.RFC3339)
	if toolVersions == nil {
		toolVersions = make(map[string]string)
	}

	return &Document{
		ScanID:     GenerateScanID(domain),
		Domain:     domain,
		StartTime:  now,
		LastUpdate: now,
		Status:     ScanInProgress,
		Phases:     defaultPhases(),
		Statistics: defaultStatistics(),
		Environment: &Environment{
			ToolVersions: toolVersions,
		},
	}
}

// GenerateScanID builds a unique scan identifier from the domain, the
// current time, and a short hash for uniqueness within one second.
func GenerateScanID(domain string) string {
	ts := time.Now().Unix()
	h := sha256.Sum256(fmt.Appendf(nil, "%s-%d-%d", domain, ts, time.Now().UnixNano()))
	return fmt.Sprintf("%s-%d-%s", domain, ts, hex.EncodeToString(h[:4]))
}

// defaultPhases returns the three fixed phases, all pending.
func defaultPhases() map[Phase]*PhaseState {
	phases := make(map[Phase]*PhaseState, len(Phases()))
	for _, p := range Phases() {
		phases[p] = newPendingPhase()
	}
	return phases
}

// newPendingPhase returns a zeroed pending phase state.
func newPendingPhase() *PhaseState {
	return &PhaseState{
		Status:       PhasePending,
		Progress:     intPtr(0),
		ResultsCount: intPtr(0),
	}
}

// defaultStatistics returns the zeroed statistics map.
func defaultStatistics() map[string]int {
	stats := make(map[string]int, len(requiredStatistics))
	for _, k := range requiredStatistics {
		stats[k] = 0
	}
	return stats
}

// intPtr returns a pointer to v.
func intPtr(v int) *int {
	return &v
}

// Clone returns a deep copy of the document so readers cannot mutate
// store-owned state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	out := *d

	if d.Phases != nil {
		out.Phases = make(map[Phase]*PhaseState, len(d.Phases))
		for name, ps := range d.Phases {
			cp := &PhaseState{Status: ps.Status}
			if ps.Progress != nil {
				cp.Progress = intPtr(*ps.Progress)
			}
			if ps.ResultsCount != nil {
				cp.ResultsCount = intPtr(*ps.ResultsCount)
			}
			if ps.Checkpoint != nil {
				cp.Checkpoint = make(map[string]any, len(ps.Checkpoint))
				for k, v := range ps.Checkpoint {
					cp.Checkpoint[k] = v
				}
			}
			out.Phases[name] = cp
		}
	}

	if d.Statistics != nil {
		out.Statistics = make(map[string]int, len(d.Statistics))
		for k, v := range d.Statistics {
			out.Statistics[k] = v
		}
	}

	if d.Environment != nil {
		env := &Environment{TemplatesHash: d.Environment.TemplatesHash}
		if d.Environment.ToolVersions != nil {
			env.ToolVersions = make(map[string]string, len(d.Environment.ToolVersions))
			for k, v := range d.Environment.ToolVersions {
				env.ToolVersions[k] = v
			}
		}
		out.Environment = env
	}

	return &out
}

// Summary is a condensed view of the document for display.
type Summary struct {
	ScanID      string                `json:"scan_id"`
	Domain      string                `json:"domain"`
	StartTime   string                `json:"start_time"`
	LastUpdate  string                `json:"last_update"`
	Status      ScanStatus            `json:"status"`
	PhaseStatus map[Phase]PhaseStatus `json:"phase_status"`
	Statistics  map[string]int        `json:"statistics"`
}

// Summarize builds a Summary from the document.
func (d *Document) Summarize() *Summary {
	s := &Summary{
		ScanID:      d.ScanID,
		Domain:      d.Domain,
		StartTime:   d.StartTime,
		LastUpdate:  d.LastUpdate,
		Status:      d.Status,
		PhaseStatus: make(map[Phase]PhaseStatus, len(d.Phases)),
		Statistics:  make(map[string]int, len(d.Statistics)),
	}
	for name, ps := range d.Phases {
		s.PhaseStatus[name] = ps.Status
	}
	for k, v := range d.Statistics {
		s.Statistics[k] = v
	}
	return s
}
