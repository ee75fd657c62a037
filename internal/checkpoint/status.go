package checkpoint

import "fmt"

// ScanStatus is the overall status of a scan.
// The values are the persisted wire form; they appear verbatim in the
// checkpoint JSON document.
type ScanStatus string

const (
	// ScanInProgress indicates the scan is running or was interrupted
	// without a clean pause (e.g. a crash).
	ScanInProgress ScanStatus = "in_progress"

	// ScanPaused indicates the scan was interrupted cooperatively
	// (SIGINT/SIGTERM) and checkpointed for resumption.
	ScanPaused ScanStatus = "paused"

	// ScanCompleted indicates all three phases finished. Terminal.
	ScanCompleted ScanStatus = "completed"

	// ScanFailed indicates the scan stopped on an unrecoverable error.
	// A later resume may restart it.
	ScanFailed ScanStatus = "failed"
)

// Valid reports whether the status is a recognized scan status.
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanInProgress, ScanPaused, ScanCompleted, ScanFailed:
		return true
	}
	return false
}

// PhaseStatus is the status of a single pipeline phase.
type PhaseStatus string

const (
	// PhasePending indicates the phase has not started.
	PhasePending PhaseStatus = "pending"

	// PhaseInProgress indicates the phase is executing.
	PhaseInProgress PhaseStatus = "in_progress"

	// PhaseCompleted indicates the phase finished and its result
	// artifact is on disk. Terminal.
	PhaseCompleted PhaseStatus = "completed"

	// PhaseFailed indicates the phase stopped on an error.
	PhaseFailed PhaseStatus = "failed"
)

// Valid reports whether the status is a recognized phase status.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhasePending, PhaseInProgress, PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// Phase identifies one of the three fixed pipeline phases.
// Exactly these three phases exist and they complete in declaration
// order; a later phase never begins before its predecessor completes.
type Phase string

const (
	// PhaseSubdomainEnumeration discovers subdomains of the target domain.
	PhaseSubdomainEnumeration Phase = "subdomain_enumeration"

	// PhaseAliveCheck probes discovered subdomains for liveness.
	PhaseAliveCheck Phase = "alive_check"

	// PhaseVulnerabilityScan scans alive subdomains for vulnerabilities.
	PhaseVulnerabilityScan Phase = "vulnerability_scan"
)

// Phases returns the three pipeline phases in execution order.
func Phases() []Phase {
	return []Phase{PhaseSubdomainEnumeration, PhaseAliveCheck, PhaseVulnerabilityScan}
}

// Valid reports whether the phase is one of the three fixed phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseSubdomainEnumeration, PhaseAliveCheck, PhaseVulnerabilityScan:
		return true
	}
	return false
}

// scanTransitions is the explicit from-state transition table for scan
// status. Completed is terminal; failed and paused scans may be resumed.
var scanTransitions = map[ScanStatus][]ScanStatus{
	ScanInProgress: {ScanInProgress, ScanPaused, ScanCompleted, ScanFailed},
	ScanPaused:     {ScanInProgress, ScanFailed},
	ScanFailed:     {ScanInProgress},
	ScanCompleted:  {},
}

// phaseTransitions is the explicit from-state transition table for
// phase status. The in_progress self-transition carries progress
// updates; failed phases may be retried by a resume.
var phaseTransitions = map[PhaseStatus][]PhaseStatus{
	PhasePending:    {PhaseInProgress, PhaseFailed},
	PhaseInProgress: {PhaseInProgress, PhaseCompleted, PhaseFailed},
	PhaseFailed:     {PhaseInProgress},
	PhaseCompleted:  {},
}

// checkScanTransition validates a scan status change against the table.
func checkScanTransition(from, to ScanStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown scan status %q", ErrIllegalTransition, to)
	}
	for _, allowed := range scanTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: scan status %q -> %q", ErrIllegalTransition, from, to)
}

// checkPhaseTransition validates a phase status change against the table.
func checkPhaseTransition(from, to PhaseStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown phase status %q", ErrIllegalTransition, to)
	}
	for _, allowed := range phaseTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: phase status %q -> %q", ErrIllegalTransition, from, to)
}
