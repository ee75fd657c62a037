package scanner

import "errors"

var (
	// ErrArtifactMissing is returned when a phase is marked completed
	// in the checkpoint but its result file is gone from disk. The
	// checkpoint and the artifacts disagree, and guessing which is
	// right could silently scan the wrong targets.
	ErrArtifactMissing = errors.New("phase marked completed but result artifact is missing")

	// ErrNotResumable is returned when resume is requested but no
	// usable checkpoint exists for the domain.
	ErrNotResumable = errors.New("no resumable scan found")

	// ErrAlreadyCompleted is returned when resume targets a scan whose
	// checkpoint says it finished. Completed is terminal; rescanning
	// needs a fresh scan, not a resume.
	ErrAlreadyCompleted = errors.New("scan already completed")

	// ErrCheckpointUnrepairable is returned when integrity
	// verification still reports issues after repair.
	ErrCheckpointUnrepairable = errors.New("checkpoint could not be repaired")

	// ErrPhaseFailed is returned when one or more batches of a phase
	// failed beyond recovery.
	ErrPhaseFailed = errors.New("pipeline phase failed")
)
