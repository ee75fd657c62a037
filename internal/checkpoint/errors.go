package checkpoint

import "errors"

// Checkpoint store errors.
//
// Design decision: Package-level sentinel errors so callers can branch
// with errors.Is(): the resume command treats ErrCheckpointCorrupt as
// repairable, while ErrIllegalTransition always indicates a programming
// error and aborts.
var (
	// ErrNotInitialized is returned when an operation requires a loaded
	// or initialized checkpoint document and none is present.
	ErrNotInitialized = errors.New("checkpoint not initialized")

	// ErrCheckpointNotFound is returned when loading a checkpoint file
	// that does not exist.
	ErrCheckpointNotFound = errors.New("checkpoint file not found")

	// ErrCheckpointCorrupt is returned when a checkpoint file cannot be
	// decoded. Integrity issues found after a successful decode are
	// reported by VerifyIntegrity instead.
	ErrCheckpointCorrupt = errors.New("checkpoint file is corrupt")

	// ErrUnknownPhase is returned when a phase name is not one of the
	// three fixed pipeline phases.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrIllegalTransition is returned when a status change is not
	// permitted by the transition table.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrLockNotHeld is returned by mutating operations when strict
	// locking is enabled and the advisory lock could not be acquired
	// within the timeout.
	ErrLockNotHeld = errors.New("advisory lock not held")
)
