package config

import "errors"

// Configuration validation errors.
// These are returned by Config.Validate() and name exactly what is
// wrong with the configuration.
//
// Design decision: Package-level sentinel errors rather than error
// instances created inside Validate(). Callers can use errors.Is() for
// programmatic handling while still getting human-readable messages.
var (
	// ErrNoDomain is returned when no target domain is specified.
	ErrNoDomain = errors.New("no domain specified: provide a target domain as the first argument")

	// ErrInvalidDomain is returned when the target is not a registrable
	// DNS name (a bare TLD, a URL, or a name with invalid labels).
	ErrInvalidDomain = errors.New("invalid domain: expected a registrable name like example.com")

	// ErrNoSeverities is returned when the severity list is empty.
	ErrNoSeverities = errors.New("no severities specified: provide at least one severity level")

	// ErrInvalidSeverity is returned when a severity level is not one
	// of info, low, medium, high, critical.
	ErrInvalidSeverity = errors.New("invalid severity level")

	// ErrInvalidTimeout is returned when the tool timeout is not positive.
	// A zero timeout would kill every subprocess immediately.
	ErrInvalidTimeout = errors.New("invalid tool timeout: must be positive")

	// ErrInvalidConcurrency is returned when concurrency is negative.
	// Use 0 to select the number of CPU cores.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be non-negative (0 = auto)")

	// ErrInvalidMemoryThreshold is returned when the memory threshold
	// is zero. Adaptive batch sizing divides by this value.
	ErrInvalidMemoryThreshold = errors.New("invalid memory threshold: must be positive")

	// ErrInvalidLockTiming is returned when the lock timeout or poll
	// interval is not positive.
	ErrInvalidLockTiming = errors.New("invalid lock timing: timeout and poll interval must be positive")
)
