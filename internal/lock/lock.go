package lock

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Locker is the capability required by checkpoint writers: a single
// attempt at exclusive acquisition, and release. Implementations must
// provide real mutual exclusion across processes.
//
// Design decision: The interface is deliberately this narrow so the
// timeout/poll policy lives in one place (Acquire) rather than in each
// implementation, and so tests can substitute a contended lock without
// touching the filesystem.
type Locker interface {
	// TryAcquire attempts to take the lock without blocking.
	// It returns true if the lock was taken, false on contention.
	TryAcquire() (bool, error)

	// Release releases the lock. Releasing an unheld lock is an error.
	Release() error
}

// FileLock is an advisory file lock backed by the platform's native
// exclusive lock (flock on Unix, LockFileEx on Windows).
type FileLock struct {
	// path is the lock file path. Its parent directory is created on
	// first acquisition attempt.
	path string

	// fl is the underlying flock handle.
	fl *flock.Flock

	// logger for acquisition diagnostics.
	logger *slog.Logger
}

// Option configures a FileLock.
type Option func(*FileLock)

// WithLogger sets a custom logger for the lock.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLock) {
		l.logger = logger
	}
}

// New creates a FileLock over the given lock file path.
// The file is created on first acquisition if it does not exist.
func New(path string, opts ...Option) *FileLock {
	l := &FileLock{
		path: path,
		fl:   flock.New(path),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryAcquire attempts a non-blocking exclusive lock.
func (l *FileLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return false, err
	}
	return l.fl.TryLock()
}

// Release releases the lock.
// The lock file itself is left in place; removing it would race with
// another process that has already opened it.
func (l *FileLock) Release() error {
	return l.fl.Unlock()
}

// Acquire takes the lock, retrying every poll interval until timeout.
// Timeout is reported as a false return, not an error: callers decide
// whether to proceed without exclusivity. Errors other than contention
// also return false after being logged.
func Acquire(ctx context.Context, l Locker, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.TryAcquire()
		if err != nil {
			slog.Error("lock acquisition error", "error", err)
			return false
		}
		if ok {
			return true
		}

		if time.Now().After(deadline) {
			slog.Warn("timeout waiting for lock", "timeout", timeout)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(poll):
		}
	}
}

// With runs fn while holding the lock, guaranteeing release on every
// exit path including panics. If acquisition times out, fn still runs:
// proceeding without exclusivity matches the store's documented
// behavior, and held is passed so fn can harden itself if it must.
func With(ctx context.Context, l Locker, timeout, poll time.Duration, fn func(held bool) error) error {
	held := Acquire(ctx, l, timeout, poll)
	if held {
		defer func() {
			if err := l.Release(); err != nil {
				slog.Error("lock release error", "error", err)
			}
		}()
	}
	return fn(held)
}
