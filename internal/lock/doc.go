// Package lock provides cross-process advisory locking over a single
// file, used to serialize checkpoint mutations between a running scan
// and a concurrent resume or inspect invocation.
//
// Locking is cooperative: it only protects against writers that also
// acquire the lock. Implementations of Locker must provide real mutual
// exclusion; a no-op implementation would silently remove the crash
// consistency the checkpoint store depends on, so none is offered.
package lock
