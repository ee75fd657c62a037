// Package checkpoint provides the persistent scan-progress document and
// the lock-protected store that mutates it.
//
// The checkpoint is the authoritative record of a scan: which of the
// three fixed phases have completed, how far the current phase has
// progressed, per-batch resumption offsets, running statistics, and the
// tool-version environment captured at scan start. Every mutation is a
// read-modify-write performed under the cross-process advisory lock and
// persisted to disk before the mutation is considered done, so a crash
// at any point leaves a checkpoint a later resume can start from.
//
// Scan and phase statuses are closed types with explicit transition
// tables; an illegal transition is rejected with an error instead of
// being silently written.
package checkpoint
