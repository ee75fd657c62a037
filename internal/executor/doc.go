// Package executor splits target lists into memory-aware batches and
// drives one external-tool invocation per batch. Batch size adapts to
// the process's resident memory relative to a configurable threshold,
// and every completed batch records a resumption offset into the
// owning phase's checkpoint so an interrupted scan can skip work it
// already finished.
package executor
