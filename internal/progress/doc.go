// Package progress renders live scan progress to the terminal. A
// monitor polls the orchestrator's transient state on a fixed interval
// and prints a line whenever the scan moves to a new stage. It only
// ever reads immutable snapshots, never the pipeline's own state.
package progress
