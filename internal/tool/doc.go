// Package tool locates and runs the external reconnaissance binaries
// the pipeline drives. It resolves each tool from a configured tools
// directory before falling back to PATH, snapshots tool versions for
// the checkpoint environment record, and executes tools with
// context-based cancellation that also terminates any child processes
// the tool spawned.
package tool
