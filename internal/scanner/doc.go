// Package scanner sequences the three-phase reconnaissance pipeline:
// subdomain enumeration, liveness probing, and vulnerability scanning.
// The orchestrator owns the scan's transient state, drives the
// checkpoint store and batch executor, consults the result cache
// before external invocations, and turns interrupts into resumable
// pauses instead of lost work.
package scanner
