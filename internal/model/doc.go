// Package model defines the shared domain types for autosubnuclei:
// severity levels, parsed findings, and scan summaries exchanged between
// the scanner, report writers, and the history database.
package model
