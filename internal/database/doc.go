// Package database provides SQLite-based storage for scan history.
//
// Completed scans and their findings are recorded so past results can
// be listed and compared across runs without re-reading artifact files
// scattered over output directories.
//
// Design decision: We use modernc.org/sqlite, a pure-Go SQLite driver,
// rather than CGO-based alternatives. This keeps cross-compilation
// simple and avoids a C toolchain dependency.
package database
