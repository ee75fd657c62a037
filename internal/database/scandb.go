package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// ScanDB provides SQLite-based storage for scan history.
// It manages connection pooling and provides methods for recording and
// querying past scans.
//
// Design decision: We use a single database file for all domains
// rather than one per domain. This simplifies history queries across
// domains and backup/restore operations.
type ScanDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScanDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are
// created; otherwise a missing database is an error.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, "autosubnuclei.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection strings: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

// Path returns the database file path.
func (sdb *ScanDB) Path() string {
	return sdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (sdb *ScanDB) createTables() error {
	schema := `
	-- Scans store one row per completed (or failed) pipeline run
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL UNIQUE,
		domain TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		subdomains_found INTEGER NOT NULL DEFAULT 0,
		alive_subdomains INTEGER NOT NULL DEFAULT 0,
		vulnerabilities_found INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scans_domain ON scans(domain);
	CREATE INDEX IF NOT EXISTS idx_scans_recorded ON scans(recorded_at);

	-- Findings store the scanning tool's individual results per scan
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_row_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		template_id TEXT,
		severity TEXT NOT NULL,
		target TEXT,
		raw TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_row_id);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// RecordScan stores a scan summary and its findings in one
// transaction. A rerun with the same scan ID replaces the previous row
// and its findings.
func (sdb *ScanDB) RecordScan(ctx context.Context, summary *model.ScanSummary, findings []model.Finding) (int64, error) {
	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	query := `
	INSERT INTO scans (scan_id, domain, status, start_time, duration_seconds,
		subdomains_found, alive_subdomains, vulnerabilities_found)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(scan_id) DO UPDATE SET
		status = excluded.status,
		duration_seconds = excluded.duration_seconds,
		subdomains_found = excluded.subdomains_found,
		alive_subdomains = excluded.alive_subdomains,
		vulnerabilities_found = excluded.vulnerabilities_found,
		recorded_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, query,
		summary.ScanID,
		summary.Domain,
		summary.Status,
		summary.StartTime.UTC().Format("2006-01-02 15:04:05"),
		summary.Duration.Seconds(),
		summary.SubdomainsFound,
		summary.AliveSubdomains,
		summary.VulnerabilitiesFound,
	); err != nil {
		return 0, fmt.Errorf("failed to insert scan: %w", err)
	}

	var rowID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM scans WHERE scan_id = ?", summary.ScanID).Scan(&rowID); err != nil {
		return 0, fmt.Errorf("failed to resolve scan row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE scan_row_id = ?", rowID); err != nil {
		return 0, fmt.Errorf("failed to clear previous findings: %w", err)
	}

	for _, f := range findings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO findings (scan_row_id, template_id, severity, target, raw) VALUES (?, ?, ?, ?, ?)",
			rowID, f.TemplateID, string(f.Severity), f.Target, f.Raw,
		); err != nil {
			return 0, fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan record: %w", err)
	}
	return rowID, nil
}

// RecentScans returns the most recent scans, newest first. An empty
// domain returns scans for all domains.
func (sdb *ScanDB) RecentScans(ctx context.Context, domain string, limit int) ([]model.ScanSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT scan_id, domain, status, start_time, duration_seconds,
		subdomains_found, alive_subdomains, vulnerabilities_found
	FROM scans
	`
	args := []any{}
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []model.ScanSummary
	for rows.Next() {
		var (
			s         model.ScanSummary
			startTime string
			seconds   float64
		)
		if err := rows.Scan(
			&s.ScanID, &s.Domain, &s.Status, &startTime, &seconds,
			&s.SubdomainsFound, &s.AliveSubdomains, &s.VulnerabilitiesFound,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.StartTime = parseTimestamp(startTime)
		s.Duration = time.Duration(seconds * float64(time.Second))
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// FindingsForScan returns a scan's findings, most severe first.
func (sdb *ScanDB) FindingsForScan(ctx context.Context, scanID string) ([]model.Finding, error) {
	query := `
	SELECT f.template_id, f.severity, f.target, f.raw
	FROM findings f
	JOIN scans s ON s.id = f.scan_row_id
	WHERE s.scan_id = ?
	ORDER BY f.id
	`

	rows, err := sdb.db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		var (
			f        model.Finding
			severity string
		)
		if err := rows.Scan(&f.TemplateID, &severity, &f.Target, &f.Raw); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Severity = model.Severity(severity)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may
// return. The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats. SQLite may return timestamps in different formats
// depending on configuration. If parsing fails with all formats,
// returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
