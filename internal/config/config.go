package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/net/publicsuffix"

	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// Default configuration values.
// These are chosen to match the behavior of the external tools and the
// characteristics of long-running recon scans.
const (
	// DefaultToolTimeout bounds a single external-tool invocation.
	// Thirty minutes accommodates large template sets against slow
	// targets; a stuck tool is killed when this elapses.
	DefaultToolTimeout = 30 * time.Minute

	// DefaultLockTimeout is how long checkpoint writers wait for the
	// advisory lock before proceeding without exclusivity. Ten seconds
	// is far longer than any legitimate holder needs for a
	// read-modify-write of a small JSON document.
	DefaultLockTimeout = 10 * time.Second

	// DefaultLockPollInterval is the retry interval while waiting for
	// the advisory lock. 100ms keeps contention cheap without busy
	// spinning.
	DefaultLockPollInterval = 100 * time.Millisecond

	// DefaultCacheTTL is how long cached tool output stays fresh.
	// Subdomain enumeration results change slowly; 24 hours avoids
	// re-running expensive enumeration on repeat scans of the same
	// domain within a day.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultMemoryThresholdMB is the process memory budget used by
	// adaptive batch sizing. Batches shrink as resident memory
	// approaches this threshold.
	DefaultMemoryThresholdMB = 1024

	// DefaultMaxBackups is the number of checkpoint backup files
	// retained by cleanup.
	DefaultMaxBackups = 5

	// DefaultMaxCacheEntries is the number of cache entries retained
	// when the cache is pruned at scan startup.
	DefaultMaxCacheEntries = 64

	// AppName is the application name used for XDG directory paths.
	AppName = "autosubnuclei"
)

// Config holds all configuration options for a scan.
// This struct is populated from CLI flags and the optional settings
// file, then passed through the application via dependency injection
// rather than global state.
//
// Design decision: A single flat struct instead of nested sub-structs.
// The option count is manageable, and nesting would add complexity
// without significant benefit.
type Config struct {
	// Domain is the root domain to scan.
	Domain string

	// OutputDir is the directory that receives all scan artifacts:
	// subdomains.txt, alive.txt, results.txt, scan_report.txt, the
	// transient state snapshot, and the checkpoints/ subdirectory.
	OutputDir string

	// TemplatesPath is the directory holding the vulnerability template
	// bundle consumed by the scanning tool. It is assumed to be
	// provisioned externally.
	TemplatesPath string

	// Severities are the severity levels passed to the scanning tool.
	Severities []model.Severity

	// ToolTimeout bounds each external-tool invocation. On expiry the
	// subprocess is killed and the batch is recorded as failed.
	ToolTimeout time.Duration

	// Concurrency is the maximum number of concurrent probe batches.
	// Zero selects the number of CPU cores.
	Concurrency int

	// MemoryThresholdMB is the resident-memory budget for adaptive
	// batch sizing, in megabytes.
	MemoryThresholdMB uint64

	// CacheEnabled controls whether enumeration output is served from
	// the result cache when a fresh entry exists.
	CacheEnabled bool

	// CacheTTL is the maximum age of a cache entry before it is
	// considered stale at lookup time.
	CacheTTL time.Duration

	// LockTimeout is how long checkpoint mutations wait for the
	// advisory lock.
	LockTimeout time.Duration

	// LockPollInterval is the retry interval while waiting for the lock.
	LockPollInterval time.Duration

	// NotifyEnabled controls whether scan milestones are posted to the
	// configured webhook. Notification failures never fail a scan.
	NotifyEnabled bool

	// Verbose enables debug-level log output.
	Verbose bool

	// DBDir is the directory for the scan-history SQLite database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether completed scans are recorded in the
	// history database.
	SaveToDB bool

	// SettingsFilePath is the explicit path of the settings file.
	// If empty, the default search order is used (see FindSettingsFile).
	SettingsFilePath string

	// Settings holds values loaded from the settings file.
	Settings *Settings
}

// New creates a Config with default values.
// Many defaults are non-zero, so relying on zero values would be wrong;
// this constructor also documents what the defaults are.
func New() *Config {
	return &Config{
		Severities:        model.DefaultSeverities(),
		ToolTimeout:       DefaultToolTimeout,
		MemoryThresholdMB: DefaultMemoryThresholdMB,
		CacheEnabled:      true,
		CacheTTL:          DefaultCacheTTL,
		LockTimeout:       DefaultLockTimeout,
		LockPollInterval:  DefaultLockPollInterval,
		NotifyEnabled:     true,
		SaveToDB:          true,
		DBDir:             XDGDataDir(),
	}
}

// DomainOutputDir returns the per-domain artifact directory under the
// configured output root.
func (c *Config) DomainOutputDir() string {
	return filepath.Join(c.OutputDir, c.Domain)
}

// EffectiveConcurrency resolves the probe-phase worker count.
func (c *Config) EffectiveConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return runtime.NumCPU()
}

// XDGDataDir returns the XDG data directory for autosubnuclei.
// On Linux: ~/.local/share/autosubnuclei
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for autosubnuclei.
// On Linux: ~/.cache/autosubnuclei
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// XDGConfigDir returns the XDG config directory for autosubnuclei.
// On Linux: ~/.config/autosubnuclei
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first error found rather than collecting all errors,
// because fixing one error often makes others irrelevant. Called once
// after CLI parsing, before any scanning begins.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return ErrNoDomain
	}
	if err := ValidateDomain(c.Domain); err != nil {
		return err
	}
	if len(c.Severities) == 0 {
		return ErrNoSeverities
	}
	for _, s := range c.Severities {
		if !s.Valid() {
			return ErrInvalidSeverity
		}
	}
	if c.ToolTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.MemoryThresholdMB == 0 {
		return ErrInvalidMemoryThreshold
	}
	if c.LockTimeout <= 0 || c.LockPollInterval <= 0 {
		return ErrInvalidLockTiming
	}
	return nil
}

// ValidateDomain checks that the value is a registrable DNS name.
// URLs are rejected; strip the scheme before calling. The check uses
// the public suffix list so bare TLDs and non-ICANN suffixes fail.
func ValidateDomain(domain string) error {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" || strings.ContainsAny(domain, "/: ") {
		return ErrInvalidDomain
	}

	suffix, icann := publicsuffix.PublicSuffix(domain)
	if !icann {
		return ErrInvalidDomain
	}
	// The domain must have at least one label in front of its public
	// suffix ("example.com", not "com").
	if domain == suffix || !strings.HasSuffix(domain, "."+suffix) {
		return ErrInvalidDomain
	}

	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return ErrInvalidDomain
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return ErrInvalidDomain
		}
		for _, r := range label {
			if r != '-' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				return ErrInvalidDomain
			}
		}
	}
	return nil
}
