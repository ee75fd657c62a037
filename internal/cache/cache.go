package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one cached tool invocation result as persisted on disk.
type Entry struct {
	// Timestamp is when the result was stored.
	Timestamp time.Time `json:"timestamp"`

	// Result is the captured stdout of the invocation.
	Result string `json:"result"`
}

// Cache stores tool output as one JSON file per entry.
// Entries become stale TTL after they are written; staleness is checked
// at lookup time and stale entries are simply treated as misses. Nothing
// evicts entries automatically; Prune must be called explicitly.
//
// Design decision: One file per entry instead of a single index file.
// Writes stay atomic per entry without locking, and pruning is a plain
// directory listing sorted by modification time.
type Cache struct {
	// dir is the directory holding entry files.
	dir string

	// ttl is the maximum entry age before it is considered stale.
	ttl time.Duration

	// logger for cache diagnostics.
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a custom logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache rooted at dir with the given TTL.
func New(dir string, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		dir: dir,
		ttl: ttl,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Key derives the cache key for a command line.
// The full argument vector participates in the hash, so any change to
// flags, paths, or the target yields a different key.
func Key(command []string) string {
	h := sha256.Sum256([]byte(strings.Join(command, "\x00")))
	return hex.EncodeToString(h[:])
}

// Get looks up the cached result for a command line.
// It returns false on a miss, on a stale entry, and on any read or
// decode failure; a broken cache must never break a scan.
func (c *Cache) Get(command []string) (string, bool) {
	data, err := os.ReadFile(c.entryPath(Key(command)))
	if err != nil {
		return "", false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Debug("discarding unreadable cache entry", "error", err)
		return "", false
	}

	if time.Since(e.Timestamp) > c.ttl {
		c.logger.Debug("cache entry is stale", "age", time.Since(e.Timestamp))
		return "", false
	}

	return e.Result, true
}

// Put stores a command's output.
// The write goes through a temp file and rename so a crash mid-write
// never leaves a truncated entry behind.
func (c *Cache) Put(command []string, result string) error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return err
	}

	data, err := json.Marshal(Entry{Timestamp: time.Now(), Result: result})
	if err != nil {
		return err
	}

	path := c.entryPath(Key(command))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Prune retains the max most-recently-modified entries and deletes the
// rest. Growth between prunes is accepted; callers invoke this once at
// startup rather than on every write.
func (c *Cache) Prune(max int) error {
	entries, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return err
	}
	if len(entries) <= max {
		return nil
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(entries))
	for _, path := range entries {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: path, modTime: st.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.After(infos[j].modTime)
	})

	for _, fi := range infos[max:] {
		if err := os.Remove(fi.path); err != nil {
			c.logger.Warn("failed to prune cache entry", "path", fi.path, "error", err)
		}
	}

	c.logger.Debug("pruned cache", "kept", max, "removed", len(infos)-max)
	return nil
}

// entryPath returns the file path for a cache key.
func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
