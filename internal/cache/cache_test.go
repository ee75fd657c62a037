package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestKey tests cache key derivation.
func TestKey(t *testing.T) {
	t.Parallel()

	a := Key([]string{"subfinder", "-d", "example.com"})
	b := Key([]string{"subfinder", "-d", "example.org"})

	if a == b {
		t.Error("different commands must produce different keys")
	}
	if a != Key([]string{"subfinder", "-d", "example.com"}) {
		t.Error("identical commands must produce identical keys")
	}

	// Argument boundaries matter: ["ab","c"] and ["a","bc"] differ.
	if Key([]string{"ab", "c"}) == Key([]string{"a", "bc"}) {
		t.Error("argument boundaries must participate in the key")
	}
}

// TestCacheGetPut tests the round trip and staleness behavior.
func TestCacheGetPut(t *testing.T) {
	t.Parallel()

	command := []string{"subfinder", "-d", "example.com"}

	t.Run("miss on empty cache", func(t *testing.T) {
		t.Parallel()

		c := New(t.TempDir(), time.Hour)
		if _, ok := c.Get(command); ok {
			t.Error("expected miss on empty cache")
		}
	})

	t.Run("hit after put", func(t *testing.T) {
		t.Parallel()

		c := New(t.TempDir(), time.Hour)
		if err := c.Put(command, "a.example.com\nb.example.com\n"); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		got, ok := c.Get(command)
		if !ok {
			t.Fatal("expected hit after put")
		}
		if got != "a.example.com\nb.example.com\n" {
			t.Errorf("unexpected cached result: %q", got)
		}
	})

	t.Run("stale entry is a miss but stays on disk", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		c := New(dir, time.Hour)

		// Write an entry whose timestamp is already past the TTL.
		data, err := json.Marshal(Entry{Timestamp: time.Now().Add(-2 * time.Hour), Result: "old"})
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, Key(command)+".json")
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}

		if _, ok := c.Get(command); ok {
			t.Error("expected stale entry to miss")
		}
		// Staleness is read-checked only; the file must not be evicted.
		if _, err := os.Stat(path); err != nil {
			t.Errorf("stale entry was evicted: %v", err)
		}
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		c := New(dir, time.Hour)
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, Key(command)+".json"), []byte("{broken"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, ok := c.Get(command); ok {
			t.Error("expected corrupt entry to miss")
		}
	})
}

// TestCachePrune tests retention of the most recent entries.
func TestCachePrune(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := New(dir, time.Hour)

	for i := 0; i < 5; i++ {
		cmd := []string{"subfinder", "-d", fmt.Sprintf("d%d.example.com", i)}
		if err := c.Put(cmd, "result"); err != nil {
			t.Fatal(err)
		}
		// Space out mtimes so retention order is deterministic.
		path := filepath.Join(dir, Key(cmd)+".json")
		mtime := time.Now().Add(time.Duration(i-5) * time.Minute)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Prune(2); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	remaining, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 entries after prune, got %d", len(remaining))
	}

	// The newest entries (highest i) must be the survivors.
	for _, i := range []int{3, 4} {
		cmd := []string{"subfinder", "-d", fmt.Sprintf("d%d.example.com", i)}
		if _, ok := c.Get(cmd); !ok {
			t.Errorf("expected entry %d to survive prune", i)
		}
	}
}

// TestCachePruneNoop tests that prune below the limit deletes nothing.
func TestCachePruneNoop(t *testing.T) {
	t.Parallel()

	c := New(t.TempDir(), time.Hour)
	if err := c.Put([]string{"cmd"}, "x"); err != nil {
		t.Fatal(err)
	}

	if err := c.Prune(10); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if _, ok := c.Get([]string{"cmd"}); !ok {
		t.Error("entry deleted by no-op prune")
	}
}
