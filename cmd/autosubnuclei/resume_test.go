package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autosubnuclei/autosubnuclei/internal/checkpoint"
	"github.com/autosubnuclei/autosubnuclei/internal/config"
)

// resumeTestConfig returns a config pointing at a temp output root.
func resumeTestConfig(t *testing.T, domain string) *config.Config {
	t.Helper()

	cfg := config.New()
	cfg.Domain = domain
	cfg.OutputDir = t.TempDir()
	return cfg
}

// writeCheckpointDoc writes a raw checkpoint document where the resume
// command expects to find it.
func writeCheckpointDoc(t *testing.T, cfg *config.Config, doc map[string]any) {
	t.Helper()

	dir := filepath.Join(cfg.DomainOutputDir(), "checkpoints")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("failed to create checkpoint dir: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scan_state.json"), data, 0600); err != nil {
		t.Fatalf("failed to write checkpoint: %v", err)
	}
}

// TestNewResumeCmd tests the resume command creation.
func TestNewResumeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewResumeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "resume [domain]" {
			t.Errorf("expected use 'resume [domain]', got %q", cmd.Use)
		}
	})

	t.Run("has yes flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("yes")
		if flag == nil {
			t.Fatal("expected yes flag")
		}
		if flag.Shorthand != "y" {
			t.Errorf("expected shorthand 'y', got %q", flag.Shorthand)
		}
	})

	t.Run("shares pipeline flags with scan", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"output", "templates", "severities", "config"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q", name)
			}
		}
	})
}

// TestConfirmRepair tests the pre-resume checkpoint preview.
func TestConfirmRepair(t *testing.T) {
	t.Parallel()

	t.Run("missing checkpoint", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		var out bytes.Buffer
		err := confirmRepair(&out, strings.NewReader(""), cfg, false)
		if err == nil {
			t.Fatal("expected error for missing checkpoint")
		}
		if !strings.Contains(err.Error(), "no resumable scan") {
			t.Errorf("expected resumable-scan error, got %v", err)
		}
	})

	t.Run("healthy checkpoint needs no prompt", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		store := checkpoint.NewStore(cfg.Domain, cfg.DomainOutputDir())
		if err := store.Initialize(context.Background(), nil); err != nil {
			t.Fatalf("failed to initialize checkpoint: %v", err)
		}

		var out bytes.Buffer
		if err := confirmRepair(&out, strings.NewReader(""), cfg, false); err != nil {
			t.Fatalf("expected no error for healthy checkpoint, got %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("expected no output for healthy checkpoint, got %q", out.String())
		}
	})

	t.Run("damaged checkpoint with yes flag", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		writeCheckpointDoc(t, cfg, map[string]any{
			"scan_id": "example.com-1700000000-abcd1234",
			"domain":  "example.com",
			"status":  "paused",
		})

		var out bytes.Buffer
		if err := confirmRepair(&out, strings.NewReader(""), cfg, true); err != nil {
			t.Fatalf("expected --yes to proceed, got %v", err)
		}
		if !strings.Contains(out.String(), "integrity issues") {
			t.Errorf("expected issue listing, got %q", out.String())
		}
	})

	t.Run("damaged checkpoint confirmed interactively", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		writeCheckpointDoc(t, cfg, map[string]any{
			"scan_id": "example.com-1700000000-abcd1234",
			"domain":  "example.com",
			"status":  "paused",
		})

		var out bytes.Buffer
		if err := confirmRepair(&out, strings.NewReader("y\n"), cfg, false); err != nil {
			t.Fatalf("expected 'y' to proceed, got %v", err)
		}
	})

	t.Run("damaged checkpoint declined", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		writeCheckpointDoc(t, cfg, map[string]any{
			"scan_id": "example.com-1700000000-abcd1234",
			"domain":  "example.com",
			"status":  "paused",
		})

		var out bytes.Buffer
		err := confirmRepair(&out, strings.NewReader("n\n"), cfg, false)
		if err == nil {
			t.Fatal("expected error when repair is declined")
		}
	})

	t.Run("domain mismatch never repaired", func(t *testing.T) {
		t.Parallel()

		cfg := resumeTestConfig(t, "example.com")
		writeCheckpointDoc(t, cfg, map[string]any{
			"scan_id": "other.org-1700000000-abcd1234",
			"domain":  "other.org",
			"status":  "paused",
		})

		var out bytes.Buffer
		err := confirmRepair(&out, strings.NewReader("y\n"), cfg, true)
		if err == nil {
			t.Fatal("expected error for domain mismatch")
		}
		if !strings.Contains(err.Error(), "different domain") {
			t.Errorf("expected domain mismatch error, got %v", err)
		}
	})
}
