package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/autosubnuclei/autosubnuclei/internal/config"
	"github.com/autosubnuclei/autosubnuclei/internal/model"
	"github.com/autosubnuclei/autosubnuclei/internal/scanner"
)

// writeSettingsFile writes a settings file into a temp dir and returns
// its path.
func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".autosubnuclei")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}
	return path
}

// TestNewScanCmd tests the scan command creation.
func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scan [domain]" {
			t.Errorf("expected use 'scan [domain]', got %q", cmd.Use)
		}
	})

	t.Run("has pipeline flags", func(t *testing.T) {
		t.Parallel()
		for name, shorthand := range map[string]string{
			"output":           "o",
			"templates":        "T",
			"severities":       "s",
			"timeout":          "t",
			"concurrency":      "C",
			"memory-threshold": "m",
			"config":           "c",
		} {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Errorf("expected flag %q", name)
				continue
			}
			if flag.Shorthand != shorthand {
				t.Errorf("flag %q: expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
			}
		}
		for _, name := range []string{"no-cache", "cache-ttl", "no-notify", "no-db"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q", name)
			}
		}
	})

	t.Run("requires exactly one argument", func(t *testing.T) {
		t.Parallel()
		cmd := NewScanCmd()
		if err := cmd.Args(cmd, nil); err == nil {
			t.Error("expected error for missing domain argument")
		}
		if err := cmd.Args(cmd, []string{"a.com", "b.com"}); err == nil {
			t.Error("expected error for extra arguments")
		}
		if err := cmd.Args(cmd, []string{"a.com"}); err != nil {
			t.Errorf("expected no error for one argument, got %v", err)
		}
	})
}

// TestBuildConfig tests config construction from flags and settings.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults with empty settings", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, "")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", settingsPath}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"Example.COM"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.Domain != "example.com" {
			t.Errorf("expected lowercased domain, got %q", cfg.Domain)
		}
		if cfg.OutputDir != "output" {
			t.Errorf("expected default output dir, got %q", cfg.OutputDir)
		}
		if cfg.ToolTimeout != config.DefaultToolTimeout {
			t.Errorf("expected default tool timeout, got %v", cfg.ToolTimeout)
		}
		if !cfg.CacheEnabled {
			t.Error("expected cache enabled by default")
		}
		if !cfg.SaveToDB {
			t.Error("expected database save enabled by default")
		}
		if len(cfg.Severities) != len(model.DefaultSeverities()) {
			t.Errorf("expected default severities, got %v", cfg.Severities)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, "")
		cmd := NewScanCmd()
		err := cmd.ParseFlags([]string{
			"--config", settingsPath,
			"--output", "/tmp/recon",
			"--severities", "high,critical",
			"--timeout", "5m",
			"--concurrency", "4",
			"--memory-threshold", "512",
			"--no-cache",
			"--no-notify",
			"--no-db",
		})
		if err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.OutputDir != "/tmp/recon" {
			t.Errorf("expected output dir /tmp/recon, got %q", cfg.OutputDir)
		}
		if len(cfg.Severities) != 2 || cfg.Severities[0] != model.SeverityHigh {
			t.Errorf("expected [high critical], got %v", cfg.Severities)
		}
		if cfg.ToolTimeout != 5*time.Minute {
			t.Errorf("expected 5m timeout, got %v", cfg.ToolTimeout)
		}
		if cfg.Concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", cfg.Concurrency)
		}
		if cfg.MemoryThresholdMB != 512 {
			t.Errorf("expected memory threshold 512, got %d", cfg.MemoryThresholdMB)
		}
		if cfg.CacheEnabled {
			t.Error("expected cache disabled")
		}
		if cfg.NotifyEnabled {
			t.Error("expected notifications disabled")
		}
		if cfg.SaveToDB {
			t.Error("expected database save disabled")
		}
	})

	t.Run("settings file supplies defaults", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, strings.Join([]string{
			"defaultSeverities: [info, low]",
			"defaultOutputDir: /data/recon",
		}, "\n"))
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", settingsPath}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.OutputDir != "/data/recon" {
			t.Errorf("expected settings output dir, got %q", cfg.OutputDir)
		}
		if len(cfg.Severities) != 2 || cfg.Severities[0] != model.SeverityInfo {
			t.Errorf("expected [info low], got %v", cfg.Severities)
		}
	})

	t.Run("severities flag overrides settings", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, "defaultSeverities: [info]")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", settingsPath, "--severities", "critical"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if len(cfg.Severities) != 1 || cfg.Severities[0] != model.SeverityCritical {
			t.Errorf("expected [critical], got %v", cfg.Severities)
		}
	})

	t.Run("output flag overrides settings", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, "defaultOutputDir: /data/recon")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", settingsPath, "--output", "/elsewhere"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}

		if cfg.OutputDir != "/elsewhere" {
			t.Errorf("expected flag output dir, got %q", cfg.OutputDir)
		}
	})

	t.Run("missing explicit settings file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		path := filepath.Join(t.TempDir(), "nope.yaml")
		if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd, []string{"example.com"}); err == nil {
			t.Error("expected error for missing settings file")
		}
	})

	t.Run("invalid severities flag is an error", func(t *testing.T) {
		t.Parallel()

		settingsPath := writeSettingsFile(t, "")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", settingsPath, "--severities", "nuclear"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd, []string{"example.com"}); err == nil {
			t.Error("expected error for unknown severity")
		}
	})
}

// TestSetupLogger tests logger creation.
func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("default level suppresses debug", func(t *testing.T) {
		t.Parallel()
		logger := setupLogger(false, false)
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug disabled without verbose")
		}
	})

	t.Run("verbose enables debug", func(t *testing.T) {
		t.Parallel()
		logger := setupLogger(true, false)
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug enabled with verbose")
		}
	})

	t.Run("json variant keeps the level behavior", func(t *testing.T) {
		t.Parallel()
		logger := setupLogger(true, true)
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug enabled with verbose json logger")
		}
	})
}

// TestGetPersistentBool tests flag lookup via root fallback.
func TestGetPersistentBool(t *testing.T) {
	t.Parallel()

	t.Run("default is false", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		if getPersistentBool(root, "verbose") {
			t.Error("expected verbose false by default")
		}
		if getPersistentBool(root, "log-json") {
			t.Error("expected log-json false by default")
		}
	})

	t.Run("set on root", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
			t.Fatalf("failed to set flag: %v", err)
		}
		if !getPersistentBool(root, "verbose") {
			t.Error("expected verbose true")
		}
	})

	t.Run("unknown flag is false", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		if getPersistentBool(root, "no-such-flag") {
			t.Error("expected false for unknown flag")
		}
	})
}

// TestNewNotifier tests webhook notifier wiring from settings.
func TestNewNotifier(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	t.Run("nil without settings", func(t *testing.T) {
		t.Parallel()
		cfg := config.New()
		if n := newNotifier(cfg, logger); n != nil {
			t.Error("expected nil notifier without settings")
		}
	})

	t.Run("nil when notifications disabled in settings", func(t *testing.T) {
		t.Parallel()
		cfg := config.New()
		cfg.Settings = &config.Settings{DiscordWebhook: "https://example.com/hook"}
		if n := newNotifier(cfg, logger); n != nil {
			t.Error("expected nil notifier when settings flag is off")
		}
	})

	t.Run("nil when disabled by flag", func(t *testing.T) {
		t.Parallel()
		cfg := config.New()
		cfg.NotifyEnabled = false
		cfg.Settings = &config.Settings{
			DiscordWebhook:       "https://example.com/hook",
			NotificationsEnabled: true,
		}
		if n := newNotifier(cfg, logger); n != nil {
			t.Error("expected nil notifier when --no-notify is set")
		}
	})

	t.Run("configured webhook yields notifier", func(t *testing.T) {
		t.Parallel()
		cfg := config.New()
		cfg.Settings = &config.Settings{
			DiscordWebhook:       "https://example.com/hook",
			NotificationsEnabled: true,
		}
		if n := newNotifier(cfg, logger); n == nil {
			t.Error("expected notifier for configured webhook")
		}
	})
}

// TestOutputReport tests report artifact generation.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.Domain = "example.com"
	cfg.OutputDir = t.TempDir()

	summary := &model.ScanSummary{
		ScanID:               "example.com-1700000000-abcd1234",
		Domain:               "example.com",
		Status:               "completed",
		StartTime:            time.Now(),
		Duration:             3 * time.Minute,
		SubdomainsFound:      10,
		AliveSubdomains:      4,
		VulnerabilitiesFound: 1,
	}
	findings := []model.Finding{
		{
			TemplateID: "exposed-panel",
			Severity:   model.SeverityHigh,
			Target:     "https://admin.example.com",
			Raw:        "[exposed-panel] [http] [high] https://admin.example.com",
		},
	}

	if err := outputReport(cfg, summary, findings); err != nil {
		t.Fatalf("outputReport failed: %v", err)
	}

	txt, err := os.ReadFile(filepath.Join(cfg.DomainOutputDir(), scanner.ReportFile))
	if err != nil {
		t.Fatalf("failed to read text report: %v", err)
	}
	if !strings.Contains(string(txt), "example.com") {
		t.Error("expected domain in text report")
	}
	if !strings.Contains(string(txt), "exposed-panel") {
		t.Error("expected finding in text report")
	}

	md, err := os.ReadFile(filepath.Join(cfg.DomainOutputDir(), "scan_report.md"))
	if err != nil {
		t.Fatalf("failed to read markdown report: %v", err)
	}
	if !strings.Contains(string(md), "Scan Report") {
		t.Error("expected heading in markdown report")
	}
}
