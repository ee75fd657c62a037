package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeFakeTool installs a shell script named like a real tool into
// dir, standing in for the actual binary.
func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}

	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0700); err != nil { //nolint:gosec // Script must be executable
		t.Fatal(err)
	}
	return path
}

// No t.Parallel here: subtests manipulate PATH via t.Setenv, which is
// incompatible with parallel tests.
func TestRegistryResolve(t *testing.T) {
	t.Run("tools directory takes precedence over PATH", func(t *testing.T) {
		dir := t.TempDir()
		want := writeFakeTool(t, dir, Subfinder, "exit 0")

		registry := NewRegistry(dir)
		got, err := registry.Resolve(Subfinder)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != want {
			t.Errorf("Resolve() = %q, want %q", got, want)
		}
	})

	t.Run("unknown tool name is rejected", func(t *testing.T) {
		registry := NewRegistry("")
		if _, err := registry.Resolve("amass"); !errors.Is(err, ErrUnknownTool) {
			t.Errorf("Resolve() error = %v, want ErrUnknownTool", err)
		}
	})

	t.Run("unresolvable tool reports ErrToolMissing", func(t *testing.T) {
		// An empty tools dir and a PATH without the binary.
		t.Setenv("PATH", t.TempDir())

		registry := NewRegistry(t.TempDir())
		if _, err := registry.Resolve(Nuclei); !errors.Is(err, ErrToolMissing) {
			t.Errorf("Resolve() error = %v, want ErrToolMissing", err)
		}
	})
}

func TestRegistryResolveRequired(t *testing.T) {
	t.Run("missing required tool fails the whole resolution", func(t *testing.T) {
		dir := t.TempDir()
		writeFakeTool(t, dir, Subfinder, "exit 0")
		writeFakeTool(t, dir, HTTPX, "exit 0")
		// nuclei deliberately absent.
		t.Setenv("PATH", t.TempDir())

		registry := NewRegistry(dir)
		if _, err := registry.ResolveRequired(); !errors.Is(err, ErrToolMissing) {
			t.Errorf("ResolveRequired() error = %v, want ErrToolMissing", err)
		}
	})

	t.Run("notify is optional", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{Subfinder, HTTPX, Nuclei} {
			writeFakeTool(t, dir, name, "exit 0")
		}
		t.Setenv("PATH", t.TempDir())

		registry := NewRegistry(dir)
		paths, err := registry.ResolveRequired()
		if err != nil {
			t.Fatalf("ResolveRequired() error = %v", err)
		}
		if len(paths) != 3 {
			t.Errorf("len(paths) = %d, want 3", len(paths))
		}
		if _, ok := paths[Notify]; ok {
			t.Error("notify resolved as required")
		}
	})
}

func TestExecRunnerRun(t *testing.T) {
	t.Parallel()

	t.Run("successful run returns nil", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, Subfinder, "exit 0")

		runner := NewExecRunner(NewRegistry(dir))
		if err := runner.Run(context.Background(), Subfinder, "-d", "example.com"); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("untolerated exit returns ErrToolExecutionFailed with stderr tail", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, HTTPX, "echo 'could not open input list' >&2; exit 1")

		runner := NewExecRunner(NewRegistry(dir))
		err := runner.Run(context.Background(), HTTPX)
		if !errors.Is(err, ErrToolExecutionFailed) {
			t.Fatalf("Run() error = %v, want ErrToolExecutionFailed", err)
		}
		if !strings.Contains(err.Error(), "could not open input list") {
			t.Errorf("error does not carry stderr tail: %v", err)
		}
	})

	t.Run("nuclei non-zero exit is tolerated", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, Nuclei, "exit 2")

		runner := NewExecRunner(NewRegistry(dir))
		if err := runner.Run(context.Background(), Nuclei); err != nil {
			t.Errorf("Run() error = %v, want nil for tolerated exit", err)
		}
	})

	t.Run("cancellation is reported as a context error", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, Nuclei, "sleep 30")

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		runner := NewExecRunner(NewRegistry(dir))
		start := time.Now()
		err := runner.Run(ctx, Nuclei)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			t.Errorf("Run() took %s after cancellation", elapsed)
		}
	})
}

func TestExecRunnerOutput(t *testing.T) {
	t.Parallel()

	t.Run("captures stdout", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, Subfinder, "echo a.example.com; echo b.example.com")

		runner := NewExecRunner(NewRegistry(dir))
		out, err := runner.Output(context.Background(), Subfinder, "-d", "example.com", "-silent")
		if err != nil {
			t.Fatalf("Output() error = %v", err)
		}
		if got := string(out); got != "a.example.com\nb.example.com\n" {
			t.Errorf("Output() = %q", got)
		}
	})
}

func TestExecRunnerVersion(t *testing.T) {
	t.Parallel()

	t.Run("returns first non-empty banner line", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFakeTool(t, dir, Subfinder, "echo 'Current Version: v2.6.6' >&2")

		runner := NewExecRunner(NewRegistry(dir))
		got, err := runner.Version(context.Background(), Subfinder)
		if err != nil {
			t.Fatalf("Version() error = %v", err)
		}
		if got != "Current Version: v2.6.6" {
			t.Errorf("Version() = %q", got)
		}
	})
}

func TestVersions(t *testing.T) {
	t.Run("skips unresolvable tools", func(t *testing.T) {
		dir := t.TempDir()
		writeFakeTool(t, dir, Subfinder, "echo v2.6.6")
		writeFakeTool(t, dir, Nuclei, "echo v3.3.0")
		t.Setenv("PATH", t.TempDir())

		runner := NewExecRunner(NewRegistry(dir))
		versions := Versions(context.Background(), runner)
		if len(versions) != 2 {
			t.Errorf("len(versions) = %d, want 2: %v", len(versions), versions)
		}
		if versions[Subfinder] != "v2.6.6" {
			t.Errorf("subfinder version = %q", versions[Subfinder])
		}
	})
}
