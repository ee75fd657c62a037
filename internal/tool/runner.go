package tool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	applog "github.com/autosubnuclei/autosubnuclei/internal/log"
)

// Runner executes external tools. Implementations other than
// ExecRunner exist only in tests.
type Runner interface {
	// Run executes a tool to completion or context cancellation.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a tool and captures its stdout. Used for tools
	// that stream results rather than writing an output file, so the
	// result can be cached.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Version returns a tool's version string.
	Version(ctx context.Context, name string) (string, error)
}

// ExecRunner runs tools as subprocesses.
//
// Design decision: each tool runs in its own process group, and
// cancellation signals the whole group. nuclei and subfinder fork
// helper processes, and killing only the direct child would leave
// those helpers scanning on after the user hit Ctrl-C.
type ExecRunner struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithTimeout bounds each tool invocation.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *ExecRunner) {
		r.timeout = d
	}
}

// WithRunnerLogger sets a custom logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// NewExecRunner creates an ExecRunner resolving tools through registry.
func NewExecRunner(registry *Registry, opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{
		registry: registry,
		timeout:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes a registered tool with the given arguments. Non-zero
// exits are tolerated for tools whose spec says so; otherwise the
// error wraps ErrToolExecutionFailed and carries the tail of stderr.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.execute(ctx, name, false, args...)
	return err
}

// Output executes a registered tool and returns its captured stdout,
// under the same exit-tolerance rules as Run.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.execute(ctx, name, true, args...)
}

func (r *ExecRunner) execute(ctx context.Context, name string, captureStdout bool, args ...string) ([]byte, error) {
	spec, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	path, err := r.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...) //nolint:gosec // Tool path resolved from registry
	var stdout, stderr bytes.Buffer
	if captureStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	r.logger.Debug("running tool", "command", applog.MaskSecrets(strings.Join(append([]string{name}, args...), " ")))

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	if runCtx.Err() != nil {
		// The context verdict outranks the exit status: a killed tool
		// reports an opaque signal exit that would mask the real cause.
		return nil, fmt.Errorf("%s interrupted after %s: %w", name, elapsed, runCtx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && spec.TolerateExitError {
			r.logger.Debug("tolerating tool exit status",
				"tool", name,
				"exit_code", exitErr.ExitCode(),
				"elapsed", elapsed,
			)
			return stdout.Bytes(), nil
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrToolExecutionFailed, name, err, tailOf(&stderr))
	}

	r.logger.Debug("tool finished", "tool", name, "elapsed", elapsed)
	return stdout.Bytes(), nil
}

// Version runs the tool's version banner and returns its first
// non-empty line.
func (r *ExecRunner) Version(ctx context.Context, name string) (string, error) {
	spec, err := Lookup(name)
	if err != nil {
		return "", err
	}
	path, err := r.registry.Resolve(name)
	if err != nil {
		return "", err
	}

	verCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(verCtx, path, spec.VersionArgs...) //nolint:gosec // Tool path resolved from registry
	var out bytes.Buffer
	cmd.Stdout = &out
	// ProjectDiscovery tools print the version banner to stderr.
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil && out.Len() == 0 {
		return "", fmt.Errorf("%w: %s: %v", ErrToolExecutionFailed, name, err)
	}

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line, nil
		}
	}
	return "unknown", nil
}

// Versions snapshots the versions of every resolvable registered tool.
// Unresolvable optional tools are skipped silently; the result feeds
// the checkpoint environment record, which only covers tools present.
func Versions(ctx context.Context, r Runner) map[string]string {
	versions := make(map[string]string)
	for _, name := range Names() {
		version, err := r.Version(ctx, name)
		if err != nil {
			continue
		}
		versions[name] = version
	}
	return versions
}

// tailOf returns the last line of captured stderr, where tools put
// their actual complaint.
func tailOf(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
