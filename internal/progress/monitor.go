package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/autosubnuclei/autosubnuclei/internal/scanner"
)

// DefaultInterval is the poll period for progress display.
const DefaultInterval = time.Second

// stageColors maps each stage to its display color.
var stageColors = map[scanner.Stage]*color.Color{
	scanner.StageInitializing: color.New(color.FgCyan),
	scanner.StageDiscovering:  color.New(color.FgBlue),
	scanner.StageProbing:      color.New(color.FgYellow),
	scanner.StageScanning:     color.New(color.FgMagenta),
	scanner.StageCompleted:    color.New(color.FgGreen, color.Bold),
	scanner.StagePaused:       color.New(color.FgYellow, color.Bold),
	scanner.StageCancelled:    color.New(color.FgYellow, color.Bold),
	scanner.StageError:        color.New(color.FgRed, color.Bold),
}

// stageLabels are the human-readable stage names.
var stageLabels = map[scanner.Stage]string{
	scanner.StageInitializing: "Initializing",
	scanner.StageDiscovering:  "Discovering subdomains",
	scanner.StageProbing:      "Probing subdomains",
	scanner.StageScanning:     "Scanning vulnerabilities",
	scanner.StageCompleted:    "Completed",
	scanner.StagePaused:       "Paused",
	scanner.StageCancelled:    "Cancelled",
	scanner.StageError:        "Error",
}

// Monitor polls a scan's state and prints stage transitions.
type Monitor struct {
	state    *scanner.State
	out      io.Writer
	interval time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// New creates a Monitor writing to out.
func New(state *scanner.State, out io.Writer, opts ...Option) *Monitor {
	m := &Monitor{
		state:    state,
		out:      out,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until ctx is cancelled, printing one line per stage
// transition. It is meant to run in its own goroutine beside the
// pipeline; the final stage is printed before returning so a fast scan
// still shows its outcome.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last scanner.Stage
	for {
		select {
		case <-ctx.Done():
			if snap := m.state.Snapshot(); snap.Stage != last {
				m.printStage(snap)
			}
			return
		case <-ticker.C:
			snap := m.state.Snapshot()
			if snap.Stage != last {
				m.printStage(snap)
				last = snap.Stage
			}
		}
	}
}

func (m *Monitor) printStage(snap scanner.Snapshot) {
	c, ok := stageColors[snap.Stage]
	if !ok {
		c = color.New(color.FgWhite)
	}
	label, ok := stageLabels[snap.Stage]
	if !ok {
		label = string(snap.Stage)
	}

	line := fmt.Sprintf("[%s] %s", snap.Duration.Round(time.Second), c.Sprint(label))
	switch snap.Stage {
	case scanner.StageProbing:
		line += fmt.Sprintf(" (%d subdomains)", snap.Subdomains)
	case scanner.StageScanning:
		line += fmt.Sprintf(" (%d alive)", snap.Alive)
	case scanner.StageCompleted:
		line += fmt.Sprintf(" (%d subdomains, %d alive, %d findings)",
			snap.Subdomains, snap.Alive, snap.Vulnerable)
	case scanner.StageError:
		line += ": " + snap.LastError
	}
	if snap.CacheHit && snap.Stage == scanner.StageProbing {
		line += " [cached enumeration]"
	}

	fmt.Fprintln(m.out, line)
}
