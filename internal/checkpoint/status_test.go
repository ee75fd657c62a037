package checkpoint

import (
	"errors"
	"testing"
)

func TestScanStatusValid(t *testing.T) {
	t.Parallel()

	t.Run("all declared statuses are valid", func(t *testing.T) {
		t.Parallel()

		for _, status := range []ScanStatus{ScanInProgress, ScanPaused, ScanCompleted, ScanFailed} {
			if !status.Valid() {
				t.Errorf("ScanStatus(%q).Valid() = false, want true", status)
			}
		}
	})

	t.Run("unknown status is invalid", func(t *testing.T) {
		t.Parallel()

		if ScanStatus("running").Valid() {
			t.Error("ScanStatus(\"running\").Valid() = true, want false")
		}
		if ScanStatus("").Valid() {
			t.Error("ScanStatus(\"\").Valid() = true, want false")
		}
	})
}

func TestPhases(t *testing.T) {
	t.Parallel()

	t.Run("phases are ordered by pipeline stage", func(t *testing.T) {
		t.Parallel()

		got := Phases()
		want := []Phase{PhaseSubdomainEnumeration, PhaseAliveCheck, PhaseVulnerabilityScan}
		if len(got) != len(want) {
			t.Fatalf("len(Phases()) = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Phases()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})
}

func TestCheckScanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    ScanStatus
		to      ScanStatus
		wantErr bool
	}{
		{"in_progress to paused", ScanInProgress, ScanPaused, false},
		{"in_progress to completed", ScanInProgress, ScanCompleted, false},
		{"in_progress to failed", ScanInProgress, ScanFailed, false},
		{"paused to in_progress", ScanPaused, ScanInProgress, false},
		{"failed to in_progress", ScanFailed, ScanInProgress, false},
		{"completed is terminal", ScanCompleted, ScanInProgress, true},
		{"paused cannot complete directly", ScanPaused, ScanCompleted, true},
		{"failed cannot complete directly", ScanFailed, ScanCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := checkScanTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkScanTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("error = %v, want ErrIllegalTransition", err)
			}
		})
	}
}

func TestCheckPhaseTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    PhaseStatus
		to      PhaseStatus
		wantErr bool
	}{
		{"pending to in_progress", PhasePending, PhaseInProgress, false},
		{"in_progress refresh", PhaseInProgress, PhaseInProgress, false},
		{"in_progress to completed", PhaseInProgress, PhaseCompleted, false},
		{"failed to in_progress", PhaseFailed, PhaseInProgress, false},
		{"pending cannot complete directly", PhasePending, PhaseCompleted, true},
		{"completed is terminal", PhaseCompleted, PhaseInProgress, true},
		{"completed cannot fail", PhaseCompleted, PhaseFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := checkPhaseTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkPhaseTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}
