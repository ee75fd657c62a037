package executor

import "testing"

func fixedMemory(mb uint64) MemoryFunc {
	return func() (uint64, error) { return mb, nil }
}

func TestBatchSize(t *testing.T) {
	t.Parallel()

	t.Run("non-increasing as memory usage rises", func(t *testing.T) {
		t.Parallel()

		const total = 1000
		prev := 0
		for i, usage := range []uint64{64, 256, 512, 716, 900, 1024, 2048} {
			sizer := NewBatchSizer(1024, WithMemoryFunc(fixedMemory(usage)))
			size := sizer.BatchSize(total)
			if i > 0 && size > prev {
				t.Errorf("BatchSize(%d) at %dMB = %d, larger than %d at lower usage", total, usage, size, prev)
			}
			prev = size
		}
	})

	t.Run("stays within bounds", func(t *testing.T) {
		t.Parallel()

		for _, total := range []int{10, 100, 1000, 10000, 50000} {
			for _, usage := range []uint64{1, 512, 1024, 4096} {
				sizer := NewBatchSizer(1024, WithMemoryFunc(fixedMemory(usage)))
				size := sizer.BatchSize(total)

				upper := total / 2
				if upper < minBatchSize {
					upper = minBatchSize
				}
				if size < minBatchSize || size > upper {
					t.Errorf("BatchSize(%d) at %dMB = %d, want within [%d, %d]", total, usage, size, minBatchSize, upper)
				}
			}
		}
	})

	t.Run("large lists use a smaller base fraction", func(t *testing.T) {
		t.Parallel()

		sizer := NewBatchSizer(1024, WithMemoryFunc(fixedMemory(64)))
		small := sizer.BatchSize(10000)
		large := sizer.BatchSize(10001)
		if large >= small {
			t.Errorf("BatchSize(10001) = %d, want smaller than BatchSize(10000) = %d", large, small)
		}
	})

	t.Run("high pressure halves the batch", func(t *testing.T) {
		t.Parallel()

		low := NewBatchSizer(1024, WithMemoryFunc(fixedMemory(512))).BatchSize(1000)
		high := NewBatchSizer(1024, WithMemoryFunc(fixedMemory(800))).BatchSize(1000)
		if high*2 > low {
			t.Errorf("BatchSize at 800MB = %d, want at most half of %d at 512MB", high, low)
		}
	})

	t.Run("memory probe failure falls back to base size", func(t *testing.T) {
		t.Parallel()

		sizer := NewBatchSizer(1024, WithMemoryFunc(func() (uint64, error) {
			return 0, errProbeUnavailable
		}))
		if got := sizer.BatchSize(1000); got != 100 {
			t.Errorf("BatchSize(1000) = %d, want base 100", got)
		}
	})
}

func TestSkipCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		processed int
		batchSize int
		want      int
	}{
		{"no progress", 0, 50, 0},
		{"partial batch does not count", 49, 50, 0},
		{"exact batch", 50, 50, 1},
		{"several batches plus remainder", 130, 50, 2},
		{"zero batch size", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SkipCount(tt.processed, tt.batchSize); got != tt.want {
				t.Errorf("SkipCount(%d, %d) = %d, want %d", tt.processed, tt.batchSize, got, tt.want)
			}
		})
	}
}
