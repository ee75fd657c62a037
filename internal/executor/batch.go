package executor

import "log/slog"

const (
	// minBatchSize is the floor for any computed batch size.
	minBatchSize = 5

	// largeListThreshold is the target count above which the base
	// batch fraction shrinks, since huge lists amplify per-batch
	// memory cost in the external tools.
	largeListThreshold = 10000

	// highPressureRatio is the fraction of the memory threshold above
	// which batch sizes are halved.
	highPressureRatio = 0.7
)

// BatchSizer computes adaptive batch sizes from current memory
// pressure.
type BatchSizer struct {
	// thresholdMB is the memory budget batch sizing steers toward.
	thresholdMB uint64

	memory MemoryFunc
	logger *slog.Logger
}

// NewBatchSizer creates a BatchSizer with the given memory threshold
// in MB.
func NewBatchSizer(thresholdMB uint64, opts ...SizerOption) *BatchSizer {
	s := &BatchSizer{
		thresholdMB: thresholdMB,
		memory:      ProcessMemoryMB,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SizerOption configures a BatchSizer.
type SizerOption func(*BatchSizer)

// WithMemoryFunc substitutes the memory probe, for tests.
func WithMemoryFunc(fn MemoryFunc) SizerOption {
	return func(s *BatchSizer) {
		s.memory = fn
	}
}

// WithSizerLogger sets a custom logger.
func WithSizerLogger(logger *slog.Logger) SizerOption {
	return func(s *BatchSizer) {
		s.logger = logger
	}
}

// BatchSize computes a batch size for total targets that shrinks as
// memory usage approaches the threshold. The result is always in
// [5, max(1, total/2)], and for a fixed total it never increases as
// memory usage rises.
func (s *BatchSizer) BatchSize(total int) int {
	if total <= 0 {
		return minBatchSize
	}

	base := total / 10
	if total > largeListThreshold {
		base = total / 50
	}
	if base < 1 {
		base = 1
	}

	size := base
	usage, err := s.memory()
	if err != nil {
		s.logger.Warn("memory probe failed, using base batch size", "error", err)
	} else if usage > 0 && s.thresholdMB > 0 {
		ratio := float64(s.thresholdMB) / float64(usage)
		if ratio > 1 {
			ratio = 1
		}
		size = int(float64(base) * ratio)

		if float64(usage) > highPressureRatio*float64(s.thresholdMB) {
			size /= 2
		}
	}

	max := total / 2
	if max < 1 {
		max = 1
	}
	if size > max {
		size = max
	}
	if size < minBatchSize {
		// The floor wins even for tiny lists: a batch larger than the
		// list just means a single invocation.
		size = minBatchSize
	}

	s.logger.Debug("computed adaptive batch size",
		"total", total,
		"batch_size", size,
		"memory_mb", usage,
		"threshold_mb", s.thresholdMB,
	)
	return size
}
