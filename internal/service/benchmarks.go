package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/storage"
)

// FileBenchmarks persists the benchmark snapshot as a local JSON file.
type FileBenchmarks struct {
	path   string
	logger zerolog.Logger
}

// NewFileBenchmarks returns a file-backed benchmark store.
func NewFileBenchmarks(path string, logger zerolog.Logger) *FileBenchmarks {
	return &FileBenchmarks{path: path, logger: logger.With().Str("component", "benchmark_file").Logger()}
}

// LoadBenchmarks reads the snapshot. Malformed entries are dropped with a warning.
func (f *FileBenchmarks) LoadBenchmarks(_ context.Context) (benchmark.Snapshot, error) {
	snap, skipped, err := benchmark.LoadFile(f.path)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		f.logger.Warn().Int("skipped", skipped).Str("path", f.path).Msg("dropped malformed benchmark entries")
	}
	return snap, nil
}

// SaveBenchmarks atomically replaces the snapshot file.
func (f *FileBenchmarks) SaveBenchmarks(_ context.Context, snap benchmark.Snapshot) error {
	return benchmark.SaveFile(f.path, snap)
}

var _ storage.BenchmarkStore = (*FileBenchmarks)(nil)
