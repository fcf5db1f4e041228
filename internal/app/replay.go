package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/ingest"
	"github.com/Stripstone/OfflineEbayMonitor/internal/service"
	"github.com/Stripstone/OfflineEbayMonitor/internal/storage"
)

// Replay rebuilds the benchmark store from archived snapshots, oldest capture first. Each
// snapshot is one capture cycle observed at its capture time, so the result is deterministic.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	dir := opts.Dir
	if dir == "" {
		dir = a.Config.Scan.ArchiveDir
	}
	if dir == "" {
		return errors.New("no replay directory: pass --dir or set scan.archive_dir")
	}

	enricher, err := a.Config.Enricher()
	if err != nil {
		return err
	}
	loader := ingest.NewLoader(ingest.Options{Dir: dir, Pattern: opts.Pattern}, enricher, a.Logger)

	benchOpts, err := a.Config.BenchmarkOptions()
	if err != nil {
		return err
	}
	store := benchmark.NewStore(benchOpts)
	capture := service.CaptureOptions{
		BumpPct:    decimal.NewFromFloat(a.Config.Benchmark.CaptureBumpPct),
		MaxMinutes: a.Config.Benchmark.CaptureMaxMinutes,
	}

	snaps, err := loader.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return errors.New("no snapshots found to replay")
	}

	ingest.SortByCapturedAt(snaps)
	captured := 0
	for _, snap := range snaps {
		captured += service.CaptureBenchmarks(store, snap.Listings, snap.CapturedAt, capture)
	}
	a.Logger.Info().
		Int("snapshots", len(snaps)).
		Int("captured", captured).
		Int("keys", store.Len()).
		Msg("replay complete")

	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: benchmarks not written")
		printBenchmarks(store.Snapshot(), 0)
		return nil
	}

	db, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	benchmarks, err := a.benchmarkStore(db)
	if err != nil {
		return err
	}
	if r, ok := benchmarks.(storage.BenchmarkReplacer); ok {
		return r.ReplaceBenchmarks(ctx, store.Snapshot())
	}
	return benchmarks.SaveBenchmarks(ctx, store.Snapshot())
}
