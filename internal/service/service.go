package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/alerting"
	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/classify"
	"github.com/Stripstone/OfflineEbayMonitor/internal/config"
	"github.com/Stripstone/OfflineEbayMonitor/internal/diagnostics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/ingest"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
	"github.com/Stripstone/OfflineEbayMonitor/internal/metrics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/scheduler"
	"github.com/Stripstone/OfflineEbayMonitor/internal/seen"
	"github.com/Stripstone/OfflineEbayMonitor/internal/storage"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Source yields the listing snapshots of one scan cycle.
type Source interface {
	LoadAll(ctx context.Context) ([]ingest.Snapshot, error)
	Retire(path string) error
}

// Deps are the collaborators of a Service. Only Source and Benchmarks are required.
type Deps struct {
	Source      Source
	Benchmarks  storage.BenchmarkStore
	Seen        seen.Store
	Runs        storage.ScanRunStore
	Alerts      storage.AlertStore
	Locker      storage.AdvisoryLocker
	Notifier    alerting.Notifier
	Diagnostics *diagnostics.Writer
}

// CaptureOptions govern which listings feed the benchmark store.
type CaptureOptions struct {
	// BumpPct raises captured totals to approximate late bidding, applied once at write time.
	BumpPct decimal.Decimal
	// MaxMinutes only captures listings ending within that many minutes; zero disables the gate.
	MaxMinutes int
}

// CycleResult summarises one scan cycle.
type CycleResult struct {
	RunID      uuid.UUID
	Skipped    bool
	Files      int
	Seen       int
	Ineligible int
	Hits       int
	Pros       int
	Misses     int
	Captured   int
	Notified   int
	Verdicts   []classify.Verdict
}

// Service orchestrates ingest, classification, benchmark capture and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	deps       Deps
	bench      *benchmark.Synchronized
	classifier *classify.Classifier
	recorder   *diagnostics.Recorder
	capture    CaptureOptions
	logger     zerolog.Logger

	processID  uuid.UUID
	cycleAt    time.Time
	now        func() time.Time
	alertsOn   bool
	notifyHits bool
	notifyPros bool
	channels   []string
	lockKey    int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("service: listing source is required")
	}
	if deps.Benchmarks == nil {
		return nil, fmt.Errorf("service: benchmark store is required")
	}

	benchOpts, err := cfg.BenchmarkOptions()
	if err != nil {
		return nil, fmt.Errorf("benchmark options: %w", err)
	}
	classifyOpts, err := cfg.ClassifyOptions()
	if err != nil {
		return nil, fmt.Errorf("classify options: %w", err)
	}

	s := &Service{
		scheduler: sched,
		deps:      deps,
		bench:     benchmark.NewSynchronized(benchmark.NewStore(benchOpts)),
		capture: CaptureOptions{
			BumpPct:    decimal.NewFromFloat(cfg.Benchmark.CaptureBumpPct),
			MaxMinutes: cfg.Benchmark.CaptureMaxMinutes,
		},
		logger:     logger.With().Str("component", "service").Logger(),
		processID:  uuid.New(),
		now:        func() time.Time { return time.Now().UTC() },
		alertsOn:   cfg.Alerting.Enabled,
		notifyHits: cfg.Alerting.NotifyHits,
		notifyPros: cfg.Alerting.NotifyPros,
		channels:   cfg.Alerting.Channels,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
	s.recorder = diagnostics.NewRecorder(s.processID.String(), cfg.Diagnostics.SampleLimit)
	classifyOpts.Now = func() time.Time { return s.cycleAt }
	s.classifier = classify.New(classifyOpts, s.bench, s.recorder)
	return s, nil
}

// Run resets the diagnostics files and begins the scan loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if s.deps.Diagnostics != nil {
		if err := s.deps.Diagnostics.Reset(s.processID.String()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to reset diagnostics")
		}
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, cycle int, _ time.Time) error {
		res, err := s.ScanOnce(ctx)
		if err != nil {
			return err
		}
		if !res.Skipped {
			s.logger.Info().Int("cycle", cycle).
				Str("run_id", res.RunID.String()).
				Int("seen", res.Seen).
				Int("hits", res.Hits).
				Int("pros", res.Pros).
				Int("notified", res.Notified).
				Msg("cycle complete")
		}
		return nil
	})
}

// Diagnostics returns the cumulative diagnostics snapshot of this process.
func (s *Service) Diagnostics() diagnostics.Snapshot {
	return s.recorder.Snapshot()
}

// Benchmarks copies the in-memory benchmark table. Safe to call while Run is active.
func (s *Service) Benchmarks() benchmark.Snapshot {
	return s.bench.Snapshot()
}

// ScanOnce runs a single scan cycle under the advisory lock.
func (s *Service) ScanOnce(ctx context.Context) (CycleResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return CycleResult{}, err
	}
	if !proceed {
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return CycleResult{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	start := time.Now()
	res, err := s.executeCycle(ctx)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	metrics.LastCycle.SetToCurrentTime()
	return res, nil
}

func (s *Service) executeCycle(ctx context.Context) (CycleResult, error) {
	s.cycleAt = s.now()
	res := CycleResult{RunID: uuid.New()}
	s.startRun(ctx, res.RunID)

	snaps, err := s.deps.Source.LoadAll(ctx)
	if err != nil {
		err = fmt.Errorf("load snapshots: %w", err)
		s.finishRun(ctx, res, err)
		return res, err
	}
	res.Files = len(snaps)

	if err := s.reloadBenchmarks(ctx); err != nil {
		s.finishRun(ctx, res, err)
		return res, err
	}

	listings := dedupeListings(ingest.Listings(snaps))
	s.recorder.StartCycle()
	verdicts, snap := s.classifier.Classify(listings)
	res.Verdicts = verdicts
	res.Seen = len(verdicts)
	for _, v := range verdicts {
		metrics.ListingsTotal.WithLabelValues(string(v.Outcome)).Inc()
		switch v.Outcome {
		case classify.Hit:
			res.Hits++
		case classify.Pros:
			res.Pros++
		case classify.Miss:
			res.Misses++
			metrics.RejectionsTotal.WithLabelValues(v.Reason).Inc()
		case classify.Ineligible:
			res.Ineligible++
			metrics.RejectionsTotal.WithLabelValues(v.Reason).Inc()
		}
	}

	res.Captured = CaptureBenchmarks(s.bench, listings, s.cycleAt, s.capture)
	metrics.BenchmarkKeys.Set(float64(s.bench.Len()))
	if res.Captured > 0 {
		if err := s.deps.Benchmarks.SaveBenchmarks(ctx, s.bench.Snapshot()); err != nil {
			err = fmt.Errorf("save benchmarks: %w", err)
			s.finishRun(ctx, res, err)
			return res, err
		}
	}

	res.Notified = s.notify(ctx, res.RunID, verdicts)

	if s.deps.Diagnostics != nil {
		if err := s.deps.Diagnostics.Write(snap); err != nil {
			s.logger.Error().Err(err).Msg("failed to write diagnostics")
		}
	}

	for _, sn := range snaps {
		if sn.Path == "" {
			continue
		}
		if err := s.deps.Source.Retire(sn.Path); err != nil {
			s.logger.Error().Err(err).Str("path", sn.Path).Msg("failed to retire snapshot")
		}
	}

	s.finishRun(ctx, res, nil)
	return res, nil
}

func (s *Service) reloadBenchmarks(ctx context.Context) error {
	snap, err := s.deps.Benchmarks.LoadBenchmarks(ctx)
	if err != nil {
		return fmt.Errorf("load benchmarks: %w", err)
	}
	s.bench.Restore(snap)
	return nil
}

// notify delivers new actionable verdicts and marks the delivered ones as seen.
func (s *Service) notify(ctx context.Context, runID uuid.UUID, verdicts []classify.Verdict) int {
	if !s.alertsOn || s.deps.Notifier == nil {
		return 0
	}

	var (
		candidates []classify.Verdict
		keys       []string
	)
	for _, v := range verdicts {
		if (v.Outcome == classify.Hit && s.notifyHits) || (v.Outcome == classify.Pros && s.notifyPros) {
			candidates = append(candidates, v)
			keys = append(keys, v.Listing.DedupeKey())
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	fresh := keys
	if s.deps.Seen != nil {
		var err error
		fresh, err = s.deps.Seen.FilterNew(ctx, keys)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to read seen listings, skipping notifications")
			return 0
		}
	}
	pending := make(map[string]bool, len(fresh))
	for _, k := range fresh {
		pending[k] = true
	}

	delivered := make([]string, 0, len(fresh))
	for _, v := range candidates {
		key := v.Listing.DedupeKey()
		if !pending[key] {
			continue
		}
		pending[key] = false

		note := alerting.Notification{
			RunID:    runID.String(),
			Verdict:  v,
			Channels: s.channels,
			Now:      s.cycleAt,
		}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to dispatch alert")
			continue
		}
		delivered = append(delivered, key)

		if s.deps.Alerts != nil {
			record := storage.AlertRecord{
				DedupeKey: key,
				ScanRunID: &runID,
				Outcome:   string(v.Outcome),
				Title:     v.Listing.Title,
				Channels:  s.channels,
			}
			if total, ok := v.Listing.TotalPrice(); ok {
				record.TotalPrice = decimal.NewNullDecimal(total)
			}
			if _, err := s.deps.Alerts.InsertAlert(ctx, record); err != nil {
				s.logger.Error().Err(err).Str("key", key).Msg("failed to persist alert record")
			}
		}
	}

	if s.deps.Seen != nil && len(delivered) > 0 {
		if err := s.deps.Seen.MarkSeen(ctx, delivered); err != nil {
			s.logger.Error().Err(err).Msg("failed to mark listings seen")
		}
	}
	return len(delivered)
}

func (s *Service) startRun(ctx context.Context, id uuid.UUID) {
	if s.deps.Runs == nil {
		return
	}
	if err := s.deps.Runs.StartScanRun(ctx, id, s.cycleAt); err != nil {
		s.logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to record scan run start")
	}
}

func (s *Service) finishRun(ctx context.Context, res CycleResult, cycleErr error) {
	if s.deps.Runs == nil {
		return
	}
	finished := s.now()
	run := storage.ScanRun{
		ID:         res.RunID,
		StartedAt:  s.cycleAt,
		FinishedAt: &finished,
		Files:      res.Files,
		Seen:       res.Seen,
		Ineligible: res.Ineligible,
		Hits:       res.Hits,
		Pros:       res.Pros,
		Misses:     res.Misses,
		Captured:   res.Captured,
		Notified:   res.Notified,
		Status:     storage.RunCompleted,
	}
	if cycleErr != nil {
		msg := cycleErr.Error()
		run.Status = storage.RunFailed
		run.Error = &msg
	}
	if err := s.deps.Runs.FinishScanRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", res.RunID.String()).Msg("failed to record scan run result")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// dedupeListings drops repeated listings within one cycle, keeping the first.
func dedupeListings(recs []listing.Record) []listing.Record {
	seenKeys := make(map[string]struct{}, len(recs))
	out := make([]listing.Record, 0, len(recs))
	for _, r := range recs {
		k := r.DedupeKey()
		if _, ok := seenKeys[k]; ok {
			continue
		}
		seenKeys[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CaptureBenchmarks submits at most one observation per identity key, earliest ending first,
// and returns how many the store accepted. A rejected candidate lets the next one for the same
// key try.
func CaptureBenchmarks(w benchmark.Writer, recs []listing.Record, now time.Time, opts CaptureOptions) int {
	ordered := make([]listing.Record, len(recs))
	copy(ordered, recs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].EndTime, ordered[j].EndTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})

	factor := decimal.NewFromInt(1).Add(opts.BumpPct.Div(decimal.NewFromInt(100)))
	captured := make(map[string]struct{})
	for _, rec := range ordered {
		if rec.IdentityKey == "" {
			continue
		}
		if _, done := captured[rec.IdentityKey]; done {
			continue
		}
		total, ok := rec.TotalPrice()
		if !ok {
			continue
		}
		if opts.MaxMinutes > 0 && rec.EndTime != nil {
			left := rec.EndTime.Sub(now)
			if left < 0 || left > time.Duration(opts.MaxMinutes)*time.Minute {
				continue
			}
		}

		obs := benchmark.Observation{
			Key:        rec.IdentityKey,
			TotalPrice: total.Mul(factor),
			BidCount:   rec.BidCount,
			Quantity:   valuation.ResolveQuantity(rec),
			Flags:      rec.Flags,
			ObservedAt: now,
		}
		if w.UpdateIfEligible(obs) {
			captured[rec.IdentityKey] = struct{}{}
			metrics.BenchmarkWrites.WithLabelValues("accepted").Inc()
			continue
		}
		metrics.BenchmarkWrites.WithLabelValues("rejected").Inc()
	}
	return len(captured)
}
