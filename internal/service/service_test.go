package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
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
	"github.com/Stripstone/OfflineEbayMonitor/internal/seen"
	"github.com/Stripstone/OfflineEbayMonitor/internal/storage"
)

const morganKey = "Morgan Dollar|1921|P"

var cycleNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	snaps   []ingest.Snapshot
	err     error
	retired []string
}

func (f *fakeSource) LoadAll(context.Context) ([]ingest.Snapshot, error) {
	return f.snaps, f.err
}

func (f *fakeSource) Retire(path string) error {
	f.retired = append(f.retired, path)
	return nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n alerting.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

type fakeRuns struct {
	started  []uuid.UUID
	finished []storage.ScanRun
}

func (f *fakeRuns) StartScanRun(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeRuns) FinishScanRun(_ context.Context, run storage.ScanRun) error {
	f.finished = append(f.finished, run)
	return nil
}

func (f *fakeRuns) ListRecentScanRuns(context.Context, int) ([]storage.ScanRun, error) {
	return f.finished, nil
}

type fakeLocker struct {
	acquired bool
}

func (f fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return func() {}, f.acquired, nil
}

func record(id, item string, bids int, endsIn time.Duration) listing.Record {
	end := cycleNow.Add(endsIn)
	return listing.Record{
		ItemID:        id,
		Title:         "1921 Morgan Silver Dollar",
		Quantity:      listing.Qty(1),
		ItemPrice:     decimal.NewNullDecimal(decimal.RequireFromString(item)),
		ShippingPrice: decimal.NewNullDecimal(decimal.Zero),
		BidCount:      bids,
		EndTime:       &end,
		IdentityKey:   morganKey,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Alerting.Enabled = true
	cfg.Benchmark.CaptureBumpPct = 8
	cfg.Benchmark.CaptureMaxMinutes = 30
	return cfg
}

type harness struct {
	svc      *Service
	source   *fakeSource
	notifier *fakeNotifier
	runs     *fakeRuns
	benchDir string
	diagDir  string
}

func newHarness(t *testing.T, cfg *config.Config, deps Deps) harness {
	t.Helper()
	dir := t.TempDir()
	h := harness{
		source:   &fakeSource{},
		notifier: &fakeNotifier{},
		runs:     &fakeRuns{},
		benchDir: dir,
		diagDir:  filepath.Join(dir, "diag"),
	}
	h.source.snaps = []ingest.Snapshot{{
		Path: "snap-1.json",
		Listings: []listing.Record{
			record("100", "15.00", 0, 5*time.Minute),
			record("100", "15.00", 0, 5*time.Minute),
			record("200", "40.00", 3, 10*time.Minute),
		},
	}}

	deps.Source = h.source
	deps.Benchmarks = NewFileBenchmarks(filepath.Join(dir, "benchmarks.json"), zerolog.Nop())
	deps.Seen = seen.NewFileStore(filepath.Join(dir, "seen.json"), time.Hour)
	if deps.Notifier == nil {
		deps.Notifier = h.notifier
	}
	deps.Runs = h.runs
	deps.Diagnostics = diagnostics.NewWriter(h.diagDir)

	svc, err := New(cfg, nil, deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return cycleNow }
	h.svc = svc
	return h
}

func TestScanCycle(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{})

	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Files != 1 || res.Seen != 2 {
		t.Fatalf("files/seen = %d/%d, want 1/2", res.Files, res.Seen)
	}
	if res.Hits != 1 || res.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 1/1", res.Hits, res.Misses)
	}
	if res.Captured != 1 {
		t.Fatalf("captured = %d, want 1", res.Captured)
	}
	if res.Notified != 1 || len(h.notifier.notes) != 1 {
		t.Fatalf("notified = %d (%d notes), want 1", res.Notified, len(h.notifier.notes))
	}
	if got := h.notifier.notes[0].Verdict.Listing.ItemID; got != "100" {
		t.Fatalf("notified item %s, want 100", got)
	}

	snap, _, err := benchmark.LoadFile(filepath.Join(h.benchDir, "benchmarks.json"))
	if err != nil {
		t.Fatalf("load benchmarks: %v", err)
	}
	entry, ok := snap[morganKey]
	if !ok {
		t.Fatalf("benchmark for %s not saved", morganKey)
	}
	if !entry.EMA.Equal(decimal.RequireFromString("43.2")) || entry.Observers != 3 {
		t.Fatalf("entry = %+v, want ema 43.2 with 3 observers", entry)
	}
	if mem := h.svc.Benchmarks(); !mem[morganKey].EMA.Equal(entry.EMA) {
		t.Fatalf("in-memory benchmark %s differs from saved %s", mem[morganKey].EMA, entry.EMA)
	}

	if len(h.source.retired) != 1 || h.source.retired[0] != "snap-1.json" {
		t.Fatalf("retired = %v", h.source.retired)
	}
	if len(h.runs.finished) != 1 || h.runs.finished[0].Status != storage.RunCompleted || h.runs.finished[0].Hits != 1 {
		t.Fatalf("scan run = %+v", h.runs.finished)
	}
	if _, err := os.Stat(filepath.Join(h.diagDir, diagnostics.JSONFile)); err != nil {
		t.Fatalf("diagnostics not written: %v", err)
	}
}

func TestSecondCycleSuppressesSeenHits(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{})

	if _, err := h.svc.ScanOnce(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res.Hits != 1 || res.Notified != 0 {
		t.Fatalf("hits/notified = %d/%d, want 1/0", res.Hits, res.Notified)
	}

	diag := h.svc.Diagnostics()
	if diag.Cycles != 2 || diag.TotalSeen != 4 {
		t.Fatalf("cycles/seen = %d/%d, want 2/4", diag.Cycles, diag.TotalSeen)
	}
	if diag.HitCount+diag.ProsCount+diag.MissCount+diag.IneligibleCount != diag.TotalSeen {
		t.Fatalf("diagnostics counts do not balance: %+v", diag)
	}
}

func TestAlertsDisabledLeavesSeenUntouched(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerting.Enabled = false
	h := newHarness(t, cfg, Deps{})

	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Notified != 0 || len(h.notifier.notes) != 0 {
		t.Fatalf("no notifications expected, got %d", res.Notified)
	}
	fresh, err := h.svc.deps.Seen.FilterNew(context.Background(), []string{"itm:100"})
	if err != nil || len(fresh) != 1 {
		t.Fatalf("hit should still be unseen: %v %v", fresh, err)
	}
}

func TestUndeliveredAlertStaysUnseen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerting.Channels = []string{"telegram"}
	fan := alerting.NewFanout(zerolog.Nop())
	fan.Add("log", alerting.NewLogNotifier(zerolog.Nop()))
	h := newHarness(t, cfg, Deps{Notifier: fan})

	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Hits != 1 || res.Notified != 0 {
		t.Fatalf("hits/notified = %d/%d, want 1/0", res.Hits, res.Notified)
	}
	fresh, err := h.svc.deps.Seen.FilterNew(context.Background(), []string{"itm:100"})
	if err != nil || len(fresh) != 1 {
		t.Fatalf("undelivered hit must stay unseen: %v %v", fresh, err)
	}
}

func TestProsNotificationsCanBeFiltered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerting.NotifyHits = false
	h := newHarness(t, cfg, Deps{})

	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Hits != 1 || res.Notified != 0 {
		t.Fatalf("hits/notified = %d/%d, want 1/0", res.Hits, res.Notified)
	}
}

func TestCycleSkippedWhenLockHeld(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{Locker: fakeLocker{acquired: false}})

	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !res.Skipped || len(h.source.retired) != 0 || len(h.runs.started) != 0 {
		t.Fatalf("cycle should be skipped: %+v", res)
	}
}

func TestLoadFailureMarksRunFailed(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{})
	h.source.err = errors.New("disk gone")

	if _, err := h.svc.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if len(h.runs.finished) != 1 || h.runs.finished[0].Status != storage.RunFailed || h.runs.finished[0].Error == nil {
		t.Fatalf("scan run = %+v", h.runs.finished)
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(testConfig(t), nil, Deps{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestCaptureBenchmarks(t *testing.T) {
	opts := benchmark.DefaultOptions()

	tests := []struct {
		name string
		recs []listing.Record
		want int
	}{
		{"ending too late", []listing.Record{record("1", "20.00", 2, 45*time.Minute)}, 0},
		{"already ended", []listing.Record{record("1", "20.00", 2, -time.Minute)}, 0},
		{"no bids", []listing.Record{record("1", "20.00", 0, 5*time.Minute)}, 0},
		{"one per key", []listing.Record{
			record("1", "20.00", 2, 5*time.Minute),
			record("2", "25.00", 2, 6*time.Minute),
		}, 1},
		{"unknown end time passes the time gate", []listing.Record{func() listing.Record {
			r := record("1", "20.00", 2, 0)
			r.EndTime = nil
			return r
		}()}, 1},
		{"no identity", []listing.Record{func() listing.Record {
			r := record("1", "20.00", 2, 5*time.Minute)
			r.IdentityKey = ""
			return r
		}()}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := benchmark.NewStore(opts)
			got := CaptureBenchmarks(store, tt.recs, cycleNow, CaptureOptions{MaxMinutes: 30})
			if got != tt.want {
				t.Fatalf("captured = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCaptureUsesEarliestEnding(t *testing.T) {
	store := benchmark.NewStore(benchmark.DefaultOptions())
	recs := []listing.Record{
		record("late", "30.00", 2, 20*time.Minute),
		record("early", "20.00", 2, 5*time.Minute),
	}
	CaptureBenchmarks(store, recs, cycleNow, CaptureOptions{BumpPct: decimal.NewFromInt(10)})

	e, ok := store.Lookup(morganKey)
	if !ok || !e.EMA.Equal(decimal.RequireFromString("22")) {
		t.Fatalf("entry = %+v, want ema 22 from the earliest listing", e)
	}
}

func TestVerdictsSortedByEndTime(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{})
	res, err := h.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Verdicts) != 2 || res.Verdicts[0].Outcome != classify.Hit {
		t.Fatalf("verdicts = %+v", res.Verdicts)
	}
}
