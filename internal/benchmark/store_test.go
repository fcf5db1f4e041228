package benchmark

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

var t0 = time.Date(2025, 12, 13, 9, 34, 52, 0, time.UTC)

func obs(key, price string, bids int) Observation {
	return Observation{
		Key:        key,
		TotalPrice: decimal.RequireFromString(price),
		BidCount:   bids,
		Quantity:   1,
		ObservedAt: t0,
	}
}

func mustEncode(t *testing.T, s *Store) []byte {
	t.Helper()
	data, err := EncodeSnapshot(s.Snapshot())
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	return data
}

func TestUpdateIfEligibleEMA(t *testing.T) {
	s := NewStore(DefaultOptions())
	key := "X|1921|D"

	if !s.UpdateIfEligible(obs(key, "40.00", 2)) {
		t.Fatal("first observation should be written")
	}
	e, ok := s.Lookup(key)
	if !ok || !e.EMA.Equal(decimal.RequireFromString("40.00")) || e.Samples != 1 || e.Observers != 2 {
		t.Fatalf("unexpected first entry: %+v", e)
	}

	second := obs(key, "44.00", 3)
	second.ObservedAt = t0.Add(90 * time.Second)
	if !s.UpdateIfEligible(second) {
		t.Fatal("second observation should be written")
	}
	e, _ = s.Lookup(key)
	if !e.EMA.Equal(decimal.RequireFromString("41.60")) {
		t.Fatalf("ema = %s, want 41.60", e.EMA)
	}
	if e.Samples != 2 || e.Observers != 5 {
		t.Fatalf("samples/observers = %d/%d, want 2/5", e.Samples, e.Observers)
	}
	if !e.LastPrice.Equal(decimal.RequireFromString("44")) || !e.LastUpdated.Equal(t0.Add(90*time.Second)) {
		t.Fatalf("last price/updated not advanced: %+v", e)
	}
}

func TestIneligibleObservationsLeaveStoreUntouched(t *testing.T) {
	s := NewStore(DefaultOptions())
	s.UpdateIfEligible(obs("Morgan Dollar|1883|O", "63.00", 4))
	before := mustEncode(t, s)

	qty2 := obs("Morgan Dollar|1883|O", "50", 2)
	qty2.Quantity = 2
	flagged := obs("Morgan Dollar|1883|O", "50", 2)
	flagged.Flags = listing.FlagAccessory

	cases := map[string]Observation{
		"no bids":     obs("Morgan Dollar|1883|O", "50", 0),
		"no key":      obs("", "50", 3),
		"zero price":  obs("Morgan Dollar|1883|O", "0", 3),
		"quantity 2":  qty2,
		"accessory":   flagged,
		"new key bid": obs("Peace Dollar|1921|P", "80", 0),
	}
	for name, o := range cases {
		if s.UpdateIfEligible(o) {
			t.Fatalf("%s: observation should be rejected", name)
		}
		if after := mustEncode(t, s); !bytes.Equal(before, after) {
			t.Fatalf("%s: store changed:\n%s\nvs\n%s", name, before, after)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d keys, want 1", s.Len())
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	seq := []Observation{
		obs("K|1900|O", "31.20", 1),
		obs("K|1900|O", "35.75", 6),
		obs("K|1900|O", "29.99", 2),
		obs("K|1900|O", "41.10", 9),
		obs("K|1900|O", "33.33", 3),
	}
	run := func() []byte {
		s := NewStore(DefaultOptions())
		for _, o := range seq {
			s.UpdateIfEligible(o)
		}
		return mustEncode(t, s)
	}
	first := run()
	for i := 0; i < 5; i++ {
		if again := run(); !bytes.Equal(first, again) {
			t.Fatalf("replay %d diverged:\n%s\nvs\n%s", i, first, again)
		}
	}
}

func TestEventWeighting(t *testing.T) {
	opts := DefaultOptions()
	opts.Weighting = WeightEvents
	s := NewStore(opts)
	s.UpdateIfEligible(obs("K|1|P", "10", 7))
	s.UpdateIfEligible(obs("K|1|P", "12", 4))
	e, _ := s.Lookup("K|1|P")
	if e.Observers != 2 {
		t.Fatalf("observers = %d, want 2", e.Observers)
	}
}

func TestNewStorePanicsOnBadAlpha(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("alpha 0 should panic")
		}
	}()
	NewStore(Options{Alpha: decimal.Zero})
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewStore(DefaultOptions())
	s.UpdateIfEligible(obs("Morgan Dollar|1883|O", "63.00", 30))
	s.UpdateIfEligible(obs("Morgan Dollar|1883|O", "70.13", 2))
	s.UpdateIfEligible(obs("Barber Half|1900|P", "18.5", 1))

	data := mustEncode(t, s)
	snap, skipped, err := DecodeSnapshot(data)
	if err != nil || skipped != 0 {
		t.Fatalf("decode: skipped=%d err=%v", skipped, err)
	}

	restored := NewStore(DefaultOptions())
	restored.Restore(snap)
	if again := mustEncode(t, restored); !bytes.Equal(data, again) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", data, again)
	}
	for _, k := range s.Keys() {
		a, _ := s.Lookup(k)
		b, _ := restored.Lookup(k)
		if !a.EMA.Equal(b.EMA) || a.Samples != b.Samples || !a.LastUpdated.Equal(b.LastUpdated) || a.Observers != b.Observers {
			t.Fatalf("%s: %+v != %+v", k, a, b)
		}
	}
}

func TestDecodeSnapshotLegacyAndMalformed(t *testing.T) {
	data := []byte(`{
  "Morgan Dollar|1883|O": [63.0, 17, 63.0, 1765618492, 30],
  "Peace Dollar|1922|P": {"ema_price": 41.5, "samples": 3, "last_price": 40, "last_updated": 1765618000, "last_bid_count": 2},
  "Broken|1|P": [0, 0, 0, 0, 0],
  "Short|1|P": [1, 2]
}`)
	snap, skipped, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2", skipped)
	}
	m := snap["Morgan Dollar|1883|O"]
	if !m.EMA.Equal(decimal.NewFromInt(63)) || m.Samples != 17 || m.Observers != 30 {
		t.Fatalf("unexpected compact entry: %+v", m)
	}
	p := snap["Peace Dollar|1922|P"]
	if !p.EMA.Equal(decimal.RequireFromString("41.5")) || !p.LastPrice.Equal(decimal.NewFromInt(40)) || p.Observers != 2 {
		t.Fatalf("unexpected legacy entry: %+v", p)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "benchmarks.json")

	snap, _, err := LoadFile(path)
	if err != nil || len(snap) != 0 {
		t.Fatalf("missing file should load empty: %v %v", snap, err)
	}

	s := NewStore(DefaultOptions())
	s.UpdateIfEligible(obs("Morgan Dollar|1881|CC", "443.00", 5))
	if err := SaveFile(path, s.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, skipped, err := LoadFile(path)
	if err != nil || skipped != 0 {
		t.Fatalf("load: skipped=%d err=%v", skipped, err)
	}
	if e, ok := loaded["Morgan Dollar|1881|CC"]; !ok || !e.EMA.Equal(decimal.NewFromInt(443)) {
		t.Fatalf("loaded entry mismatch: %+v", loaded)
	}
}

func TestSynchronizedConcurrentWrites(t *testing.T) {
	s := NewSynchronized(NewStore(DefaultOptions()))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateIfEligible(obs("K|1|P", "10", 1))
		}()
	}
	wg.Wait()
	e, ok := s.Lookup("K|1|P")
	if !ok || e.Samples != 50 || e.Observers != 50 {
		t.Fatalf("unexpected entry after concurrent writes: %+v", e)
	}
}
