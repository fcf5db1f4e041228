package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

const sample = `{
  "source": "saved-search-morgan",
  "captured_at": "2025-12-13T18:00:00Z",
  "listings": [
    {
      "item_id": "1001",
      "title": "1893  S Morgan   Silver Dollar",
      "item_price": "14.05",
      "shipping_price": 4,
      "bid_count": 2,
      "time_left": "12m left"
    },
    {
      "item_id": "1002",
      "title": "1921 Morgan Dollar keychain",
      "item_price": 22.5,
      "shipping_price": "0",
      "bid_count": 0,
      "end_time": "2025-12-13T21:30:00-05:00",
      "flags": ["premium_grade"]
    },
    {
      "item_id": "1003",
      "title": "Silver Round",
      "item_price": null,
      "shipping_price": 3.5
    }
  ]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDecode(t *testing.T) {
	snap, err := Decode(strings.NewReader(sample), time.Time{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Source != "saved-search-morgan" || len(snap.Listings) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	first := snap.Listings[0]
	if first.Title != "1893 S Morgan Silver Dollar" {
		t.Fatalf("title not normalised: %q", first.Title)
	}
	if total, ok := first.TotalPrice(); !ok || total.StringFixed(2) != "18.05" {
		t.Fatalf("total = %s/%v", total, ok)
	}
	wantEnd := time.Date(2025, 12, 13, 18, 12, 0, 0, time.UTC)
	if first.EndTime == nil || !first.EndTime.Equal(wantEnd) {
		t.Fatalf("end time = %v, want %v", first.EndTime, wantEnd)
	}

	second := snap.Listings[1]
	if second.EndTime.Location() != time.UTC || second.EndTime.Hour() != 2 {
		t.Fatalf("explicit end time not normalised to UTC: %v", second.EndTime)
	}
	if second.Flags != listing.FlagPremiumGrade {
		t.Fatalf("flags = %s", second.Flags)
	}

	if _, ok := snap.Listings[2].TotalPrice(); ok {
		t.Fatal("null item price must leave the total unresolved")
	}
}

func TestDecodeRejectsUnknownFlag(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"listings":[{"title":"x","flags":["shiny"]}]}`), time.Now())
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestParseTimeLeft(t *testing.T) {
	cases := map[string]time.Duration{
		"12m left":        12 * time.Minute,
		"1d 4h left":      28 * time.Hour,
		"2 days 3 hours":  51 * time.Hour,
		"5 min 30 sec":    5*time.Minute + 30*time.Second,
		"Ends in 45 mins": 45 * time.Minute,
	}
	for in, want := range cases {
		got, ok := ParseTimeLeft(in)
		if !ok || got != want {
			t.Fatalf("ParseTimeLeft(%q) = %v/%v, want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseTimeLeft("ended"); ok {
		t.Fatal("text without a countdown should not parse")
	}
}

func TestLoaderEnrichesAndArchives(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	writeFile(t, dir, "b.json", sample)
	writeFile(t, dir, "a.json", `{"listings":[]}`)
	writeFile(t, dir, "broken.json", `{"listings":`)
	writeFile(t, dir, "notes.txt", "ignored")

	enricher, err := listing.NewEnricher(listing.DefaultIdentityRules(), nil, listing.DefaultFlagTerms())
	if err != nil {
		t.Fatalf("enricher: %v", err)
	}
	l := NewLoader(Options{Dir: dir, ArchiveDir: archive}, enricher, zerolog.Nop())

	snaps, err := l.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(snaps) != 2 || filepath.Base(snaps[0].Path) != "a.json" {
		t.Fatalf("unexpected snapshots: %d", len(snaps))
	}

	recs := Listings(snaps)
	if len(recs) != 3 {
		t.Fatalf("listings = %d, want 3", len(recs))
	}
	if recs[0].IdentityKey != "Morgan Dollar|1893|S" {
		t.Fatalf("identity key = %q", recs[0].IdentityKey)
	}
	if !recs[1].Flags.Has(listing.FlagAccessory) || !recs[1].Flags.Has(listing.FlagPremiumGrade) {
		t.Fatalf("flags = %s", recs[1].Flags)
	}

	if err := l.Retire(snaps[1].Path); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(archive, "b.json")); err != nil {
		t.Fatalf("snapshot not archived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.json")); !os.IsNotExist(err) {
		t.Fatal("archived snapshot should leave the scan dir")
	}
}

func TestRetireDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.json", `{"listings":[]}`)
	l := NewLoader(Options{Dir: dir, DeleteProcessed: true}, nil, zerolog.Nop())
	if err := l.Retire(path); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("snapshot should be deleted")
	}
}

func TestSortByCapturedAt(t *testing.T) {
	base := time.Date(2025, 12, 13, 18, 0, 0, 0, time.UTC)
	snaps := []Snapshot{
		{Path: "a.json", CapturedAt: base.Add(2 * time.Hour)},
		{Path: "b.json", CapturedAt: base},
		{Path: "c.json", CapturedAt: base.Add(time.Hour)},
		{Path: "d.json", CapturedAt: base},
	}
	SortByCapturedAt(snaps)

	want := []string{"b.json", "d.json", "c.json", "a.json"}
	for i, w := range want {
		if snaps[i].Path != w {
			t.Fatalf("position %d = %s, want %s", i, snaps[i].Path, w)
		}
	}
}
