package storage

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
)

func TestNilPoolReportsNotConfigured(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, time.Hour)

	if _, err := s.LoadBenchmarks(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("LoadBenchmarks: want ErrNotConfigured, got %v", err)
	}
	if err := s.SaveBenchmarks(ctx, benchmark.Snapshot{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SaveBenchmarks: want ErrNotConfigured, got %v", err)
	}
	if _, err := s.FilterNew(ctx, []string{"itm:1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("FilterNew: want ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 42); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: want ErrNotConfigured, got %v", err)
	}
	if err := s.Migrate(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Migrate: want ErrNotConfigured, got %v", err)
	}
}

func TestUnknownKeysKeepsOrderAndDedupes(t *testing.T) {
	got := unknownKeys([]string{"itm:3", "itm:1", "itm:3", "itm:2", "itm:4"}, []string{"itm:2"})
	want := []string{"itm:3", "itm:1", "itm:4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unknownKeys = %v, want %v", got, want)
	}
	if got := unknownKeys(nil, []string{"itm:1"}); len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
}

func TestSeenCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := seenCutoff(now, 2*time.Hour); !got.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("cutoff = %s", got)
	}
	if got := seenCutoff(now, 0); !got.Equal(time.Unix(0, 0)) {
		t.Fatalf("zero ttl should never expire, cutoff = %s", got)
	}
}

func TestMigrationsKeepBenchmarkPrecision(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) < 2 || entries[0].Name() != "0001_init.sql" {
		t.Fatalf("unexpected migrations: %v", entries)
	}

	var all strings.Builder
	for _, e := range entries {
		body, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		all.Write(body)
	}
	sql := all.String()
	if strings.Contains(sql, "last_price    NUMERIC(18, 2)") {
		t.Fatal("last_price must not be limited to cents")
	}
	if !strings.Contains(sql, "last_price TYPE NUMERIC(18, 6)") {
		t.Fatal("expected last_price to be widened for existing databases")
	}
}
