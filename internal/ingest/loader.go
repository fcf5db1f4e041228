package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

// Options locate snapshot files and decide what happens to them after a scan.
type Options struct {
	Dir             string
	Pattern         string
	ArchiveDir      string
	DeleteProcessed bool
}

// Loader discovers, decodes and retires snapshot files.
type Loader struct {
	opts     Options
	enricher *listing.Enricher
	logger   zerolog.Logger
}

// NewLoader constructs a Loader. enricher may be nil to keep records as extracted.
func NewLoader(opts Options, enricher *listing.Enricher, logger zerolog.Logger) *Loader {
	if opts.Pattern == "" {
		opts.Pattern = "*.json"
	}
	return &Loader{
		opts:     opts,
		enricher: enricher,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Pending lists snapshot files in name order.
func (l *Loader) Pending() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(l.opts.Dir, l.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("glob snapshots: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load decodes one snapshot file and enriches its listings.
func (l *Loader) Load(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat snapshot: %w", err)
	}

	snap, err := Decode(f, info.ModTime())
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	snap.Path = path
	if l.enricher != nil {
		for i := range snap.Listings {
			snap.Listings[i] = l.enricher.Enrich(snap.Listings[i])
		}
	}
	return snap, nil
}

// LoadAll decodes every pending snapshot. Unreadable files are logged and skipped so one bad
// file cannot stall the cycle.
func (l *Loader) LoadAll(ctx context.Context) ([]Snapshot, error) {
	paths, err := l.Pending()
	if err != nil {
		return nil, err
	}
	snaps := make([]Snapshot, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return snaps, err
		}
		snap, err := l.Load(p)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable snapshot")
			continue
		}
		l.logger.Debug().Str("path", p).Int("listings", len(snap.Listings)).Msg("snapshot loaded")
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Retire archives or deletes a processed snapshot. With neither configured the file stays.
func (l *Loader) Retire(path string) error {
	switch {
	case l.opts.ArchiveDir != "":
		if err := os.MkdirAll(l.opts.ArchiveDir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		if err := os.Rename(path, filepath.Join(l.opts.ArchiveDir, filepath.Base(path))); err != nil {
			return fmt.Errorf("archive snapshot: %w", err)
		}
	case l.opts.DeleteProcessed:
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	return nil
}

// Listings flattens snapshots in load order.
func Listings(snaps []Snapshot) []listing.Record {
	var n int
	for _, s := range snaps {
		n += len(s.Listings)
	}
	out := make([]listing.Record, 0, n)
	for _, s := range snaps {
		out = append(out, s.Listings...)
	}
	return out
}
