// Package ingest reads listing snapshots saved by the page extractor.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

// Snapshot is one decoded snapshot file.
type Snapshot struct {
	Path       string
	Source     string
	CapturedAt time.Time
	Listings   []listing.Record
}

// SortByCapturedAt orders snapshots oldest capture first. Equal times keep their order.
func SortByCapturedAt(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CapturedAt.Before(snaps[j].CapturedAt)
	})
}

type snapshotFile struct {
	Source     string        `json:"source"`
	CapturedAt *time.Time    `json:"captured_at"`
	Listings   []listingJSON `json:"listings"`
}

type listingJSON struct {
	ItemID        string              `json:"item_id"`
	Link          string              `json:"link"`
	Title         string              `json:"title"`
	Quantity      *int                `json:"quantity"`
	UnitContentOz decimal.NullDecimal `json:"unit_content_oz"`
	ItemPrice     decimal.NullDecimal `json:"item_price"`
	ShippingPrice decimal.NullDecimal `json:"shipping_price"`
	BidCount      int                 `json:"bid_count"`
	TimeLeft      string              `json:"time_left"`
	EndTime       *time.Time          `json:"end_time"`
	IdentityKey   string              `json:"identity_key"`
	Flags         []string            `json:"flags"`
}

// Decode parses a snapshot. capturedAt is used when the file does not carry its own capture
// time; it anchors end times derived from "time left" text.
func Decode(r io.Reader, capturedAt time.Time) (Snapshot, error) {
	var raw snapshotFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := Snapshot{Source: raw.Source, CapturedAt: capturedAt.UTC()}
	if raw.CapturedAt != nil && !raw.CapturedAt.IsZero() {
		snap.CapturedAt = raw.CapturedAt.UTC()
	}

	snap.Listings = make([]listing.Record, 0, len(raw.Listings))
	for i, l := range raw.Listings {
		flags, err := listing.ParseFlags(l.Flags)
		if err != nil {
			return Snapshot{}, fmt.Errorf("listing %d: %w", i, err)
		}
		rec := listing.Record{
			ItemID:        strings.TrimSpace(l.ItemID),
			Link:          strings.TrimSpace(l.Link),
			Title:         strings.Join(strings.Fields(l.Title), " "),
			Quantity:      l.Quantity,
			UnitContentOz: l.UnitContentOz,
			ItemPrice:     l.ItemPrice,
			ShippingPrice: l.ShippingPrice,
			BidCount:      l.BidCount,
			TimeLeft:      strings.TrimSpace(l.TimeLeft),
			EndTime:       l.EndTime,
			IdentityKey:   strings.TrimSpace(l.IdentityKey),
			Flags:         flags,
		}
		if rec.EndTime == nil {
			if left, ok := ParseTimeLeft(rec.TimeLeft); ok {
				end := snap.CapturedAt.Add(left)
				rec.EndTime = &end
			}
		} else {
			end := rec.EndTime.UTC()
			rec.EndTime = &end
		}
		snap.Listings = append(snap.Listings, rec)
	}
	return snap, nil
}
