// Package benchmark keeps the per-identity EMA price benchmarks learned from bidding activity.
package benchmark

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

// ObserverWeighting selects what the cumulative observer count measures.
type ObserverWeighting string

// Observer weighting modes.
const (
	// WeightBids adds the observation's bid count.
	WeightBids ObserverWeighting = "bids"
	// WeightEvents adds one per observation.
	WeightEvents ObserverWeighting = "events"
)

// Entry is the benchmark state for one identity key.
type Entry struct {
	EMA         decimal.Decimal
	Samples     int
	LastPrice   decimal.Decimal
	LastUpdated time.Time
	Observers   int
}

// Observation is one candidate benchmark write.
type Observation struct {
	Key        string
	TotalPrice decimal.Decimal
	BidCount   int
	Quantity   int
	Flags      listing.Flags
	ObservedAt time.Time
}

// Reader is the read side used by classification.
type Reader interface {
	Lookup(key string) (Entry, bool)
}

// Writer is the guarded write side.
type Writer interface {
	UpdateIfEligible(obs Observation) bool
}

// Options tune a Store.
type Options struct {
	Alpha     decimal.Decimal
	Weighting ObserverWeighting
	// Disqualify lists flags that make an observation unusable.
	Disqualify listing.Flags
	// RequireBids rejects observations without bids.
	RequireBids bool
}

// DefaultDisqualify covers grouping, packaging, accessory, damage and premium-grade listings.
const DefaultDisqualify = listing.FlagBlockedTerm | listing.FlagMultiUnit | listing.FlagPackaging |
	listing.FlagAccessory | listing.FlagDamaged | listing.FlagPremiumGrade

// DefaultOptions returns alpha 0.40, bid weighting and the default disqualifiers.
func DefaultOptions() Options {
	return Options{
		Alpha:       decimal.RequireFromString("0.40"),
		Weighting:   WeightBids,
		Disqualify:  DefaultDisqualify,
		RequireBids: true,
	}
}

// Store is an in-memory EMA benchmark table. It is not safe for concurrent use; wrap it in
// Synchronized when more than one goroutine writes.
type Store struct {
	opts    Options
	entries map[string]Entry
}

// NewStore constructs an empty Store. Invalid options are a caller bug and panic.
func NewStore(opts Options) *Store {
	if !opts.Alpha.IsPositive() || opts.Alpha.GreaterThan(decimal.NewFromInt(1)) {
		panic(fmt.Sprintf("benchmark alpha must be in (0,1], got %s", opts.Alpha))
	}
	switch opts.Weighting {
	case WeightBids, WeightEvents:
	case "":
		opts.Weighting = WeightBids
	default:
		panic(fmt.Sprintf("unknown observer weighting %q", opts.Weighting))
	}
	return &Store{opts: opts, entries: make(map[string]Entry)}
}

// Lookup returns the entry for key.
func (s *Store) Lookup(key string) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return len(s.entries)
}

// Keys returns all keys, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Eligible reports whether obs may be written. It has no side effects.
func (s *Store) Eligible(obs Observation) bool {
	switch {
	case obs.Key == "":
		return false
	case obs.Quantity != 1:
		return false
	case obs.BidCount < 0, s.opts.RequireBids && obs.BidCount < 1:
		return false
	case obs.Flags.Has(s.opts.Disqualify):
		return false
	case !obs.TotalPrice.IsPositive():
		return false
	}
	return true
}

// UpdateIfEligible folds obs into its key's EMA. It returns false, touching nothing, when
// the observation is not eligible. The caller submits at most one observation per key per
// scan cycle; the store does not deduplicate.
func (s *Store) UpdateIfEligible(obs Observation) bool {
	if !s.Eligible(obs) {
		return false
	}

	ts := obs.ObservedAt.UTC().Truncate(time.Second)
	weight := obs.BidCount
	if s.opts.Weighting == WeightEvents {
		weight = 1
	}

	prev, ok := s.entries[obs.Key]
	if !ok {
		s.entries[obs.Key] = Entry{
			EMA:         obs.TotalPrice,
			Samples:     1,
			LastPrice:   obs.TotalPrice,
			LastUpdated: ts,
			Observers:   weight,
		}
		return true
	}

	alpha := s.opts.Alpha
	ema := alpha.Mul(obs.TotalPrice).Add(decimal.NewFromInt(1).Sub(alpha).Mul(prev.EMA)).Round(emaPlaces)
	s.entries[obs.Key] = Entry{
		EMA:         ema,
		Samples:     prev.Samples + 1,
		LastPrice:   obs.TotalPrice,
		LastUpdated: ts,
		Observers:   prev.Observers + weight,
	}
	return true
}

var (
	_ Reader = (*Store)(nil)
	_ Writer = (*Store)(nil)
)
