package benchmark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// emaPlaces bounds the stored EMA precision so repeated updates do not grow without limit.
const emaPlaces = 6

// Snapshot is the serializable state of a Store: key -> entry.
type Snapshot map[string]Entry

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	out := make(Snapshot, len(s.entries))
	for k, e := range s.entries {
		out[k] = e
	}
	return out
}

// Restore replaces the store contents with snap.
func (s *Store) Restore(snap Snapshot) {
	entries := make(map[string]Entry, len(snap))
	for k, e := range snap {
		if k == "" {
			continue
		}
		e.LastUpdated = e.LastUpdated.UTC()
		entries[k] = e
	}
	s.entries = entries
}

// MarshalJSON encodes the compact form ["ema", samples, "last_price", unix_ts, observers].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		e.EMA.String(),
		e.Samples,
		e.LastPrice.String(),
		e.LastUpdated.Unix(),
		e.Observers,
	})
}

type legacyEntry struct {
	EMAPrice       decimal.NullDecimal `json:"ema_price"`
	Samples        int                 `json:"samples"`
	LastTotalPrice decimal.NullDecimal `json:"last_total_price"`
	LastPrice      decimal.NullDecimal `json:"last_price"`
	LastUpdated    int64               `json:"last_updated"`
	ObserversTotal *int                `json:"observers_total"`
	LastBidCount   int                 `json:"last_bid_count"`
}

// UnmarshalJSON accepts the compact array form and the older object form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		return e.unmarshalLegacy(data)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("benchmark entry: %w", err)
	}
	if len(parts) < 5 {
		return fmt.Errorf("benchmark entry: want 5 fields, got %d", len(parts))
	}

	var (
		out Entry
		ts  int64
	)
	if err := out.EMA.UnmarshalJSON(parts[0]); err != nil {
		return fmt.Errorf("benchmark entry ema: %w", err)
	}
	if err := json.Unmarshal(parts[1], &out.Samples); err != nil {
		return fmt.Errorf("benchmark entry samples: %w", err)
	}
	if err := out.LastPrice.UnmarshalJSON(parts[2]); err != nil {
		return fmt.Errorf("benchmark entry last price: %w", err)
	}
	if err := json.Unmarshal(parts[3], &ts); err != nil {
		return fmt.Errorf("benchmark entry timestamp: %w", err)
	}
	if err := json.Unmarshal(parts[4], &out.Observers); err != nil {
		return fmt.Errorf("benchmark entry observers: %w", err)
	}
	out.LastUpdated = time.Unix(ts, 0).UTC()
	if err := out.validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

func (e *Entry) unmarshalLegacy(data []byte) error {
	var raw legacyEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("benchmark legacy entry: %w", err)
	}
	out := Entry{
		EMA:         raw.EMAPrice.Decimal,
		Samples:     raw.Samples,
		LastUpdated: time.Unix(raw.LastUpdated, 0).UTC(),
		Observers:   raw.LastBidCount,
	}
	switch {
	case raw.LastTotalPrice.Valid:
		out.LastPrice = raw.LastTotalPrice.Decimal
	case raw.LastPrice.Valid:
		out.LastPrice = raw.LastPrice.Decimal
	}
	if raw.ObserversTotal != nil {
		out.Observers = *raw.ObserversTotal
	}
	if err := out.validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

func (e Entry) validate() error {
	switch {
	case e.Samples < 1:
		return errors.New("benchmark entry: samples must be at least 1")
	case e.Observers < 0:
		return errors.New("benchmark entry: observers cannot be negative")
	case !e.EMA.IsPositive():
		return errors.New("benchmark entry: ema must be positive")
	}
	return nil
}

// EncodeSnapshot renders snap as JSON with sorted keys, one entry per line.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, k := range keys {
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(snap[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		buf.WriteString("  ")
		buf.Write(keyJSON)
		buf.WriteString(": ")
		buf.Write(valJSON)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a snapshot. Malformed entries are skipped and counted.
func DecodeSnapshot(data []byte) (Snapshot, int, error) {
	var raw map[string]json.RawMessage
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, 0, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode benchmark snapshot: %w", err)
	}

	snap := make(Snapshot, len(raw))
	skipped := 0
	for k, v := range raw {
		var e Entry
		if k == "" || e.UnmarshalJSON(v) != nil {
			skipped++
			continue
		}
		snap[k] = e
	}
	return snap, skipped, nil
}
