package listing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Flags is a set of named boolean signals derived from a listing upstream of classification.
type Flags uint16

// Flag constants.
const (
	// FlagBlockedTerm marks commodity-irrelevant groupings ("lot", "roll", "set", "face value").
	FlagBlockedTerm Flags = 1 << iota
	// FlagMultiUnit marks bulk or bundle language without an explicit count.
	FlagMultiUnit
	// FlagPackaging marks albums, folders and other storage packaging.
	FlagPackaging
	// FlagAccessory marks repurposed items (jewelry, cutouts, keychains).
	FlagAccessory
	// FlagDamaged marks holed, bent or otherwise damaged items.
	FlagDamaged
	// FlagPremiumGrade marks slabbed or grade-marketed items.
	FlagPremiumGrade
)

var flagNames = map[Flags]string{
	FlagBlockedTerm:  "blocked_term",
	FlagMultiUnit:    "multi_unit",
	FlagPackaging:    "packaging",
	FlagAccessory:    "accessory",
	FlagDamaged:      "damaged",
	FlagPremiumGrade: "premium_grade",
}

// Has reports whether any of the flags in o are set.
func (f Flags) Has(o Flags) bool {
	return f&o != 0
}

// Names returns the set flag names in bit order.
func (f Flags) Names() []string {
	names := make([]string, 0, len(flagNames))
	for bit := FlagBlockedTerm; bit <= FlagPremiumGrade; bit <<= 1 {
		if f&bit != 0 {
			names = append(names, flagNames[bit])
		}
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// ParseFlags converts flag names to a Flags set.
func ParseFlags(names []string) (Flags, error) {
	var out Flags
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for bit, n := range flagNames {
			if n == name {
				out |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown listing flag %q", raw)
		}
	}
	return out, nil
}

// FlagNames lists every known flag name, sorted.
func FlagNames() []string {
	names := make([]string, 0, len(flagNames))
	for _, n := range flagNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Record is one auction listing as extracted from a saved search page.
// Records are read-only once handed to valuation or classification.
type Record struct {
	ItemID string
	Link   string
	Title  string

	// Quantity is nil when the extractor could not resolve it; valuation then reads the title.
	Quantity *int
	// UnitContentOz is set when the per-unit content is known explicitly.
	UnitContentOz decimal.NullDecimal

	ItemPrice     decimal.NullDecimal
	ShippingPrice decimal.NullDecimal

	BidCount int
	TimeLeft string
	EndTime  *time.Time

	// IdentityKey is the normalized "series|year|mint" key; empty means not benchmarkable.
	IdentityKey string
	Flags       Flags
}

// TotalPrice returns item plus shipping when both are present.
func (r Record) TotalPrice() (decimal.Decimal, bool) {
	if !r.ItemPrice.Valid || !r.ShippingPrice.Valid {
		return decimal.Zero, false
	}
	return r.ItemPrice.Decimal.Add(r.ShippingPrice.Decimal), true
}

// Shipping returns the shipping price or zero when absent.
func (r Record) Shipping() decimal.Decimal {
	if !r.ShippingPrice.Valid {
		return decimal.Zero
	}
	return r.ShippingPrice.Decimal
}

// MinutesLeft returns whole minutes until EndTime, or false when the end time is unknown or past.
func (r Record) MinutesLeft(now time.Time) (int, bool) {
	if r.EndTime == nil {
		return 0, false
	}
	left := r.EndTime.Sub(now)
	if left < 0 {
		return 0, false
	}
	return int(left / time.Minute), true
}

// DedupeKey identifies a listing for "already notified" suppression.
func (r Record) DedupeKey() string {
	if id := strings.TrimSpace(r.ItemID); id != "" {
		return "itm:" + id
	}
	total := "?"
	if t, ok := r.TotalPrice(); ok {
		total = t.StringFixed(2)
	}
	return fmt.Sprintf("fallback:%s|%s|%s", strings.TrimSpace(r.Title), total, strings.TrimSpace(r.TimeLeft))
}

// Qty is a convenience for building a resolved quantity.
func Qty(n int) *int {
	return &n
}
