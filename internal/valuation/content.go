package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

// Standard actual silver weights in troy ounces.
var (
	HalfDollarOz   = decimal.RequireFromString("0.36169")
	SilverDollarOz = decimal.RequireFromString("0.77344")
	SilverEagleOz  = decimal.RequireFromString("0.99")
)

// DefaultClass names the fallback content class.
const DefaultClass = "default"

// ContentRule assigns a per-unit content to titles containing any of its keywords.
type ContentRule struct {
	Name      string
	Keywords  []string
	ContentOz decimal.Decimal
}

// DefaultContentRules lists the stock table. Order matters: the first matching rule wins,
// so "half dollar" is checked before the bare "dollar" markers.
func DefaultContentRules() []ContentRule {
	return []ContentRule{
		{Name: "silver_eagle", Keywords: []string{"silver eagle", "american eagle", "ase"}, ContentOz: SilverEagleOz},
		{Name: "half_dollar", Keywords: []string{"half dollar", "half-dollar", "50c", "50¢", "half"}, ContentOz: HalfDollarOz},
		{Name: "dollar", Keywords: []string{"$1", "dollar", "morgan", "peace"}, ContentOz: SilverDollarOz},
	}
}

// ContentTable is a compiled, ordered content rule table.
type ContentTable struct {
	rules    []ContentRule
	matchers []*listing.Matcher
	fallback decimal.Decimal
}

// NewContentTable compiles rules. A zero fallback selects the smallest content in the table,
// so an ambiguous title never assumes the larger class.
func NewContentTable(rules []ContentRule, fallback decimal.Decimal) (ContentTable, error) {
	if len(rules) == 0 {
		return ContentTable{}, fmt.Errorf("content table is empty")
	}
	t := ContentTable{}
	smallest := decimal.Zero
	for i, r := range rules {
		if !r.ContentOz.IsPositive() {
			return ContentTable{}, fmt.Errorf("content rule %q: content must be positive", r.Name)
		}
		if i == 0 || r.ContentOz.LessThan(smallest) {
			smallest = r.ContentOz
		}
		t.rules = append(t.rules, r)
		t.matchers = append(t.matchers, listing.NewMatcher(r.Keywords))
	}
	switch {
	case fallback.IsZero():
		t.fallback = smallest
	case fallback.IsNegative():
		return ContentTable{}, fmt.Errorf("default content cannot be negative")
	default:
		t.fallback = fallback
	}
	return t, nil
}

// MustContentTable is NewContentTable for static tables.
func MustContentTable(rules []ContentRule, fallback decimal.Decimal) ContentTable {
	t, err := NewContentTable(rules, fallback)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the per-unit content and the name of the rule that produced it.
func (t ContentTable) Resolve(title string) (decimal.Decimal, string) {
	for i, m := range t.matchers {
		if _, ok := m.Match(title); ok {
			return t.rules[i].ContentOz, t.rules[i].Name
		}
	}
	return t.fallback, DefaultClass
}

// Fallback returns the content used when no rule matches.
func (t ContentTable) Fallback() decimal.Decimal {
	return t.fallback
}

// Empty reports whether the table was never compiled.
func (t ContentTable) Empty() bool {
	return len(t.rules) == 0
}
