package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMint is assumed when a title carries no mint mark.
const DefaultMint = "P"

// IdentityRule maps a title pattern to a canonical series and its valid year range.
type IdentityRule struct {
	Series  string `mapstructure:"series"`
	Pattern string `mapstructure:"pattern"`
	MinYear int    `mapstructure:"min_year"`
	MaxYear int    `mapstructure:"max_year"`
}

// Identity is the benchmark identity detected from a title.
type Identity struct {
	Series string
	Year   int
	Mint   string
}

// Key renders the normalized "series|year|mint" key.
func (id Identity) Key() string {
	return MakeKey(id.Series, id.Year, id.Mint)
}

// MakeKey builds a benchmark key with a normalized mint.
func MakeKey(series string, year int, mint string) string {
	return fmt.Sprintf("%s|%d|%s", series, year, NormalizeMint(mint))
}

// NormalizeMint upper-cases a mint mark and maps blanks to DefaultMint.
func NormalizeMint(m string) string {
	m = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(m), " ", ""))
	switch m {
	case "", "PHILADELPHIA":
		return DefaultMint
	}
	return m
}

// DefaultIdentityRules covers the classic silver dollar and half dollar series.
func DefaultIdentityRules() []IdentityRule {
	return []IdentityRule{
		{Series: "Morgan Dollar", Pattern: `(?i)\bmorgan\b`, MinYear: 1878, MaxYear: 1921},
		{Series: "Peace Dollar", Pattern: `(?i)\bpeace\b`, MinYear: 1921, MaxYear: 1935},
		{Series: "Barber Half", Pattern: `(?i)\bbarber\b.*\bhalf\b`, MinYear: 1892, MaxYear: 1915},
		{Series: "Seated Liberty Half", Pattern: `(?i)\bseated\b.*\bliberty\b.*\bhalf\b`, MinYear: 1839, MaxYear: 1891},
		{Series: "Seated Liberty Dollar", Pattern: `(?i)\bseated\b.*\bliberty\b.*\bdollar\b`, MinYear: 1840, MaxYear: 1873},
		{Series: "Walking Liberty Half", Pattern: `(?i)\bwalking\b.*\bliberty\b.*\bhalf\b|\bwalker\b.*\bhalf\b`, MinYear: 1916, MaxYear: 1947},
		{Series: "Franklin Half", Pattern: `(?i)\bfranklin\b.*\bhalf\b`, MinYear: 1948, MaxYear: 1963},
	}
}

var (
	yearRE = regexp.MustCompile(`\b(17\d{2}|18\d{2}|19\d{2}|20\d{2})\b`)
	mintRE = regexp.MustCompile(`(?i)(?:^|[\s\-])\s*(cc|[dso])\b`)
)

// IdentityDetector resolves titles to identities using an ordered rule table.
type IdentityDetector struct {
	rules    []IdentityRule
	patterns []*regexp.Regexp
	exclude  *Matcher
}

// NewIdentityDetector compiles rules. Titles containing any exclude term never resolve.
func NewIdentityDetector(rules []IdentityRule, exclude []string) (*IdentityDetector, error) {
	d := &IdentityDetector{exclude: NewMatcher(exclude)}
	for _, rule := range rules {
		p, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("identity rule %q: %w", rule.Series, err)
		}
		d.rules = append(d.rules, rule)
		d.patterns = append(d.patterns, p)
	}
	return d, nil
}

// Detect returns the identity for title. The first matching series wins; the year must fall
// inside the series range.
func (d *IdentityDetector) Detect(title string) (Identity, bool) {
	t := strings.TrimSpace(title)
	if t == "" {
		return Identity{}, false
	}
	if _, hit := d.exclude.Match(t); hit {
		return Identity{}, false
	}

	idx := -1
	for i, p := range d.patterns {
		if p.MatchString(t) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Identity{}, false
	}

	ym := yearRE.FindStringSubmatch(t)
	if ym == nil {
		return Identity{}, false
	}
	year, err := strconv.Atoi(ym[1])
	if err != nil {
		return Identity{}, false
	}
	rule := d.rules[idx]
	if (rule.MinYear > 0 && year < rule.MinYear) || (rule.MaxYear > 0 && year > rule.MaxYear) {
		return Identity{}, false
	}

	mint := DefaultMint
	if mm := mintRE.FindStringSubmatch(t); mm != nil {
		mint = mm[1]
	}
	return Identity{Series: rule.Series, Year: year, Mint: NormalizeMint(mint)}, true
}
