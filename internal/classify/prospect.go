package classify

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Signal reasons.
const (
	ReasonDisqualifyTerm    = "pros-hard-disqualify-keyword"
	ReasonDisqualifyPattern = "pros-hard-disqualify-regex"
	ReasonPremiumLikeRaw    = "premium-terms-priced-like-raw"
)

const (
	baseScore = 50
	minScore  = 0
	maxScore  = 100
)

// ProspectConfig holds the numismatic prospect knobs.
type ProspectConfig struct {
	Enabled              bool
	DealerPayoutFraction decimal.Decimal
	MinScore             int
	MinDealerMarginPct   decimal.Decimal
	// MaxTotal caps the total price of a prospect; invalid means no cap.
	MaxTotal decimal.NullDecimal

	DisqualifyTerms    []string
	DisqualifyPatterns []string
	HypeTerms          []string
	UnderDescribed     []string
	HighGradeTerms     []string

	// Premium-grade language priced at or below the floor (plus tolerance) near the close.
	MispriceTolerancePct      decimal.Decimal
	MispriceBonus             int
	MispriceRequireEndingSoon bool
	MispriceMaxMinutes        int

	EndingSoonMinutes int
}

// DefaultProspectConfig returns the stock prospect configuration.
func DefaultProspectConfig() ProspectConfig {
	return ProspectConfig{
		Enabled:              true,
		DealerPayoutFraction: decimal.RequireFromString("0.60"),
		MinScore:             60,
		MinDealerMarginPct:   decimal.NewFromInt(5),
		MaxTotal:             decimal.NewNullDecimal(decimal.NewFromInt(150)),
		DisqualifyTerms: []string{
			"holed", "hole", "drilled", "pierced", "plugged",
			"bent", "damaged", "broken", "scratched", "details",
			"harshly cleaned", "cleaned",
			"replica", "copy", "fantasy", "reproduction",
			"plated", "clad", "silver plate", "silver plated", "silver tone", "silver toned",
			"gold tone", "gold toned",
		},
		DisqualifyPatterns: []string{`\b(?:replica|copy|fantasy|reproduction)\b`},
		HypeTerms: []string{
			"monster", "wow", "elite", "rare!!", "superb", "amazing",
			"beautiful", "blazing", "choice", "gem", "premium", "rare", "key date",
			"clearance", "nr", "no reserve",
			"ms", "pf", "proof", "dmpl", "pl", "deep mirror",
			"bu", "unc", "uncirculated", "brilliant uncirculated",
			"pcgs", "ngc", "anacs", "icg", "cac", "slab", "graded", "certified",
		},
		UnderDescribed: []string{
			"estate", "old collection", "attic", "found", "as is", "no reserve",
			"better date", "scarce date",
		},
		HighGradeTerms: []string{
			"pcgs", "ngc", "anacs", "icg", "cac",
			"ms", "ms60", "ms61", "ms62", "ms63", "ms64", "ms65", "ms66", "ms67", "ms68", "ms69", "ms70",
			"au", "about uncirculated", "unc", "uncirculated", "bu", "brilliant uncirculated",
			"proof", "pr", "pf", "deep cameo", "dcam", "ultra cameo", "ucam", "cameo",
			"pl", "prooflike", "dmpl", "deep mirror prooflike",
			"gem", "choice", "blast white", "monster toning", "full bands", "full bell lines",
		},
		MispriceTolerancePct:      decimal.NewFromInt(5),
		MispriceBonus:             35,
		MispriceRequireEndingSoon: true,
		MispriceMaxMinutes:        30,
		EndingSoonMinutes:         60,
	}
}

// Validate reports caller errors in the prospect configuration.
func (c ProspectConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if !c.DealerPayoutFraction.IsPositive() || c.DealerPayoutFraction.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("dealer payout fraction must be in (0,1]: %s", c.DealerPayoutFraction))
	}
	if c.MinScore < minScore || c.MinScore > maxScore {
		errs = append(errs, fmt.Errorf("min score must be in [0,100]: %d", c.MinScore))
	}
	if c.MaxTotal.Valid && !c.MaxTotal.Decimal.IsPositive() {
		errs = append(errs, fmt.Errorf("max total must be positive: %s", c.MaxTotal.Decimal))
	}
	if c.MispriceTolerancePct.IsNegative() {
		errs = append(errs, fmt.Errorf("misprice tolerance cannot be negative: %s", c.MispriceTolerancePct))
	}
	for _, p := range c.DisqualifyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("disqualify pattern %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// ScoreInput is everything a signal may look at.
type ScoreInput struct {
	Title       string
	Total       decimal.Decimal
	Floor       decimal.Decimal
	DealerValue decimal.Decimal
	Bids        int
	MinutesLeft int
	HasMinutes  bool
}

// Signal is the contribution of one evaluator.
type Signal struct {
	Weight     int
	Reason     string
	Disqualify bool
}

// Evaluator inspects the input and reports a signal when it fires.
type Evaluator func(in ScoreInput) (Signal, bool)

// Score is the clamped prospect score with the reasons that produced it.
type Score struct {
	Value        int
	Reasons      []string
	Disqualified bool
}

// Has reports whether reason contributed to the score.
func (s Score) Has(reason string) bool {
	for _, r := range s.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Scorer runs disqualifiers first, then sums the weighted evaluators in order.
type Scorer struct {
	disqualifiers []Evaluator
	evaluators    []Evaluator
}

// NewScorer compiles the configured keyword tables into evaluators.
func NewScorer(cfg ProspectConfig) (*Scorer, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.DisqualifyPatterns))
	for _, p := range cfg.DisqualifyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile disqualify pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	highGrade := listing.NewMatcher(cfg.HighGradeTerms)
	return &Scorer{
		disqualifiers: []Evaluator{
			termDisqualifier(listing.NewMatcher(cfg.DisqualifyTerms)),
			patternDisqualifier(patterns),
		},
		evaluators: []Evaluator{
			dealerMarginSignal,
			floorGapSignal,
			bidSignal,
			termSignal(listing.NewMatcher(cfg.HypeTerms), -18, "hype-language"),
			termSignal(listing.NewMatcher(cfg.UnderDescribed), 12, "under-described"),
			termSignal(highGrade, -14, "high-grade-signals"),
			premiumLikeRawSignal(highGrade, cfg),
			endingSoonSignal(cfg.EndingSoonMinutes),
		},
	}, nil
}

// Score evaluates in. A disqualifier stops evaluation with a zero score.
func (s *Scorer) Score(in ScoreInput) Score {
	for _, ev := range s.disqualifiers {
		if sig, ok := ev(in); ok && sig.Disqualify {
			return Score{Value: 0, Reasons: []string{sig.Reason}, Disqualified: true}
		}
	}

	total := baseScore
	reasons := make([]string, 0, len(s.evaluators))
	for _, ev := range s.evaluators {
		sig, ok := ev(in)
		if !ok {
			continue
		}
		total += sig.Weight
		reasons = append(reasons, sig.Reason)
	}
	return Score{Value: clamp(total), Reasons: reasons}
}

func clamp(v int) int {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

func termDisqualifier(m *listing.Matcher) Evaluator {
	return func(in ScoreInput) (Signal, bool) {
		if _, ok := m.Match(in.Title); ok {
			return Signal{Reason: ReasonDisqualifyTerm, Disqualify: true}, true
		}
		return Signal{}, false
	}
}

func patternDisqualifier(patterns []*regexp.Regexp) Evaluator {
	return func(in ScoreInput) (Signal, bool) {
		for _, re := range patterns {
			if re.MatchString(in.Title) {
				return Signal{Reason: ReasonDisqualifyPattern, Disqualify: true}, true
			}
		}
		return Signal{}, false
	}
}

type tier struct {
	atLeast int64
	weight  int
	reason  string
}

var dealerMarginTiers = []tier{
	{75, 25, "huge-dealer-margin"},
	{50, 18, "dealer-margin>=50"},
	{35, 10, "dealer-margin>=35"},
	{20, 4, "dealer-margin>=20"},
}

var floorGapTiers = []tier{
	{100, 10, "floor-gap>=100"},
	{50, 6, "floor-gap>=50"},
}

func matchTier(pct decimal.Decimal, tiers []tier) (tier, bool) {
	for _, t := range tiers {
		if pct.GreaterThanOrEqual(decimal.NewFromInt(t.atLeast)) {
			return t, true
		}
	}
	return tier{}, false
}

func dealerMarginSignal(in ScoreInput) (Signal, bool) {
	if !in.Total.IsPositive() {
		return Signal{}, false
	}
	pct := valuation.MarginPct(in.DealerValue, in.Total)
	if t, ok := matchTier(pct, dealerMarginTiers); ok {
		return Signal{Weight: t.weight, Reason: t.reason}, true
	}
	return Signal{Weight: -20, Reason: "thin-dealer-margin"}, true
}

func floorGapSignal(in ScoreInput) (Signal, bool) {
	if !in.Total.IsPositive() {
		return Signal{}, false
	}
	if t, ok := matchTier(valuation.MarginPct(in.Floor, in.Total), floorGapTiers); ok {
		return Signal{Weight: t.weight, Reason: t.reason}, true
	}
	return Signal{}, false
}

func bidSignal(in ScoreInput) (Signal, bool) {
	switch {
	case in.Bids <= 0:
		return Signal{Weight: 4, Reason: "unnoticed"}, true
	case in.Bids <= 2:
		return Signal{Weight: 7, Reason: "few-bids"}, true
	case in.Bids <= 10:
		return Signal{Weight: 4, Reason: "some-bids"}, true
	default:
		return Signal{Weight: 1, Reason: "many-bids"}, true
	}
}

func termSignal(m *listing.Matcher, weight int, reason string) Evaluator {
	return func(in ScoreInput) (Signal, bool) {
		if _, ok := m.Match(in.Title); ok {
			return Signal{Weight: weight, Reason: reason}, true
		}
		return Signal{}, false
	}
}

func premiumLikeRawSignal(highGrade *listing.Matcher, cfg ProspectConfig) Evaluator {
	limitFactor := decimal.NewFromInt(1).Add(decimal.Max(cfg.MispriceTolerancePct, decimal.Zero).Div(decimal.NewFromInt(100)))
	bonus := cfg.MispriceBonus
	if bonus < 0 {
		bonus = 0
	}
	return func(in ScoreInput) (Signal, bool) {
		if _, ok := highGrade.Match(in.Title); !ok {
			return Signal{}, false
		}
		if in.Total.GreaterThan(in.Floor.Mul(limitFactor)) {
			return Signal{}, false
		}
		if cfg.MispriceRequireEndingSoon && (!in.HasMinutes || in.MinutesLeft > cfg.MispriceMaxMinutes) {
			return Signal{}, false
		}
		return Signal{Weight: bonus, Reason: ReasonPremiumLikeRaw}, true
	}
}

func endingSoonSignal(minutes int) Evaluator {
	return func(in ScoreInput) (Signal, bool) {
		if minutes > 0 && in.HasMinutes && in.MinutesLeft <= minutes {
			return Signal{Weight: 3, Reason: "ending-soon"}, true
		}
		return Signal{}, false
	}
}
