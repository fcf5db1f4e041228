// Package classify turns a batch of listings into HIT, PROS, MISS or INELIGIBLE verdicts.
package classify

import (
	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// Outcome is the final classification of a listing.
type Outcome string

// Outcomes.
const (
	Hit        Outcome = "HIT"
	Pros       Outcome = "PROS"
	Miss       Outcome = "MISS"
	Ineligible Outcome = "INELIGIBLE"
)

// Rejection buckets recorded in diagnostics.
const (
	ReasonInvalidData          = "invalid_data"
	ReasonBlockedTerms         = "blocked_terms"
	ReasonMultiUnitTerms       = "multi_unit_terms"
	ReasonPackagingTerms       = "packaging_terms"
	ReasonAccessoryTerms       = "accessory_terms"
	ReasonDamageTerms          = "damage_terms"
	ReasonPremiumGradeTerms    = "premium_grade_terms"
	ReasonInsufficientMargin   = "insufficient_margin"
	ReasonNonNumismatic        = "non_numismatic"
	ReasonInsufficientProspect = "insufficient_prospect"
)

// Verdict is the classification of one listing.
type Verdict struct {
	Listing listing.Record
	Outcome Outcome
	// Reason and Detail are set for MISS and INELIGIBLE.
	Reason string
	Detail string
	// Melt is nil for INELIGIBLE.
	Melt *valuation.Calculation
	// Prospect is set whenever the PROS gate computed a dealer anchor.
	Prospect *ProspectResult
}

// ProspectResult holds the numismatic anchor and score behind a PROS decision.
type ProspectResult struct {
	Floor           decimal.Decimal
	DealerValue     decimal.Decimal
	DealerProfit    decimal.Decimal
	DealerMarginPct decimal.NullDecimal
	// RecMaxTotal is the highest total that keeps the melt margin against the dealer value.
	RecMaxTotal decimal.Decimal
	Score       Score
}
