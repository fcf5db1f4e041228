package classify

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/diagnostics"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
	"github.com/Stripstone/OfflineEbayMonitor/internal/valuation"
)

// DefaultIneligibleFlags are the flags that stop a listing before valuation.
const DefaultIneligibleFlags = listing.FlagBlockedTerm | listing.FlagAccessory | listing.FlagDamaged | listing.FlagPackaging

// flagBuckets maps ineligible flags to buckets, in the order they are checked.
var flagBuckets = []struct {
	flag   listing.Flags
	reason string
}{
	{listing.FlagBlockedTerm, ReasonBlockedTerms},
	{listing.FlagAccessory, ReasonAccessoryTerms},
	{listing.FlagDamaged, ReasonDamageTerms},
	{listing.FlagPackaging, ReasonPackagingTerms},
	{listing.FlagMultiUnit, ReasonMultiUnitTerms},
	{listing.FlagPremiumGrade, ReasonPremiumGradeTerms},
}

// Options configure a Classifier.
type Options struct {
	Market   valuation.MarketConfig
	Prospect ProspectConfig
	// IneligibleFlags is the flag mask that makes a listing INELIGIBLE.
	// Zero means DefaultIneligibleFlags.
	IneligibleFlags listing.Flags
	// SampleLimit caps titles kept per bucket when the classifier owns its recorder.
	SampleLimit int
	// Now supplies the clock for minutes-left signals. Defaults to time.Now.
	Now func() time.Time
}

// Classifier runs the classification ladder against a read-only benchmark view.
type Classifier struct {
	market     valuation.MarketConfig
	prospect   ProspectConfig
	scorer     *Scorer
	ineligible listing.Flags
	bench      benchmark.Reader
	recorder   *diagnostics.Recorder
	now        func() time.Time
}

// New constructs a Classifier. Invalid configuration is a caller bug and panics.
// When recorder is nil the classifier keeps its own for the lifetime of the process.
func New(opts Options, bench benchmark.Reader, recorder *diagnostics.Recorder) *Classifier {
	if err := opts.Market.Validate(); err != nil {
		panic(fmt.Sprintf("classify: invalid market config: %v", err))
	}
	if err := opts.Prospect.Validate(); err != nil {
		panic(fmt.Sprintf("classify: invalid prospect config: %v", err))
	}
	if bench == nil {
		panic("classify: benchmark reader is required")
	}
	scorer, err := NewScorer(opts.Prospect)
	if err != nil {
		panic(fmt.Sprintf("classify: %v", err))
	}
	if recorder == nil {
		recorder = diagnostics.NewRecorder("", opts.SampleLimit)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ineligible := opts.IneligibleFlags
	if ineligible == 0 {
		ineligible = DefaultIneligibleFlags
	}
	return &Classifier{
		market:     opts.Market,
		prospect:   opts.Prospect,
		scorer:     scorer,
		ineligible: ineligible,
		bench:      bench,
		recorder:   recorder,
		now:        now,
	}
}

// Classify evaluates every listing, records the outcomes and returns verdicts sorted by end time.
func (c *Classifier) Classify(listings []listing.Record) ([]Verdict, diagnostics.Snapshot) {
	now := c.now()
	verdicts := make([]Verdict, 0, len(listings))
	for _, rec := range listings {
		v := c.evaluate(rec, now)
		c.record(v)
		verdicts = append(verdicts, v)
	}
	SortByEndTime(verdicts)
	return verdicts, c.recorder.Snapshot()
}

// Evaluate classifies a single listing without touching diagnostics.
func (c *Classifier) Evaluate(rec listing.Record) Verdict {
	return c.evaluate(rec, c.now())
}

// Recorder exposes the diagnostics recorder the classifier writes to.
func (c *Classifier) Recorder() *diagnostics.Recorder {
	return c.recorder
}

func (c *Classifier) record(v Verdict) {
	switch v.Outcome {
	case Ineligible:
		c.recorder.Ineligible(v.Reason, v.Listing.Title, v.Detail)
	case Hit:
		c.recorder.Hit()
	case Pros:
		c.recorder.Pros()
	default:
		c.recorder.Miss(v.Reason, v.Listing.Title, v.Detail)
	}
}

func (c *Classifier) evaluate(rec listing.Record, now time.Time) Verdict {
	if reason, detail, bad := c.ineligibility(rec); bad {
		return Verdict{Listing: rec, Outcome: Ineligible, Reason: reason, Detail: detail}
	}

	calc := valuation.Compute(rec, c.market)
	total := calc.TotalPrice.Decimal
	v := Verdict{Listing: rec, Melt: &calc}

	if total.LessThanOrEqual(calc.BreakEvenTotalPrice) {
		v.Outcome = Hit
		return v
	}

	v.Outcome = Miss
	if !c.prospect.Enabled || rec.IdentityKey == "" {
		v.Reason = ReasonInsufficientMargin
		v.Detail = fmt.Sprintf("margin %s < %s%% threshold", valuation.FormatPct(calc.MarginPct), c.market.MinMarginPct.StringFixed(1))
		return v
	}

	entry, ok := c.bench.Lookup(rec.IdentityKey)
	if !ok {
		v.Reason, v.Detail = ReasonNonNumismatic, "no benchmark floor for "+rec.IdentityKey
		return v
	}

	dealer := entry.EMA.Mul(c.prospect.DealerPayoutFraction)
	pr := &ProspectResult{
		Floor:        entry.EMA,
		DealerValue:  dealer,
		DealerProfit: dealer.Sub(total),
		RecMaxTotal:  dealer.Div(decimal.NewFromInt(1).Add(decimal.Max(c.market.MinMarginPct, decimal.Zero).Div(decimal.NewFromInt(100)))),
	}
	pr.DealerMarginPct = decimal.NewNullDecimal(valuation.MarginPct(dealer, total))
	v.Prospect = pr

	switch {
	case calc.Quantity != 1:
		v.Reason, v.Detail = ReasonNonNumismatic, fmt.Sprintf("quantity %d != 1", calc.Quantity)
		return v
	case !pr.DealerProfit.IsPositive():
		v.Reason, v.Detail = ReasonNonNumismatic, fmt.Sprintf("dealer profit $%s <= 0", valuation.RoundMoney(pr.DealerProfit).StringFixed(2))
		return v
	case c.prospect.MaxTotal.Valid && total.GreaterThan(c.prospect.MaxTotal.Decimal):
		v.Reason, v.Detail = ReasonNonNumismatic, fmt.Sprintf("total $%s > $%s prospect cap", total.StringFixed(2), c.prospect.MaxTotal.Decimal.StringFixed(2))
		return v
	}

	mins, hasMins := rec.MinutesLeft(now)
	pr.Score = c.scorer.Score(ScoreInput{
		Title:       rec.Title,
		Total:       total,
		Floor:       entry.EMA,
		DealerValue: dealer,
		Bids:        rec.BidCount,
		MinutesLeft: mins,
		HasMinutes:  hasMins,
	})

	switch {
	case pr.Score.Disqualified:
		v.Reason, v.Detail = ReasonInsufficientProspect, "disqualified: "+pr.Score.Reasons[0]
	case pr.DealerMarginPct.Decimal.LessThan(c.prospect.MinDealerMarginPct) && !pr.Score.Has(ReasonPremiumLikeRaw):
		v.Reason = ReasonInsufficientProspect
		v.Detail = fmt.Sprintf("dealer margin %s < %s%% threshold", valuation.FormatPct(pr.DealerMarginPct), c.prospect.MinDealerMarginPct.StringFixed(1))
	case pr.Score.Value < c.prospect.MinScore:
		v.Reason = ReasonInsufficientProspect
		v.Detail = fmt.Sprintf("score %d < %d threshold", pr.Score.Value, c.prospect.MinScore)
	default:
		v.Outcome = Pros
	}
	return v
}

func (c *Classifier) ineligibility(rec listing.Record) (string, string, bool) {
	total, ok := rec.TotalPrice()
	switch {
	case !ok:
		return ReasonInvalidData, "missing total price", true
	case !total.IsPositive():
		return ReasonInvalidData, fmt.Sprintf("total price %s <= 0", total.StringFixed(2)), true
	case rec.ItemPrice.Decimal.IsNegative():
		return ReasonInvalidData, fmt.Sprintf("item price %s < 0", rec.ItemPrice.Decimal.StringFixed(2)), true
	case rec.ShippingPrice.Decimal.IsNegative():
		return ReasonInvalidData, fmt.Sprintf("shipping price %s < 0", rec.ShippingPrice.Decimal.StringFixed(2)), true
	case rec.BidCount < 0:
		return ReasonInvalidData, fmt.Sprintf("bid count %d < 0", rec.BidCount), true
	case rec.EndTime == nil:
		return ReasonInvalidData, "missing end time", true
	}
	if qty := valuation.ResolveQuantity(rec); qty <= 0 {
		return ReasonInvalidData, fmt.Sprintf("quantity %d <= 0", qty), true
	}
	for _, fb := range flagBuckets {
		if c.ineligible.Has(fb.flag) && rec.Flags.Has(fb.flag) {
			return fb.reason, "flag " + (rec.Flags & fb.flag).String(), true
		}
	}
	return "", "", false
}

// SortByEndTime orders verdicts by listing end time, keeping input order for ties.
// Listings without an end time sort last.
func SortByEndTime(verdicts []Verdict) {
	sort.SliceStable(verdicts, func(i, j int) bool {
		a, b := verdicts[i].Listing.EndTime, verdicts[j].Listing.EndTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
