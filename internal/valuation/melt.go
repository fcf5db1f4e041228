package valuation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// MarketConfig carries the market assumptions behind every valuation.
type MarketConfig struct {
	SpotPrice      decimal.Decimal
	PayoutFraction decimal.Decimal
	MinMarginPct   decimal.Decimal
	MaxMarginPct   decimal.Decimal
	Content        ContentTable
}

// Validate reports caller errors in the market assumptions.
func (c MarketConfig) Validate() error {
	var errs []error
	if c.SpotPrice.IsNegative() {
		errs = append(errs, fmt.Errorf("spot price cannot be negative: %s", c.SpotPrice))
	}
	if !c.PayoutFraction.IsPositive() || c.PayoutFraction.GreaterThan(one) {
		errs = append(errs, fmt.Errorf("payout fraction must be in (0,1]: %s", c.PayoutFraction))
	}
	if c.MinMarginPct.IsNegative() {
		errs = append(errs, fmt.Errorf("min margin cannot be negative: %s", c.MinMarginPct))
	}
	if c.MaxMarginPct.LessThan(c.MinMarginPct) {
		errs = append(errs, fmt.Errorf("max margin %s below min margin %s", c.MaxMarginPct, c.MinMarginPct))
	}
	if c.Content.Empty() {
		errs = append(errs, errors.New("content table not configured"))
	}
	return errors.Join(errs...)
}

// Calculation is the melt valuation of one listing. Values are unrounded; use Report for
// presentation.
type Calculation struct {
	Quantity       int
	UnitContentOz  decimal.Decimal
	ContentClass   string
	TotalContentOz decimal.Decimal
	MeltValue      decimal.Decimal
	Payout         decimal.Decimal

	TotalPrice decimal.NullDecimal
	// MarginPct is undefined when the total price is absent or zero.
	MarginPct decimal.NullDecimal

	BreakEvenTotalPrice decimal.Decimal
	// BreakEvenUnitPrice goes negative when shipping alone exceeds break-even.
	BreakEvenUnitPrice decimal.Decimal
	// TargetTotalPrice is the total that would realise the maximum target margin.
	TargetTotalPrice decimal.Decimal
}

// ResolveQuantity returns the upstream quantity when known, otherwise the title quantity.
func ResolveQuantity(rec listing.Record) int {
	if rec.Quantity != nil {
		return *rec.Quantity
	}
	return QuantityFromTitle(rec.Title)
}

// Compute values a listing against the market config. It never fails for well-typed input.
func Compute(rec listing.Record, cfg MarketConfig) Calculation {
	unit, class := cfg.Content.Resolve(rec.Title)
	if rec.UnitContentOz.Valid && rec.UnitContentOz.Decimal.IsPositive() {
		unit, class = rec.UnitContentOz.Decimal, "explicit"
	}

	qty := ResolveQuantity(rec)
	if qty < 0 {
		qty = 0
	}

	totalOz := unit.Mul(decimal.NewFromInt(int64(qty)))
	melt := totalOz.Mul(cfg.SpotPrice)
	payout := melt.Mul(cfg.PayoutFraction)

	breakEven := priceForMargin(payout, cfg.MinMarginPct)
	calc := Calculation{
		Quantity:            qty,
		UnitContentOz:       unit,
		ContentClass:        class,
		TotalContentOz:      totalOz,
		MeltValue:           melt,
		Payout:              payout,
		BreakEvenTotalPrice: breakEven,
		BreakEvenUnitPrice:  breakEven.Sub(rec.Shipping()),
		TargetTotalPrice:    priceForMargin(payout, cfg.MaxMarginPct),
	}

	if total, ok := rec.TotalPrice(); ok {
		calc.TotalPrice = decimal.NewNullDecimal(total)
		if total.IsPositive() {
			calc.MarginPct = decimal.NewNullDecimal(MarginPct(payout, total))
		}
	}
	return calc
}

// MarginPct is (value - cost) / cost * 100. cost must be positive.
func MarginPct(value, cost decimal.Decimal) decimal.Decimal {
	return value.Sub(cost).Div(cost).Mul(hundred)
}

// priceForMargin is the highest total that still earns marginPct against value.
func priceForMargin(value, marginPct decimal.Decimal) decimal.Decimal {
	if !marginPct.IsPositive() {
		return value
	}
	return value.Div(one.Add(marginPct.Div(hundred)))
}

// Profit returns payout minus total price, when the price is known.
func (c Calculation) Profit() (decimal.Decimal, bool) {
	if !c.TotalPrice.Valid {
		return decimal.Zero, false
	}
	return c.Payout.Sub(c.TotalPrice.Decimal), true
}

// Report is the rounded, presentation-ready view of a Calculation.
type Report struct {
	Quantity            int
	UnitContentOz       decimal.Decimal
	TotalContentOz      decimal.Decimal
	MeltValue           decimal.Decimal
	Payout              decimal.Decimal
	MarginPct           decimal.NullDecimal
	BreakEvenTotalPrice decimal.Decimal
	BreakEvenUnitPrice  decimal.Decimal
	TargetTotalPrice    decimal.Decimal
}

// Report rounds money to cents and percentages to one decimal, half-up.
func (c Calculation) Report() Report {
	r := Report{
		Quantity:            c.Quantity,
		UnitContentOz:       c.UnitContentOz,
		TotalContentOz:      c.TotalContentOz,
		MeltValue:           RoundMoney(c.MeltValue),
		Payout:              RoundMoney(c.Payout),
		BreakEvenTotalPrice: RoundMoney(c.BreakEvenTotalPrice),
		BreakEvenUnitPrice:  RoundMoney(c.BreakEvenUnitPrice),
		TargetTotalPrice:    RoundMoney(c.TargetTotalPrice),
	}
	if c.MarginPct.Valid {
		r.MarginPct = decimal.NewNullDecimal(RoundPct(c.MarginPct.Decimal))
	}
	return r
}
