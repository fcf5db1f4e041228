package valuation

import "github.com/shopspring/decimal"

var half = decimal.RequireFromString("0.5")

// RoundHalfUp rounds d to places, sending exact halves toward positive infinity.
// decimal.Round sends halves away from zero, which differs for negative margins.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, 2)
}

// RoundPct rounds a percentage to one decimal place.
func RoundPct(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, 1)
}

// FormatPct renders a possibly undefined percentage.
func FormatPct(p decimal.NullDecimal) string {
	if !p.Valid {
		return "n/a"
	}
	return RoundPct(p.Decimal).StringFixed(1) + "%"
}
