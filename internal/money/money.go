// Package money holds the single choke point where indicator/strategy
// float64 math is converted into the fixed-precision decimal values used
// by Position, Order and TradeRecord (design note: "Decimal money").
package money

import (
	"github.com/shopspring/decimal"
)

// FromFloat converts a float64 price/volume/funds value coming out of a
// strategy or indicator calculation into a decimal for storage in
// money-bearing fields. This is the only place strategy output crosses
// into the execution/position domain.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// ToFloat converts a decimal back to float64 for re-entry into indicator
// math (e.g. feeding the current average entry price back into a
// strategy's signal evaluation).
func ToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Zero is the canonical zero decimal value.
var Zero = decimal.Zero

// Round rounds to the given number of decimal places with
// shopspring/decimal's default rounding, which rounds half away from zero.
func Round(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
