/*
types.go - Day quantities and tolerances

PURPOSE:
  Every vacation quantity (accrued, enjoyed, reserved, available) is a
  decimal number of days. Binary floats drift; legal day counts must not.

KEY CONCEPTS:
  - Full precision internally, rounded only at the edges:
      Round4 for persisted accrual results, Round2 for display.
  - Tolerance (0.01 day) absorbs the rounding of those edges when
    comparing counters that should be equal.

SEE ALSO:
  - vacation/accrual.go: produces day quantities
  - vacation/balance.go: compares them with Tolerance
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference between two day quantities that still
// counts as equal.
var Tolerance = decimal.RequireFromString("0.01")

// NegativeTolerance is the lowest value a counter may hold before it is corrupt.
var NegativeTolerance = Tolerance.Neg()

// Round4 is the precision of stored accrual values.
func Round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// Round2 is the precision shown to people.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// WithinTolerance reports |a - b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// BelowZero reports a value under -Tolerance.
func BelowZero(d decimal.Decimal) bool {
	return d.LessThan(NegativeTolerance)
}
