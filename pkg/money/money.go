// Package money implements the service's dedicated integer money
// type: every amount this service touches is a
// signed 64-bit count of minor units (1 KES = 100 units); floating point
// never enters a calculation. shopspring/decimal is used only at the
// reporting boundary, in Minor.Display, to format a value for logs/UIs —
// never for arithmetic.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Minor is an amount expressed in minor currency units.
type Minor int64

// FromMajor converts a major-unit integer amount (e.g. 1048 KES) to
// minor units, assuming a 2-decimal-place currency.
func FromMajor(major int64) Minor {
	return Minor(major * 100)
}

// Add returns m + other. Defined for readability at call sites that sum
// several amounts (wallet credit totals, batch premium totals).
func (m Minor) Add(other Minor) Minor {
	return m + other
}

// Sub returns m - other.
func (m Minor) Sub(other Minor) Minor {
	return m - other
}

// Mul scales m by an integer factor (used for days_count × DAILY_AMOUNT).
func (m Minor) Mul(factor int64) Minor {
	return m * Minor(factor)
}

// Fraction returns m × numerator / denominator, using integer division
// truncated toward zero — used for the 10% reversal fee.
func (m Minor) Fraction(numerator, denominator int64) Minor {
	if denominator == 0 {
		return 0
	}

	return Minor(int64(m) * numerator / denominator)
}

// IsNegative reports whether m represents a negative amount.
func (m Minor) IsNegative() bool {
	return m < 0
}

// Display renders m as a decimal string with two fractional digits, e.g.
// Minor(104800).Display() == "1048.00". This is a formatting-only
// boundary conversion; no arithmetic is ever performed on the decimal.Decimal.
func (m Minor) Display() string {
	d := decimal.New(int64(m), -2)
	return d.StringFixed(2)
}

// String implements fmt.Stringer for log lines.
func (m Minor) String() string {
	return fmt.Sprintf("%d (%s)", int64(m), m.Display())
}
