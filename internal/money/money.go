// Package money holds the decimal arithmetic used for every monetary value in the
// system. Prices, totals, commissions and payouts are decimal.Decimal end to end
// and NUMERIC at rest; float64 never enters the money flow.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("amount must not be negative")

// Parse reads a decimal amount from its string form and rejects negative values.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// LineTotal is unit price times quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds up a list of amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// SplitCommission computes the marketplace commission on a vendor's gross and the
// net left for the vendor. Commission is rounded to 2 decimal places; net is
// gross minus the rounded commission so the two always add back up to gross.
func SplitCommission(gross, rate decimal.Decimal) (commission, net decimal.Decimal) {
	commission = gross.Mul(rate).Round(2)
	net = gross.Sub(commission)
	return commission, net
}

// CartTotal combines the derived cart amounts: subtotal + tax + shipping - discount.
func CartTotal(subtotal, tax, shipping, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax).Add(shipping).Sub(discount)
}
