package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestParse_Valid(t *testing.T) {
	v, err := Parse("199.99")
	require.NoError(t, err)
	assert.True(t, v.Equal(d(t, "199.99")))
}

func TestParse_Negative(t *testing.T) {
	_, err := Parse("-1.00")
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestLineTotal(t *testing.T) {
	total := LineTotal(d(t, "49.95"), 3)
	assert.True(t, total.Equal(d(t, "149.85")))
}

func TestSum(t *testing.T) {
	total := Sum(d(t, "100"), d(t, "50.50"), d(t, "0.50"))
	assert.True(t, total.Equal(d(t, "151")))
}

func TestSplitCommission(t *testing.T) {
	// vendor V1: gross 200 at 10% -> commission 20, net 180
	commission, net := SplitCommission(d(t, "200"), d(t, "0.10"))
	assert.True(t, commission.Equal(d(t, "20")))
	assert.True(t, net.Equal(d(t, "180")))

	// vendor V2: gross 100 at 5% -> commission 5, net 95
	commission, net = SplitCommission(d(t, "100"), d(t, "0.05"))
	assert.True(t, commission.Equal(d(t, "5")))
	assert.True(t, net.Equal(d(t, "95")))
}

func TestSplitCommission_RoundsAndAddsBackUp(t *testing.T) {
	gross := d(t, "33.33")
	commission, net := SplitCommission(gross, d(t, "0.075"))
	assert.True(t, commission.Add(net).Equal(gross))
	assert.Equal(t, int32(-2), commission.Exponent())
}

func TestCartTotal(t *testing.T) {
	total := CartTotal(d(t, "400"), d(t, "32"), d(t, "10"), d(t, "25"))
	assert.True(t, total.Equal(d(t, "417")))
}
