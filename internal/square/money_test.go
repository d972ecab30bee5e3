package square

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMinorUnitsUsesBankersRounding(t *testing.T) {
	cases := map[string]int64{
		"10":      1000,
		"10.005":  1000,
		"10.015":  1002,
		"19.99":   1999,
		"0.125":   12,
		"0.135":   14,
		"1234.5":  123450,
	}
	for in, want := range cases {
		assert.Equal(t, want, MinorUnits(decimal.RequireFromString(in)), in)
	}
}

func TestMoneyDecimalRoundTrip(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("25.50"), " usd ")
	assert.Equal(t, Money{Amount: 2550, Currency: "USD"}, m)
	assert.True(t, m.Decimal().Equal(decimal.RequireFromString("25.5")))
}
