package square

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount to minor units using banker's rounding.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).RoundBank(0).IntPart()
}

// NewMoney builds a Money from a major-unit decimal amount.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: MinorUnits(amount), Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}
