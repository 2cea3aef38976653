package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept for every monetary amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount to two decimal places, half away from zero.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// ToMinorUnits converts a two-place amount into the gateway's minor unit (cents).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts gateway minor units back into a two-place amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -MoneyPlaces)
}
