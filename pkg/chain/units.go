package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into the token's smallest unit.
// Amounts with more fractional digits than the token supports are rejected.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}

	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return shifted.BigInt(), nil
}

// FromBaseUnits converts a smallest-unit amount into a human amount
func FromBaseUnits(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// FormatUnits renders a smallest-unit amount as a decimal string
func FormatUnits(value *big.Int, decimals uint8) string {
	return FromBaseUnits(value, decimals).String()
}
