package onchain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into integer token units (amount × 10^decimals),
// truncating any precision beyond the token decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	return amount.Shift(decimals).Truncate(0).BigInt(), nil
}

// FromBaseUnits converts integer token units back to a human amount.
func FromBaseUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}

// maxUint256 is the "infinite" ERC20 approval.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
