package registry

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FLOW has 18 decimals like ether.
const nativeDecimals = 18

// ToWei converts an amount of the native token into wei. Fractions below one
// wei are rejected.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	wei := amount.Shift(nativeDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, nativeDecimals)
	}
	return wei.BigInt(), nil
}

// FromWei converts wei into the native token amount.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals)
}
