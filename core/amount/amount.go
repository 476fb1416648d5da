// Package amount converts between human decimal amounts and raw integer units.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Parse converts a decimal string ("12.5") into raw units at the given decimals.
// Amounts with more fractional digits than decimals, or negative amounts, are rejected.
func Parse(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_AMOUNT, fmt.Sprintf("invalid amount %q", s), err)
	}
	if d.IsNegative() {
		return nil, errors.NewConfigError(errors.INVALID_AMOUNT, fmt.Sprintf("amount %q is negative", s), nil)
	}
	if -d.Exponent() > int32(decimals) && !d.Equal(d.Truncate(int32(decimals))) {
		return nil, errors.NewConfigError(
			errors.INVALID_AMOUNT,
			fmt.Sprintf("amount %q has more than %d decimals", s, decimals),
			nil,
		).WithContext("decimals", decimals)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// Format renders raw units as a decimal string at the given decimals.
func Format(raw *big.Int, decimals int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// Rescale multiplies v, expressed with from decimals, so that it is expressed
// with to decimals. Scaling down would lose precision and is refused.
func Rescale(v *big.Int, from, to int) (*big.Int, error) {
	if to < from {
		return nil, fmt.Errorf("cannot rescale from %d to %d decimals without truncation", from, to)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
	return new(big.Int).Mul(v, factor), nil
}

// CommonScale rescales a (aDecimals) and b (bDecimals) to max(aDecimals, bDecimals).
// Equal decimals return both values unchanged.
func CommonScale(a *big.Int, aDecimals int, b *big.Int, bDecimals int) (*big.Int, *big.Int, int) {
	target := aDecimals
	if bDecimals > target {
		target = bDecimals
	}
	// to >= from for both, Rescale cannot fail here
	ra, _ := Rescale(a, aDecimals, target)
	rb, _ := Rescale(b, bDecimals, target)
	return ra, rb, target
}
