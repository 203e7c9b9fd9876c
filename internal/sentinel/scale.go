package sentinel

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// scaleFactors precompute the decimal-scale constants needed to convert an
// amount between the base and quote tokens through the feed's precision.
// Forward (base -> quote): out = amount * price * num / den.
// Reverse (quote -> base): out = amount * den / (price * num).
type scaleFactors struct {
	// num is 10^quoteDecimals.
	num sdkmath.Int
	// den is 10^(baseDecimals + feedDecimals).
	den sdkmath.Int
}

func newScaleFactors(baseDecimals, quoteDecimals, feedDecimals uint8) scaleFactors {
	return scaleFactors{
		num: sdkmath.NewIntWithDecimal(1, int(quoteDecimals)),
		den: sdkmath.NewIntWithDecimal(1, int(baseDecimals)+int(feedDecimals)),
	}
}

// convert scales amount through price. All intermediate products stay in
// arbitrary precision; only the final division truncates. The divisor can
// only be zero if price is zero, which callers must have rejected already.
func (f scaleFactors) convert(amount, price sdkmath.Int, reverse bool) (sdkmath.Int, error) {
	if reverse {
		divisor := price.Mul(f.num)
		if divisor.IsZero() {
			return sdkmath.Int{}, errors.New("sentinel: zero divisor in scale conversion")
		}
		return amount.Mul(f.den).Quo(divisor), nil
	}
	if f.den.IsZero() {
		return sdkmath.Int{}, errors.New("sentinel: zero divisor in scale conversion")
	}
	return amount.Mul(price).Mul(f.num).Quo(f.den), nil
}
