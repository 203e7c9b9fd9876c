package sentinel

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestScaleConvertForward(t *testing.T) {
	// 18-decimal base, 6-decimal quote, 8-decimal feed price of 2000.
	factors := newScaleFactors(18, 6, 8)
	price := sdkmath.NewIntWithDecimal(2000, 8)
	amount := sdkmath.NewIntWithDecimal(1, 18)

	out, err := factors.convert(amount, price, false)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if want := sdkmath.NewIntWithDecimal(2000, 6); !out.Equal(want) {
		t.Fatalf("forward conversion = %s, want %s", out, want)
	}
}

func TestScaleConvertReverse(t *testing.T) {
	factors := newScaleFactors(18, 6, 8)
	price := sdkmath.NewIntWithDecimal(2000, 8)
	amount := sdkmath.NewIntWithDecimal(2000, 6)

	out, err := factors.convert(amount, price, true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if want := sdkmath.NewIntWithDecimal(1, 18); !out.Equal(want) {
		t.Fatalf("reverse conversion = %s, want %s", out, want)
	}
}

func TestScaleConvertRoundTripTruncates(t *testing.T) {
	factors := newScaleFactors(0, 0, 1)
	price := sdkmath.NewInt(3)

	out, err := factors.convert(sdkmath.NewInt(1), price, false)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 1 * 3 / 10 truncates to zero.
	if !out.IsZero() {
		t.Fatalf("expected truncation to zero, got %s", out)
	}
}

func TestScaleConvertZeroPriceReverse(t *testing.T) {
	factors := newScaleFactors(6, 6, 8)
	if _, err := factors.convert(sdkmath.NewInt(100), sdkmath.ZeroInt(), true); err == nil {
		t.Fatal("reverse conversion with zero price should fail")
	}
}
