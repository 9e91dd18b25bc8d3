/*
This file contains the checked amount arithmetic used when translating manager state into
engine call parameters: deposit headroom and slippage floors.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpm/internal/types"
)

// BasisPoints is the denominator for slippage tolerances.
const BasisPoints = 10_000

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPercent  = errors.New("percent is invalid")
	ErrInvalidSlippage = errors.New("slippage tolerance is invalid")
)

// ApplyHeadroom returns floor(amount * percent / 100).
// A result that does not fit in a u64 token amount is a calculation overflow.
func ApplyHeadroom(amount uint64, percent uint64) (uint64, error) {
	if percent == 0 {
		return 0, fmt.Errorf("%w: headroom percent cannot be zero", ErrInvalidPercent)
	}

	scaled := sdkmath.NewIntFromUint64(amount).
		Mul(sdkmath.NewIntFromUint64(percent)).
		QuoRaw(100)

	if !scaled.IsUint64() {
		return 0, errors.Join(types.ErrCalculationOverflow,
			fmt.Errorf("%d * %d / 100 exceeds u64", amount, percent))
	}
	return scaled.Uint64(), nil
}

// SlippageFloor returns floor(expected * (10000 - bps) / 10000).
// An expected amount of zero yields a zero floor, i.e. no protection.
func SlippageFloor(expected uint64, bps uint32) (uint64, error) {
	if bps > BasisPoints {
		return 0, fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidSlippage, bps, BasisPoints)
	}
	if expected == 0 {
		return 0, nil
	}

	floor := sdkmath.NewIntFromUint64(expected).
		Mul(sdkmath.NewInt(int64(BasisPoints - bps))).
		QuoRaw(BasisPoints)

	// floor <= expected, so it always fits
	return floor.Uint64(), nil
}

// FractionOf returns floor(amount * bps / 10000).
func FractionOf(amount uint64, bps uint32) (uint64, error) {
	if bps > BasisPoints {
		return 0, fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidPercent, bps, BasisPoints)
	}
	return sdkmath.NewIntFromUint64(amount).
		Mul(sdkmath.NewInt(int64(bps))).
		QuoRaw(BasisPoints).
		Uint64(), nil
}
