package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpm/internal/types"
)

func TestApplyHeadroom(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		percent uint64
		want    uint64
	}{
		{"one million", 1_000_000, 110, 1_100_000},
		{"zero balance", 0, 110, 0},
		{"floors fractional result", 7, 110, 7},
		{"floors at boundary", 19, 110, 20},
		{"identity", 12345, 100, 12345},
		{"large balance still fits", math.MaxUint64 / 2, 110, 10145709240540253387},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyHeadroom(tt.amount, tt.percent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyHeadroomOverflow(t *testing.T) {
	_, err := ApplyHeadroom(math.MaxUint64, 110)
	assert.ErrorIs(t, err, types.ErrCalculationOverflow)

	_, err = ApplyHeadroom(1, 0)
	assert.ErrorIs(t, err, ErrInvalidPercent)
}

func TestSlippageFloor(t *testing.T) {
	tests := []struct {
		name     string
		expected uint64
		bps      uint32
		want     uint64
	}{
		{"zero expected is zero floor", 0, 50, 0},
		{"zero tolerance keeps expected", 1_000, 0, 1_000},
		{"half a percent", 1_000_000, 50, 995_000},
		{"floors", 999, 100, 989},
		{"full tolerance", 1_000, BasisPoints, 0},
		{"max expected", math.MaxUint64, 1, math.MaxUint64 - math.MaxUint64/BasisPoints - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SlippageFloor(tt.expected, tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SlippageFloor(1, BasisPoints+1)
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestFractionOf(t *testing.T) {
	got, err := FractionOf(1_000_000, 2_500)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), got)

	got, err = FractionOf(3, 5_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)

	_, err = FractionOf(1, BasisPoints+1)
	assert.ErrorIs(t, err, ErrInvalidPercent)
}
