package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovementBasisPoints(t *testing.T) {
	tests := []struct {
		name  string
		start uint64
		end   uint64
		want  int64
	}{
		{"five percent gain", 100_000, 105_000, 500},
		{"ten percent gain", 100_000, 110_000, 1000},
		{"five percent drop", 100_000, 95_000, -500},
		{"flat", 100_000, 100_000, 0},
		{"doubling", 1, 2, 10_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Movement(tt.start, tt.end, PrecisionBps)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMovementTruncatesTowardZero(t *testing.T) {
	// +1/3 and -1/3 both truncate, so they are symmetric around zero.
	up, ok := Movement(3, 4, PrecisionBps)
	assert.True(t, ok)
	assert.Equal(t, int64(3333), up)

	down, ok := Movement(3, 2, PrecisionBps)
	assert.True(t, ok)
	assert.Equal(t, int64(-3333), down)
}

func TestMovementZeroStartIneligible(t *testing.T) {
	_, ok := Movement(0, 100_000, PrecisionBps)
	assert.False(t, ok)
}

func TestMovementFinePrecisionDiscriminatesTinyPrices(t *testing.T) {
	// A 1-mantissa-unit move on a tiny price is invisible in basis points
	// for small relative changes but not here: 2/1 doubles.
	mv, ok := Movement(1, 2, PrecisionFine)
	assert.True(t, ok)
	assert.Equal(t, PrecisionFine, mv)

	// One part in a billion resolves at 10^12 but rounds to zero at 10^4.
	coarse, ok := Movement(1_000_000_000, 1_000_000_001, PrecisionBps)
	assert.True(t, ok)
	assert.Equal(t, int64(0), coarse)

	fine, ok := Movement(1_000_000_000, 1_000_000_001, PrecisionFine)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), fine)
}

func TestMovementFullRangePrices(t *testing.T) {
	// Max-mantissa prices must not overflow the intermediate product.
	mv, ok := Movement(math.MaxUint64, math.MaxUint64, PrecisionFine)
	assert.True(t, ok)
	assert.Equal(t, int64(0), mv)

	mv, ok = Movement(math.MaxUint64, math.MaxUint64/2, PrecisionBps)
	assert.True(t, ok)
	assert.Equal(t, int64(-5000), mv)
}

func TestQuoteValueScalesToUnitOfAccount(t *testing.T) {
	// 1.0 token (6 decimals) at $1.00 (mantissa 1e8, expo -8) is $1.00 in
	// 6-decimal units.
	assert.Equal(t, uint64(1_000_000), QuoteValue(1_000_000, 6, 100_000_000, -8))

	// 2.5 tokens at $2500.
	assert.Equal(t, uint64(6_250_000_000), QuoteValue(2_500_000, 6, 250_000_000_000, -8))

	// Whole-unit amounts with a positive exponent: 3 tokens at 2*10^1.
	assert.Equal(t, uint64(60_000_000), QuoteValue(3, 0, 2, 1))
}

func TestQuoteValueZeroAmount(t *testing.T) {
	assert.Equal(t, uint64(0), QuoteValue(0, 6, 100_000_000, -8))
}

func TestQuoteValueOverflowReturnsZero(t *testing.T) {
	assert.Equal(t, uint64(0), QuoteValue(math.MaxUint64, 0, math.MaxUint64, 0))
}
