package domain

import "math/big"

// Movement precision multipliers. Basis points resolve coarse rounds; the
// 10^12 multiplier discriminates assets whose prices are too small for
// basis-point resolution (sub-cent meme tokens).
const (
	PrecisionBps  int64 = 10_000
	PrecisionFine int64 = 1_000_000_000_000
)

// Movement computes the signed fixed-point percentage movement between two
// prices: ((end - start) * precision) / start, truncated toward zero.
//
// Prices are uint64 mantissas, so the intermediate product needs 128-bit
// arithmetic to stay exact across the full supported price range; big.Int
// provides it. A zero start price has no defined movement: the second return
// is false and the caller must treat the asset as ineligible for winner
// comparison.
func Movement(startPrice, endPrice uint64, precision int64) (int64, bool) {
	if startPrice == 0 {
		return 0, false
	}

	delta := new(big.Int).Sub(
		new(big.Int).SetUint64(endPrice),
		new(big.Int).SetUint64(startPrice),
	)
	delta.Mul(delta, big.NewInt(precision))
	delta.Quo(delta, new(big.Int).SetUint64(startPrice))
	return delta.Int64(), true
}

// QuoteValue converts a raw token amount into the pool's 6-decimal unit of
// account using an oracle quote (mantissa and power-of-ten exponent):
//
//	value = amount/10^amountDecimals * price*10^expo, scaled to 6 decimals
//
// All intermediate math is done in big.Int so extreme exponents cannot
// overflow.
func QuoteValue(amount uint64, amountDecimals uint32, price uint64, expo int32) uint64 {
	v := new(big.Int).Mul(
		new(big.Int).SetUint64(amount),
		new(big.Int).SetUint64(price),
	)

	// Net power of ten: scale to 6 decimals, apply the quote exponent, and
	// strip the amount's own decimals.
	shift := 6 + int64(expo) - int64(amountDecimals)
	if shift >= 0 {
		v.Mul(v, pow10(shift))
	} else {
		v.Quo(v, pow10(-shift))
	}

	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
