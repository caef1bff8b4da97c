// Package curve implements the bonding-curve AMM math (§4.1): pure
// functions over 64-bit unsigned integer reserves, no I/O. Every
// intermediate product that could overflow 64 bits is widened to 128 bits
// via math/bits before being divided back down.
package curve

import "math/bits"

// FeeBps is the fixed protocol fee, 1% (100 basis points).
const FeeBps = 100

const bpsDenominator = 10000

// State is the reserve snapshot a quote is computed against.
type State struct {
	VirtualToken uint64
	VirtualBase  uint64
	RealToken    uint64
	RealBase     uint64
	TokenSupply  uint64
	Complete     bool
	Creator      string
}

// BuyQuote is the result of quoting a buy against baseIn units of the base
// currency.
type BuyQuote struct {
	AmountIn       uint64
	AmountOut      uint64
	PriceImpactBps uint64
}

// SellQuote is the result of quoting a sell of tokensIn token units.
type SellQuote struct {
	AmountIn       uint64
	AmountOut      uint64
	PriceImpactBps uint64
}

// mulDiv computes floor(a*b/div) using a 128-bit intermediate product so
// that a*b may exceed 64 bits even though every operand and the result fit
// in uint64.
func mulDiv(a, b, div uint64) uint64 {
	if div == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi == 0 {
		return lo / div
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Quote computes the amount of tokens received for baseIn units of base
// currency against the given reserves (buyer-pays-fee model).
func Quote(s State, baseIn uint64) BuyQuote {
	if baseIn == 0 || s.VirtualToken == 0 {
		return BuyQuote{AmountIn: baseIn}
	}

	netBase := mulDiv(baseIn, bpsDenominator, bpsDenominator+FeeBps)
	tokensOut := mulDiv(netBase, s.VirtualToken, s.VirtualBase+netBase)
	result := minU64(tokensOut, s.RealToken)

	var impact uint64
	if result > 0 && s.VirtualToken > 0 {
		spotPrice := mulDiv(s.VirtualBase, bpsDenominator, s.VirtualToken)
		execPrice := mulDiv(baseIn, bpsDenominator, result)
		if execPrice > spotPrice && spotPrice > 0 {
			impact = mulDiv(execPrice-spotPrice, bpsDenominator, spotPrice)
		}
	}

	return BuyQuote{AmountIn: baseIn, AmountOut: result, PriceImpactBps: impact}
}

// Sell computes the amount of base currency received for tokensIn
// token units against the given reserves, after fee.
func Sell(s State, tokensIn uint64) SellQuote {
	if tokensIn == 0 {
		return SellQuote{AmountIn: 0}
	}

	grossBase := mulDiv(tokensIn, s.VirtualBase, s.VirtualToken+tokensIn)
	netBase := mulDiv(grossBase, bpsDenominator-FeeBps, bpsDenominator)
	result := minU64(netBase, s.RealBase)

	var impact uint64
	if result > 0 && s.VirtualToken > 0 {
		spotPrice := mulDiv(s.VirtualBase, bpsDenominator, s.VirtualToken)
		execPrice := mulDiv(result, bpsDenominator, tokensIn)
		if spotPrice > execPrice {
			impact = mulDiv(spotPrice-execPrice, bpsDenominator, spotPrice)
		}
	}

	return SellQuote{AmountIn: tokensIn, AmountOut: result, PriceImpactBps: impact}
}

// Side distinguishes which direction a slippage bound applies to.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// ApplySlippage returns the buy-side maximum cost (Side=Buy) or the
// sell-side minimum receipt (Side=Sell) for a quoted amount, given a
// slippage tolerance in basis points.
func ApplySlippage(amount uint64, slippageBps int, side Side) uint64 {
	if slippageBps <= 0 {
		return amount
	}
	switch side {
	case SideBuy:
		return mulDiv(amount, uint64(bpsDenominator+slippageBps), bpsDenominator)
	default:
		if slippageBps >= bpsDenominator {
			return 0
		}
		return mulDiv(amount, uint64(bpsDenominator-slippageBps), bpsDenominator)
	}
}
