package curve

import "testing"

func TestSellQuoteScenario(t *testing.T) {
	s := State{
		VirtualBase:  30_000_000_000,
		VirtualToken: 1_000_000_000_000,
		RealBase:     20_000_000_000,
		RealToken:    800_000_000_000,
	}

	q := Sell(s, 10_000_000_000)

	grossBase := mulDiv(10_000_000_000, s.VirtualBase, s.VirtualToken+10_000_000_000)
	wantOut := mulDiv(grossBase, bpsDenominator-FeeBps, bpsDenominator)
	if wantOut > s.RealBase {
		wantOut = s.RealBase
	}

	if q.AmountIn != 10_000_000_000 {
		t.Fatalf("amountIn = %d, want %d", q.AmountIn, 10_000_000_000)
	}
	if q.AmountOut != wantOut {
		t.Fatalf("amountOut = %d, want %d", q.AmountOut, wantOut)
	}
	if q.PriceImpactBps < 0 {
		t.Fatalf("priceImpactBps must be non-negative, got %d", q.PriceImpactBps)
	}
}

func TestBuyQuoteNeverExceedsRealToken(t *testing.T) {
	s := State{
		VirtualBase:  10_000_000_000,
		VirtualToken: 500_000_000_000,
		RealBase:     5_000_000_000,
		RealToken:    100_000_000_000,
	}

	for _, baseIn := range []uint64{0, 1, 1_000, 10_000_000_000, 1_000_000_000_000} {
		q := Quote(s, baseIn)
		if q.AmountOut > s.RealToken {
			t.Fatalf("buy quote amountOut %d exceeds realToken %d for baseIn=%d", q.AmountOut, s.RealToken, baseIn)
		}
	}
}

func TestSellQuoteNeverExceedsRealBase(t *testing.T) {
	s := State{
		VirtualBase:  10_000_000_000,
		VirtualToken: 500_000_000_000,
		RealBase:     5_000_000_000,
		RealToken:    100_000_000_000,
	}

	for _, tokensIn := range []uint64{0, 1, 1_000, 10_000_000_000, 900_000_000_000} {
		q := Sell(s, tokensIn)
		if q.AmountOut > s.RealBase {
			t.Fatalf("sell quote amountOut %d exceeds realBase %d for tokensIn=%d", q.AmountOut, s.RealBase, tokensIn)
		}
	}
}

func TestZeroInputYieldsZeroOutput(t *testing.T) {
	s := State{VirtualBase: 1, VirtualToken: 1, RealBase: 1, RealToken: 1}

	if q := Quote(s, 0); q.AmountOut != 0 {
		t.Fatalf("buy quote with zero input produced non-zero output: %d", q.AmountOut)
	}
	if q := Sell(s, 0); q.AmountOut != 0 {
		t.Fatalf("sell quote with zero input produced non-zero output: %d", q.AmountOut)
	}
}

func TestDeterministic(t *testing.T) {
	s := State{VirtualBase: 30_000_000_000, VirtualToken: 1_000_000_000_000, RealBase: 20_000_000_000, RealToken: 800_000_000_000}

	a := Quote(s, 5_000_000_000)
	b := Quote(s, 5_000_000_000)
	if a != b {
		t.Fatalf("buy quote not deterministic: %+v != %+v", a, b)
	}
}

func TestApplySlippage(t *testing.T) {
	if got := ApplySlippage(1000, 0, SideBuy); got != 1000 {
		t.Fatalf("zero slippage must be identity, got %d", got)
	}
	if got := ApplySlippage(1000, 0, SideSell); got != 1000 {
		t.Fatalf("zero slippage must be identity, got %d", got)
	}

	buy := ApplySlippage(1000, 500, SideBuy)
	sell := ApplySlippage(1000, 500, SideSell)
	if !(buy >= 1000 && 1000 >= sell) {
		t.Fatalf("slippage ordering violated: buy=%d base=1000 sell=%d", buy, sell)
	}
}
