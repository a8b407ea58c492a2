package pricing

import (
	"math"
	"math/big"
	"testing"

	"vaultrisk/core/types"
)

func TestSqrtRatioAtTickBounds(t *testing.T) {
	zero, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("tick 0: %v", err)
	}
	if zero.Cmp(Q96) != 0 {
		t.Fatalf("expected 2^96 at tick 0, got %s", zero)
	}
	low, err := SqrtRatioAtTick(types.MinTick)
	if err != nil {
		t.Fatalf("min tick: %v", err)
	}
	if low.String() != "4295128739" {
		t.Fatalf("unexpected min sqrt ratio: %s", low)
	}
	high, err := SqrtRatioAtTick(types.MaxTick)
	if err != nil {
		t.Fatalf("max tick: %v", err)
	}
	if high.String() != "1461446703485210103287273052203988822378723970342" {
		t.Fatalf("unexpected max sqrt ratio: %s", high)
	}
	if _, err := SqrtRatioAtTick(types.MaxTick + 1); err == nil {
		t.Fatalf("expected out of range tick to fail")
	}
}

func TestSqrtRatioAtTickMatchesFloat(t *testing.T) {
	for _, tick := range []int32{-200_000, -1_000, -1, 1, 60, 1_000, 50_000, 200_000} {
		got, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		want := math.Pow(1.0001, float64(tick)/2) * math.Pow(2, 96)
		gotF, _ := new(big.Float).SetInt(got).Float64()
		if rel := math.Abs(gotF-want) / want; rel > 1e-9 {
			t.Fatalf("tick %d: relative error %g", tick, rel)
		}
	}
}

func TestSqrtRatioMonotonic(t *testing.T) {
	prev, _ := SqrtRatioAtTick(-10_000)
	for tick := int32(-9_990); tick <= 10_000; tick += 10 {
		cur, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if cur.Cmp(prev) <= 0 {
			t.Fatalf("sqrt ratio not increasing at tick %d", tick)
		}
		prev = cur
	}
}

func TestConversionsAtParity(t *testing.T) {
	amount := big.NewInt(1_000_000)
	if got := Convert0To1(amount, Q96); got.Cmp(amount) != 0 {
		t.Fatalf("unexpected 0->1 at parity: %s", got)
	}
	if got := Convert1To0Up(amount, Q96); got.Cmp(amount) != 0 {
		t.Fatalf("unexpected 1->0 at parity: %s", got)
	}
	sqrtP, _ := SqrtRatioAtTick(23_027) // price ~ 10
	in1 := Convert0To1(amount, sqrtP)
	if in1.Cmp(big.NewInt(9_999_000)) < 0 || in1.Cmp(big.NewInt(10_001_000)) > 0 {
		t.Fatalf("expected ~10x conversion, got %s", in1)
	}
	back := Convert1To0(in1, sqrtP)
	if back.Cmp(amount) > 0 {
		t.Fatalf("round trip gained value: %s", back)
	}
	up := ConvertTo(in1, types.Token1, types.Token0, sqrtP, true)
	if up.Cmp(back) < 0 {
		t.Fatalf("rounding up returned less than rounding down")
	}
}

func TestChunkMathAmounts(t *testing.T) {
	m := ChunkMath{TickSpacing: 10}
	leg := types.Leg{Asset: types.Token0, OptionRatio: 2, TokenType: types.Token0, RiskPartner: 0, Strike: 1_000, Width: 10}
	size := big.NewInt(500_000_000)
	moved0, moved1, err := m.AmountsMoved(leg, size)
	if err != nil {
		t.Fatalf("amounts moved: %v", err)
	}
	contracts := leg.Contracts(size)
	if moved0.Cmp(contracts) > 0 || new(big.Int).Sub(contracts, moved0).Cmp(big.NewInt(3)) > 0 {
		t.Fatalf("asset amount %s should match contracts %s", moved0, contracts)
	}
	if moved1.Sign() <= 0 {
		t.Fatalf("expected positive token1 notional")
	}

	below0, below1, err := m.AmountsAtTick(leg, size, 0)
	if err != nil {
		t.Fatalf("amounts below: %v", err)
	}
	if below1.Sign() != 0 || below0.Cmp(moved0) != 0 {
		t.Fatalf("below range chunk should be all token0: %s %s", below0, below1)
	}
	above0, above1, err := m.AmountsAtTick(leg, size, 2_000)
	if err != nil {
		t.Fatalf("amounts above: %v", err)
	}
	if above0.Sign() != 0 || above1.Cmp(moved1) != 0 {
		t.Fatalf("above range chunk should be all token1: %s %s", above0, above1)
	}
	mid0, mid1, err := m.AmountsAtTick(leg, size, 1_000)
	if err != nil {
		t.Fatalf("amounts in range: %v", err)
	}
	if mid0.Sign() <= 0 || mid1.Sign() <= 0 {
		t.Fatalf("in range chunk should hold both tokens: %s %s", mid0, mid1)
	}
}

func TestGuardClassify(t *testing.T) {
	g := Guard{MaxTickDelta: 513, MaxAge: 600}
	snap := Snapshot{CurrentTick: 1_000, TWAPTick: 600, ObservedAt: 1_000}
	if status := g.Classify(snap, 1_100); status != PriceStatusOK {
		t.Fatalf("expected ok, got %s", status)
	}
	snap.TWAPTick = 400
	if status := g.Classify(snap, 1_100); status != PriceStatusDeviant {
		t.Fatalf("expected deviant, got %s", status)
	}
	if status := g.Classify(snap, 2_000); status != PriceStatusStale {
		t.Fatalf("expected stale, got %s", status)
	}
	if ticks := snap.Ticks(); len(ticks) != 2 {
		t.Fatalf("expected both ticks, got %v", ticks)
	}
}
