package pricing

import (
	"fmt"
	"math/big"

	"vaultrisk/core/types"
)

// LiquidityForAmount0 returns the liquidity backed by amount0 over
// [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	lo, hi := order(sqrtA, sqrtB)
	intermediate := new(big.Int).Mul(lo, hi)
	intermediate.Quo(intermediate, Q96)
	num := new(big.Int).Mul(amount0, intermediate)
	return num.Quo(num, new(big.Int).Sub(hi, lo))
}

// LiquidityForAmount1 returns the liquidity backed by amount1 over
// [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	lo, hi := order(sqrtA, sqrtB)
	num := new(big.Int).Mul(amount1, Q96)
	return num.Quo(num, new(big.Int).Sub(hi, lo))
}

// Amount0ForLiquidity is the token0 held by liquidity over [sqrtA, sqrtB].
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	lo, hi := order(sqrtA, sqrtB)
	num := new(big.Int).Lsh(liquidity, 96)
	num.Mul(num, new(big.Int).Sub(hi, lo))
	num.Quo(num, hi)
	return num.Quo(num, lo)
}

// Amount1ForLiquidity is the token1 held by liquidity over [sqrtA, sqrtB].
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	lo, hi := order(sqrtA, sqrtB)
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(hi, lo))
	return num.Quo(num, Q96)
}

// AmountsForLiquidity splits liquidity over [sqrtA, sqrtB] at the price sqrtP.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	lo, hi := order(sqrtA, sqrtB)
	switch {
	case sqrtP.Cmp(lo) <= 0:
		return Amount0ForLiquidity(lo, hi, liquidity), new(big.Int)
	case sqrtP.Cmp(hi) < 0:
		return Amount0ForLiquidity(sqrtP, hi, liquidity), Amount1ForLiquidity(lo, sqrtP, liquidity)
	default:
		return new(big.Int), Amount1ForLiquidity(lo, hi, liquidity)
	}
}

func order(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// ChunkMath derives leg token amounts from the leg's liquidity range. It is
// the reference implementation of the AMM amounts collaborator.
type ChunkMath struct {
	TickSpacing int32
}

func (m ChunkMath) bounds(leg types.Leg) (*big.Int, *big.Int, error) {
	lower, upper := leg.TickRange(m.TickSpacing)
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return nil, nil, err
	}
	if sqrtA.Cmp(sqrtB) == 0 {
		return nil, nil, fmt.Errorf("%w: empty range", types.ErrInvalidPosition)
	}
	return sqrtA, sqrtB, nil
}

// Liquidity returns the chunk liquidity for the leg's contracts, measured in
// the leg's asset.
func (m ChunkMath) Liquidity(leg types.Leg, size *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := m.bounds(leg)
	if err != nil {
		return nil, err
	}
	contracts := leg.Contracts(size)
	if leg.Asset == types.Token0 {
		return LiquidityForAmount0(sqrtA, sqrtB, contracts), nil
	}
	return LiquidityForAmount1(sqrtA, sqrtB, contracts), nil
}

// AmountsMoved returns the amounts of both tokens at the range boundaries,
// i.e. the notional the leg moves in each token.
func (m ChunkMath) AmountsMoved(leg types.Leg, size *big.Int) (*big.Int, *big.Int, error) {
	sqrtA, sqrtB, err := m.bounds(leg)
	if err != nil {
		return nil, nil, err
	}
	liquidity, err := m.Liquidity(leg, size)
	if err != nil {
		return nil, nil, err
	}
	return Amount0ForLiquidity(sqrtA, sqrtB, liquidity), Amount1ForLiquidity(sqrtA, sqrtB, liquidity), nil
}

// AmountsAtTick returns the token composition of the chunk at tick.
func (m ChunkMath) AmountsAtTick(leg types.Leg, size *big.Int, tick int32) (*big.Int, *big.Int, error) {
	sqrtA, sqrtB, err := m.bounds(leg)
	if err != nil {
		return nil, nil, err
	}
	sqrtP, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, nil, err
	}
	liquidity, err := m.Liquidity(leg, size)
	if err != nil {
		return nil, nil, err
	}
	a0, a1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	return a0, a1, nil
}
