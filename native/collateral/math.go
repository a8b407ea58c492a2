package collateral

import (
	"math/big"

	"vaultrisk/core/types"
)

var (
	wad        = types.WAD
	decimals   = new(big.Int).SetUint64(types.Decimals)
	maxDeposit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 104), big.NewInt(1))
	// Virtual balances seeded at vault creation.
	virtualAssets = big.NewInt(1)
	virtualShares = big.NewInt(1_000_000)
)

func mulDiv(a, b, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

func mulDivUp(a, b, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, den, new(big.Int))
	if r.Sign() != 0 && product.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// taylorCompounded approximates e^(x) - 1 in WAD with three terms, rounding
// each term up.
func taylorCompounded(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	second := mulDivUp(x, x, new(big.Int).Mul(big.NewInt(2), wad))
	third := mulDivUp(second, x, new(big.Int).Mul(big.NewInt(3), wad))
	out := new(big.Int).Add(x, second)
	return out.Add(out, third)
}

// growIndex compounds index by rate over elapsed seconds.
func growIndex(index *big.Int, rate uint64, elapsed uint64) *big.Int {
	x := new(big.Int).Mul(new(big.Int).SetUint64(rate), new(big.Int).SetUint64(elapsed))
	factor := new(big.Int).Add(wad, taylorCompounded(x))
	return mulDivUp(index, factor, wad)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
