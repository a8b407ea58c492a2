package pricing

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"vaultrisk/core/types"
)

var (
	// Q96 is the fixed-point unit of sqrt prices.
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint256 = new(uint256.Int).SetAllOne()
	q32Mask    = uint256.NewInt(0xffffffff)

	tickFactors = [...]*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
	tickOne  = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	tickBase = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < types.MinTick || tick > types.MaxTick {
		return nil, fmt.Errorf("pricing: tick %d out of range", tick)
	}
	abs := uint32(tick)
	if tick < 0 {
		abs = uint32(-tick)
	}
	ratio := new(uint256.Int).Set(tickBase)
	if abs&1 != 0 {
		ratio.Set(tickOne)
	}
	for i, factor := range tickFactors {
		if abs&(2<<uint(i)) != 0 {
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}
	rounded := new(uint256.Int).Rsh(ratio, 32)
	if !new(uint256.Int).And(ratio, q32Mask).IsZero() {
		rounded.AddUint64(rounded, 1)
	}
	return rounded.ToBig(), nil
}

// Convert0To1 values a token0 amount in token1 at the given sqrt price,
// rounding down.
func Convert0To1(amount, sqrtPriceX96 *big.Int) *big.Int {
	num := new(big.Int).Mul(amount, sqrtPriceX96)
	num.Mul(num, sqrtPriceX96)
	return num.Quo(num, q192)
}

// Convert0To1Up is Convert0To1 rounding up.
func Convert0To1Up(amount, sqrtPriceX96 *big.Int) *big.Int {
	num := new(big.Int).Mul(amount, sqrtPriceX96)
	num.Mul(num, sqrtPriceX96)
	return divUp(num, q192)
}

// Convert1To0 values a token1 amount in token0, rounding down.
func Convert1To0(amount, sqrtPriceX96 *big.Int) *big.Int {
	den := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num := new(big.Int).Mul(amount, q192)
	return num.Quo(num, den)
}

// Convert1To0Up is Convert1To0 rounding up.
func Convert1To0Up(amount, sqrtPriceX96 *big.Int) *big.Int {
	den := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num := new(big.Int).Mul(amount, q192)
	return divUp(num, den)
}

// ConvertTo values an amount of token `from` in token `to`.
func ConvertTo(amount *big.Int, from, to uint8, sqrtPriceX96 *big.Int, roundUp bool) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case from == types.Token0 && roundUp:
		return Convert0To1Up(amount, sqrtPriceX96)
	case from == types.Token0:
		return Convert0To1(amount, sqrtPriceX96)
	case roundUp:
		return Convert1To0Up(amount, sqrtPriceX96)
	default:
		return Convert1To0(amount, sqrtPriceX96)
	}
}

func divUp(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
