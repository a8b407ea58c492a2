package risk

import (
	"errors"
	"fmt"
	"math/big"

	"vaultrisk/core/types"
)

var errInvalidParams = errors.New("risk: invalid parameters")

// ExerciseDecimals is the denominator of the force exercise cost rates.
const ExerciseDecimals uint64 = 10_000_000

// Params configures collateral ratios. Ratios and utilisations are expressed
// in DECIMALS.
type Params struct {
	// SellerCollateralRatio is the share of notional a short leg posts when
	// it was opened at or below the target utilisation.
	SellerCollateralRatio uint64
	// BuyerCollateralRatio is the share of notional a long leg posts at or
	// below the target utilisation. It halves toward saturation.
	BuyerCollateralRatio uint64
	TargetUtilization    uint64
	SaturatedUtilization uint64
	// CrossBufferRatio is the fraction of one token's surplus that may back
	// the other token's requirement while utilisation is at or below target.
	// It falls to zero at saturation.
	CrossBufferRatio uint64
	// CalendarDivisor scales the width-mismatch term of a spread.
	CalendarDivisor uint64
	// MaintenanceMarginRate is the share of the requirement settled deposits
	// must cover before an account can be liquidated.
	MaintenanceMarginRate uint64
	// ForceExerciseCost and OutOfRangeExerciseCost are charged on the moved
	// amount of each long leg, in ExerciseDecimals, depending on whether any
	// long leg is in range at the current tick.
	ForceExerciseCost      uint64
	OutOfRangeExerciseCost uint64
	TickSpacing            int32
}

// DefaultParams returns the production ratios.
func DefaultParams() Params {
	return Params{
		SellerCollateralRatio:  2_000,
		BuyerCollateralRatio:   1_000,
		TargetUtilization:      6_667,
		SaturatedUtilization:   9_000,
		CrossBufferRatio:       9_500,
		CalendarDivisor:        80_000,
		MaintenanceMarginRate:  10_000,
		ForceExerciseCost:      102_400,
		OutOfRangeExerciseCost: 1_000,
		TickSpacing:            10,
	}
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	switch {
	case p.SellerCollateralRatio == 0 || p.SellerCollateralRatio > types.Decimals:
		return fmt.Errorf("%w: seller collateral ratio %d", errInvalidParams, p.SellerCollateralRatio)
	case p.BuyerCollateralRatio == 0 || p.BuyerCollateralRatio > types.Decimals:
		return fmt.Errorf("%w: buyer collateral ratio %d", errInvalidParams, p.BuyerCollateralRatio)
	case p.TargetUtilization >= p.SaturatedUtilization || p.SaturatedUtilization > types.Decimals:
		return fmt.Errorf("%w: utilisation target %d saturation %d", errInvalidParams, p.TargetUtilization, p.SaturatedUtilization)
	case p.CrossBufferRatio > types.Decimals:
		return fmt.Errorf("%w: cross buffer %d", errInvalidParams, p.CrossBufferRatio)
	case p.CalendarDivisor == 0:
		return fmt.Errorf("%w: calendar divisor is zero", errInvalidParams)
	case p.MaintenanceMarginRate == 0 || p.MaintenanceMarginRate > types.Decimals:
		return fmt.Errorf("%w: maintenance margin rate %d", errInvalidParams, p.MaintenanceMarginRate)
	case p.ForceExerciseCost > ExerciseDecimals || p.OutOfRangeExerciseCost > p.ForceExerciseCost:
		return fmt.Errorf("%w: exercise cost %d out of range %d", errInvalidParams, p.ForceExerciseCost, p.OutOfRangeExerciseCost)
	case p.TickSpacing <= 0:
		return fmt.Errorf("%w: tick spacing %d", errInvalidParams, p.TickSpacing)
	}
	return nil
}

// ramp interpolates linearly from `from` at the target utilisation to `to` at
// saturation, rounding toward the more conservative end when rising.
func (p Params) ramp(utilization, from, to uint64) uint64 {
	switch {
	case utilization <= p.TargetUtilization:
		return from
	case utilization >= p.SaturatedUtilization:
		return to
	}
	span := p.SaturatedUtilization - p.TargetUtilization
	progress := utilization - p.TargetUtilization
	if to >= from {
		delta := (to-from)*progress + span - 1
		return from + delta/span
	}
	return from - (from-to)*progress/span
}

// SellRatio is the collateral ratio of a short leg opened at utilization.
func (p Params) SellRatio(utilization uint64) uint64 {
	return p.ramp(utilization, p.SellerCollateralRatio, types.Decimals)
}

// BuyRatio is the collateral ratio of a long leg opened at utilization.
func (p Params) BuyRatio(utilization uint64) uint64 {
	return p.ramp(utilization, p.BuyerCollateralRatio, p.BuyerCollateralRatio/2)
}

// CrossBuffer is the usable fraction of a surplus at the current utilisation.
func (p Params) CrossBuffer(utilization uint64) uint64 {
	return p.ramp(utilization, p.CrossBufferRatio, 0)
}

var (
	decimals = new(big.Int).SetUint64(types.Decimals)
	maxU128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

func mulDiv(a, b, den *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

func mulDivUp(a, b, den *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func ratio(amount *big.Int, r uint64, roundUp bool) *big.Int {
	if roundUp {
		return mulDivUp(amount, new(big.Int).SetUint64(r), decimals)
	}
	return mulDiv(amount, new(big.Int).SetUint64(r), decimals)
}

func positive(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}

func minOf(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func maxOf(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// checked rejects amounts that do not fit an unsigned 128-bit slot.
func checked(what string, v *big.Int) error {
	if v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		return fmt.Errorf("%w: %s %s outside 128 bits", types.ErrArithmeticInconsistency, what, v)
	}
	return nil
}
