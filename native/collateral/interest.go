package collateral

import (
	"math/big"

	"vaultrisk/core/types"
)

const secondsPerYear = 31_536_000

// InterestModel describes the adaptive borrow curve. Rates are per-second WAD
// values; utilisation values are expressed in DECIMALS.
type InterestModel struct {
	// TargetUtilization is the utilisation the rate at target steers toward.
	TargetUtilization uint64
	// CurveSteepness scales the borrow rate above and below the target, in
	// WAD. A steepness of 1 WAD flattens the curve.
	CurveSteepness *big.Int
	// AdjustmentSpeed is the per-second WAD speed at which the rate at target
	// moves for a full unit of normalised error.
	AdjustmentSpeed     *big.Int
	InitialRateAtTarget uint64
	MinRateAtTarget     uint64
	MaxRateAtTarget     uint64
}

// DefaultInterestModel targets two thirds utilisation with a 4% starting APR.
func DefaultInterestModel() InterestModel {
	return InterestModel{
		TargetUtilization:   6_667,
		CurveSteepness:      new(big.Int).Mul(big.NewInt(4), wad),
		AdjustmentSpeed:     SpeedPerYear(50),
		InitialRateAtTarget: AnnualRate(400),
		MinRateAtTarget:     AnnualRate(10),
		MaxRateAtTarget:     AnnualRate(20_000),
	}
}

// AnnualRate converts an APR in basis points into a per-second WAD rate.
func AnnualRate(bps uint64) uint64 {
	rate := new(big.Int).Mul(wad, new(big.Int).SetUint64(bps))
	rate.Quo(rate, decimals)
	rate.Quo(rate, big.NewInt(secondsPerYear))
	return rate.Uint64()
}

// SpeedPerYear converts a yearly adjustment speed into the per-second WAD
// speed the model expects.
func SpeedPerYear(perYear uint64) *big.Int {
	speed := new(big.Int).Mul(wad, new(big.Int).SetUint64(perYear))
	return speed.Quo(speed, big.NewInt(secondsPerYear))
}

// Clone returns a deep copy of the model.
func (m InterestModel) Clone() InterestModel {
	clone := m
	if m.CurveSteepness != nil {
		clone.CurveSteepness = new(big.Int).Set(m.CurveSteepness)
	}
	if m.AdjustmentSpeed != nil {
		clone.AdjustmentSpeed = new(big.Int).Set(m.AdjustmentSpeed)
	}
	return clone
}

// Validate checks the model bounds.
func (m InterestModel) Validate() error {
	switch {
	case m.TargetUtilization == 0 || m.TargetUtilization >= types.Decimals:
		return errInvalidModel("target utilisation out of range")
	case m.CurveSteepness == nil || m.CurveSteepness.Cmp(wad) < 0:
		return errInvalidModel("curve steepness below 1")
	case m.AdjustmentSpeed == nil || m.AdjustmentSpeed.Sign() < 0:
		return errInvalidModel("negative adjustment speed")
	case m.MinRateAtTarget > m.MaxRateAtTarget:
		return errInvalidModel("min rate above max rate")
	case m.InitialRateAtTarget < m.MinRateAtTarget || m.InitialRateAtTarget > m.MaxRateAtTarget:
		return errInvalidModel("initial rate outside bounds")
	}
	return nil
}

// normalizedError maps utilisation onto [-1, 1] WAD around the target.
func (m InterestModel) normalizedError(utilization uint64) *big.Int {
	target := new(big.Int).SetUint64(m.TargetUtilization)
	diff := new(big.Int).Sub(new(big.Int).SetUint64(utilization), target)
	norm := target
	if utilization > m.TargetUtilization {
		norm = new(big.Int).Sub(decimals, target)
	}
	diff.Mul(diff, wad)
	return diff.Quo(diff, norm)
}

// Rates returns the borrow rate to compound with over elapsed seconds and the
// rate at target to persist afterwards.
func (m InterestModel) Rates(utilization uint64, rateAtTarget uint64, elapsed uint64) (uint64, uint64) {
	if utilization > types.Decimals {
		utilization = types.Decimals
	}
	errNorm := m.normalizedError(utilization)
	if rateAtTarget == 0 {
		return m.curve(m.InitialRateAtTarget, errNorm), m.InitialRateAtTarget
	}

	adaptation := new(big.Int).Mul(m.AdjustmentSpeed, errNorm)
	adaptation.Quo(adaptation, wad)
	adaptation.Mul(adaptation, new(big.Int).SetUint64(elapsed))
	lower := new(big.Int).Neg(new(big.Int).Rsh(wad, 1))
	if adaptation.Cmp(lower) < 0 {
		adaptation = lower
	}
	if adaptation.Cmp(wad) > 0 {
		adaptation = new(big.Int).Set(wad)
	}

	end := new(big.Int).Add(wad, adaptation)
	end.Mul(end, new(big.Int).SetUint64(rateAtTarget))
	end.Quo(end, wad)
	endRate := m.clamp(end)

	avg := (rateAtTarget + endRate) / 2
	return m.curve(avg, errNorm), endRate
}

func (m InterestModel) clamp(rate *big.Int) uint64 {
	if rate.Cmp(new(big.Int).SetUint64(m.MinRateAtTarget)) < 0 {
		return m.MinRateAtTarget
	}
	if rate.Cmp(new(big.Int).SetUint64(m.MaxRateAtTarget)) > 0 {
		return m.MaxRateAtTarget
	}
	return rate.Uint64()
}

// curve scales rateAtTarget by the steepness: 1/C at zero utilisation, C at
// full utilisation.
func (m InterestModel) curve(rateAtTarget uint64, errNorm *big.Int) uint64 {
	var coeff *big.Int
	if errNorm.Sign() < 0 {
		coeff = new(big.Int).Sub(wad, new(big.Int).Quo(new(big.Int).Mul(wad, wad), m.CurveSteepness))
	} else {
		coeff = new(big.Int).Sub(m.CurveSteepness, wad)
	}
	factor := new(big.Int).Mul(coeff, errNorm)
	factor.Quo(factor, wad)
	factor.Add(factor, wad)
	rate := factor.Mul(factor, new(big.Int).SetUint64(rateAtTarget))
	rate.Quo(rate, wad)
	if rate.Sign() <= 0 {
		return 0
	}
	return rate.Uint64()
}
