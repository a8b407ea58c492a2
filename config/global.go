package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
	nativecommon "vaultrisk/native/common"
	"vaultrisk/native/collateral"
	"vaultrisk/native/pool"
	"vaultrisk/native/risk"
	"vaultrisk/observability/otel"
)

// InterestModel parses the configured borrow curve.
func (cfg *Config) InterestModel() (collateral.InterestModel, error) {
	steepness, err := parseUintAmount(cfg.Interest.CurveSteepnessWAD)
	if err != nil {
		return collateral.InterestModel{}, fmt.Errorf("invalid interest.CurveSteepnessWAD: %w", err)
	}
	return collateral.InterestModel{
		TargetUtilization:   cfg.Interest.TargetUtilization,
		CurveSteepness:      steepness,
		AdjustmentSpeed:     collateral.SpeedPerYear(cfg.Interest.AdjustmentSpeedPerYear),
		InitialRateAtTarget: collateral.AnnualRate(cfg.Interest.InitialRateBPS),
		MinRateAtTarget:     collateral.AnnualRate(cfg.Interest.MinRateBPS),
		MaxRateAtTarget:     collateral.AnnualRate(cfg.Interest.MaxRateBPS),
	}, nil
}

// RiskParams returns the collateral calculator parameters.
func (cfg *Config) RiskParams() risk.Params {
	return risk.Params{
		SellerCollateralRatio:  cfg.Risk.SellerCollateralRatio,
		BuyerCollateralRatio:   cfg.Risk.BuyerCollateralRatio,
		TargetUtilization:      cfg.Risk.TargetUtilization,
		SaturatedUtilization:   cfg.Risk.SaturatedUtilization,
		CrossBufferRatio:       cfg.Risk.CrossBufferRatio,
		CalendarDivisor:        cfg.Risk.CalendarDivisor,
		MaintenanceMarginRate:  cfg.Risk.MaintenanceMarginRate,
		ForceExerciseCost:      cfg.Risk.ForceExerciseCost,
		OutOfRangeExerciseCost: cfg.Risk.OutOfRangeExerciseCost,
		TickSpacing:            cfg.Risk.TickSpacing,
	}
}

// RiskSettings returns the base per-request parameter settings.
func (cfg *Config) RiskSettings() (types.RiskSettings, error) {
	recipient, err := parseAddress(cfg.Fees.Recipient, true)
	if err != nil {
		return types.RiskSettings{}, fmt.Errorf("invalid fees.Recipient: %w", err)
	}
	return types.RiskSettings{
		SafeMode:             cfg.Limits.SafeMode,
		NotionalFee:          cfg.Fees.NotionalFee,
		PremiumFee:           cfg.Fees.PremiumFee,
		ProtocolSplit:        cfg.Fees.ProtocolSplit,
		BuilderSplit:         cfg.Fees.BuilderSplit,
		TickDeltaLiquidation: cfg.Limits.TickDeltaLiquidation,
		MaxSpread:            cfg.Limits.MaxSpread,
		MaxLegs:              cfg.Limits.MaxLegs,
		FeeRecipient:         recipient,
	}, nil
}

// RiskParameters packs the base settings into the parameter word.
func (cfg *Config) RiskParameters() (types.RiskParameters, error) {
	settings, err := cfg.RiskSettings()
	if err != nil {
		return types.RiskParameters{}, err
	}
	return types.NewRiskParameters(settings)
}

func (cfg *Config) OracleGuard() pricing.Guard {
	return pricing.Guard{MaxTickDelta: cfg.Oracle.MaxTickDelta, MaxAge: cfg.Oracle.MaxAgeSeconds}
}

// PoolConfig assembles the engine configuration. Both vaults share the
// configured interest model.
func (cfg *Config) PoolConfig() (pool.Config, error) {
	var out pool.Config
	for i, raw := range []string{cfg.Pool.Vault0, cfg.Pool.Vault1} {
		addr, err := parseAddress(raw, false)
		if err != nil {
			return out, fmt.Errorf("invalid pool.Vault%d: %w", i, err)
		}
		out.Vaults[i] = addr
	}
	protocol, err := parseAddress(cfg.Pool.Protocol, true)
	if err != nil {
		return out, fmt.Errorf("invalid pool.Protocol: %w", err)
	}
	out.Protocol = protocol
	model, err := cfg.InterestModel()
	if err != nil {
		return out, err
	}
	out.Models = [2]collateral.InterestModel{model, model.Clone()}
	out.Risk = cfg.RiskParams()
	if out.Settings, err = cfg.RiskSettings(); err != nil {
		return out, err
	}
	out.Oracle = cfg.OracleGuard()
	return out, nil
}

// PauseSwitches returns the pause set described by the configuration.
func (cfg *Config) PauseSwitches() *nativecommon.Pauses {
	p := nativecommon.NewPauses()
	p.Set(nativecommon.ModuleVault, cfg.Pauses.Vault)
	p.Set(nativecommon.ModulePositions, cfg.Pauses.Positions)
	p.Set(nativecommon.ModuleLiquidation, cfg.Pauses.Liquidation)
	return p
}

// TelemetryConfig returns the exporter settings for the given service.
func (cfg *Config) TelemetryConfig() otel.Config {
	return otel.Config{
		ServiceName: cfg.Logging.Service,
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	}
}

func parseUintAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", raw)
	}
	return value, nil
}

func parseAddress(raw string, optional bool) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if optional {
			return common.Address{}, nil
		}
		return common.Address{}, fmt.Errorf("address is empty")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", raw)
	}
	return common.HexToAddress(raw), nil
}
