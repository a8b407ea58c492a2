package config

// Pool names the two vaults of the pool and the protocol treasury.
type Pool struct {
	Vault0   string `toml:"Vault0" yaml:"vault0"`
	Vault1   string `toml:"Vault1" yaml:"vault1"`
	Protocol string `toml:"Protocol" yaml:"protocol"`
}

// Interest configures the adaptive borrow curve shared by both vaults.
// Rates are annual basis points; steepness is a decimal WAD amount.
type Interest struct {
	TargetUtilization      uint64 `toml:"TargetUtilization" yaml:"target_utilization"`
	CurveSteepnessWAD      string `toml:"CurveSteepnessWAD" yaml:"curve_steepness_wad"`
	AdjustmentSpeedPerYear uint64 `toml:"AdjustmentSpeedPerYear" yaml:"adjustment_speed_per_year"`
	InitialRateBPS         uint64 `toml:"InitialRateBPS" yaml:"initial_rate_bps"`
	MinRateBPS             uint64 `toml:"MinRateBPS" yaml:"min_rate_bps"`
	MaxRateBPS             uint64 `toml:"MaxRateBPS" yaml:"max_rate_bps"`
}

// Risk holds the collateral ratios, in DECIMALS.
type Risk struct {
	SellerCollateralRatio uint64 `toml:"SellerCollateralRatio" yaml:"seller_collateral_ratio"`
	BuyerCollateralRatio  uint64 `toml:"BuyerCollateralRatio" yaml:"buyer_collateral_ratio"`
	TargetUtilization     uint64 `toml:"TargetUtilization" yaml:"target_utilization"`
	SaturatedUtilization  uint64 `toml:"SaturatedUtilization" yaml:"saturated_utilization"`
	CrossBufferRatio      uint64 `toml:"CrossBufferRatio" yaml:"cross_buffer_ratio"`
	CalendarDivisor       uint64 `toml:"CalendarDivisor" yaml:"calendar_divisor"`
	MaintenanceMarginRate uint64 `toml:"MaintenanceMarginRate" yaml:"maintenance_margin_rate"`
	// Exercise costs are in risk.ExerciseDecimals.
	ForceExerciseCost      uint64 `toml:"ForceExerciseCost" yaml:"force_exercise_cost"`
	OutOfRangeExerciseCost uint64 `toml:"OutOfRangeExerciseCost" yaml:"out_of_range_exercise_cost"`
	TickSpacing            int32  `toml:"TickSpacing" yaml:"tick_spacing"`
}

// Fees configures commissions and how they are split.
type Fees struct {
	NotionalFee   uint64 `toml:"NotionalFee" yaml:"notional_fee"`
	PremiumFee    uint64 `toml:"PremiumFee" yaml:"premium_fee"`
	ProtocolSplit uint64 `toml:"ProtocolSplit" yaml:"protocol_split"`
	BuilderSplit  uint64 `toml:"BuilderSplit" yaml:"builder_split"`
	Recipient     string `toml:"Recipient" yaml:"recipient"`
}

// Limits bounds what a single account may open.
type Limits struct {
	SafeMode             uint8  `toml:"SafeMode" yaml:"safe_mode"`
	TickDeltaLiquidation uint64 `toml:"TickDeltaLiquidation" yaml:"tick_delta_liquidation"`
	MaxSpread            uint64 `toml:"MaxSpread" yaml:"max_spread"`
	MaxLegs              uint64 `toml:"MaxLegs" yaml:"max_legs"`
}

// Oracle bounds how far and how old a price snapshot may be.
type Oracle struct {
	MaxTickDelta  uint64 `toml:"MaxTickDelta" yaml:"max_tick_delta"`
	MaxAgeSeconds uint64 `toml:"MaxAgeSeconds" yaml:"max_age_seconds"`
}

type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Logging names the service in every record. When File is set records are
// written to a rotated file instead of stderr.
type Logging struct {
	Service    string `toml:"Service" yaml:"service"`
	Env        string `toml:"Env" yaml:"env"`
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
}

// Server configures the read-only HTTP surface served by riskctl serve.
type Server struct {
	Listen            string  `toml:"Listen" yaml:"listen"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Telemetry configures the OTLP exporters. Headers uses the
// OTEL_EXPORTER_OTLP_HEADERS format (key=value,foo=bar).
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
}

// Pauses switches individual engine modules off.
type Pauses struct {
	Vault       bool `toml:"Vault" yaml:"vault"`
	Positions   bool `toml:"Positions" yaml:"positions"`
	Liquidation bool `toml:"Liquidation" yaml:"liquidation"`
}
