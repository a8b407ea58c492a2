package config

import (
	"fmt"
	"net"

	"vaultrisk/core/types"
)

var (
	MaxMaxLegs       = uint64(127)
	MinOracleMaxAge  = uint64(1)
	supportedBackend = map[string]struct{}{"memory": {}, "leveldb": {}, "bolt": {}, "bbolt": {}}
	supportedLevel   = map[string]struct{}{"": {}, "debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
)

// ValidateConfig checks the sections that cannot be checked by the engine
// constructors and then derives the pool configuration, which validates the
// rest.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Fees.ProtocolSplit+cfg.Fees.BuilderSplit > types.SplitDenominator {
		return fmt.Errorf("fees: protocol_split + builder_split > %d", types.SplitDenominator)
	}
	if cfg.Limits.MaxLegs == 0 || cfg.Limits.MaxLegs > MaxMaxLegs {
		return fmt.Errorf("limits: max_legs must be in [1, %d]", MaxMaxLegs)
	}
	if cfg.Risk.TargetUtilization != cfg.Interest.TargetUtilization {
		return fmt.Errorf("risk: target_utilization differs from interest.target_utilization")
	}
	if cfg.Oracle.MaxTickDelta == 0 {
		return fmt.Errorf("oracle: max_tick_delta must be positive")
	}
	if cfg.Oracle.MaxAgeSeconds < MinOracleMaxAge {
		return fmt.Errorf("oracle: max_age_seconds too small")
	}
	if _, ok := supportedBackend[cfg.Storage.Backend]; !ok {
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage: path required for backend %q", cfg.Storage.Backend)
	}
	if _, ok := supportedLevel[cfg.Logging.Level]; !ok {
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if cfg.Server.RequestsPerMinute <= 0 || cfg.Server.Burst <= 0 {
		return fmt.Errorf("server: requests_per_minute and burst must be positive")
	}
	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		return err
	}
	if err := poolCfg.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}
