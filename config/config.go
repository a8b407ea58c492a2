package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend  = "leveldb"
	DefaultDataDir  = "./vaultrisk-data"
	DefaultService  = "vaultrisk"
	DefaultEndpoint = "localhost:4318"
	DefaultListen   = "127.0.0.1:9464"
)

// Config holds the node configuration for one pool.
type Config struct {
	Pool      Pool      `toml:"pool" yaml:"pool"`
	Interest  Interest  `toml:"interest" yaml:"interest"`
	Risk      Risk      `toml:"risk" yaml:"risk"`
	Fees      Fees      `toml:"fees" yaml:"fees"`
	Limits    Limits    `toml:"limits" yaml:"limits"`
	Oracle    Oracle    `toml:"oracle" yaml:"oracle"`
	Storage   Storage   `toml:"storage" yaml:"storage"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	Pauses    Pauses    `toml:"pauses" yaml:"pauses"`
	Server    Server    `toml:"server" yaml:"server"`
}

// Default returns the production defaults. Vault addresses have no default.
func Default() *Config {
	return &Config{
		Interest: Interest{
			TargetUtilization:      6_667,
			CurveSteepnessWAD:      "4000000000000000000",
			AdjustmentSpeedPerYear: 50,
			InitialRateBPS:         400,
			MinRateBPS:             10,
			MaxRateBPS:             20_000,
		},
		Risk: Risk{
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
		},
		Fees: Fees{
			NotionalFee:   10,
			PremiumFee:    100,
			ProtocolSplit: 60,
			BuilderSplit:  30,
		},
		Limits: Limits{
			TickDeltaLiquidation: 513,
			MaxSpread:            20_000,
			MaxLegs:              32,
		},
		Oracle: Oracle{
			MaxTickDelta:  953,
			MaxAgeSeconds: 600,
		},
		Storage: Storage{Backend: DefaultBackend, Path: DefaultDataDir},
		Logging: Logging{Service: DefaultService, Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		Telemetry: Telemetry{
			Endpoint: DefaultEndpoint,
		},
		Server: Server{
			Listen:            DefaultListen,
			RequestsPerMinute: 600,
			Burst:             20,
		},
	}
}

// Load reads a TOML or YAML file, chosen by extension, over the defaults,
// normalises it and validates the result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("config path required")
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}

	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.Pool.Vault0 = strings.TrimSpace(cfg.Pool.Vault0)
	cfg.Pool.Vault1 = strings.TrimSpace(cfg.Pool.Vault1)
	cfg.Pool.Protocol = strings.TrimSpace(cfg.Pool.Protocol)
	cfg.Fees.Recipient = strings.TrimSpace(cfg.Fees.Recipient)
	cfg.Interest.CurveSteepnessWAD = strings.TrimSpace(cfg.Interest.CurveSteepnessWAD)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultBackend
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		cfg.Storage.Path = DefaultDataDir
	}

	cfg.Logging.Service = strings.TrimSpace(cfg.Logging.Service)
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = DefaultService
	}
	cfg.Logging.Env = strings.TrimSpace(cfg.Logging.Env)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)

	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = DefaultEndpoint
	}

	cfg.Server.Listen = strings.TrimSpace(cfg.Server.Listen)
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
}

// Write persists cfg to path in the format implied by its extension.
func Write(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is missing")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return toml.NewEncoder(f).Encode(cfg)
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported extension %q", ext)
	}
}
