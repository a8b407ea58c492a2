package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "vaultrisk/native/common"
	"vaultrisk/native/collateral"
	"vaultrisk/native/risk"
)

const (
	testVault0   = "0x00000000000000000000000000000000000000a0"
	testVault1   = "0x00000000000000000000000000000000000000a1"
	testProtocol = "0x00000000000000000000000000000000000000f0"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "pool.toml", `
[pool]
Vault0 = "`+testVault0+`"
Vault1 = "`+testVault1+`"

[fees]
PremiumFee = 250

[storage]
Backend = " BOLT "
Path = "/var/lib/vaultrisk/pool.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fees.PremiumFee != 250 {
		t.Fatalf("premium fee = %d, want 250", cfg.Fees.PremiumFee)
	}
	if cfg.Fees.NotionalFee != 10 || cfg.Fees.ProtocolSplit != 60 {
		t.Fatalf("fee defaults lost: %+v", cfg.Fees)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Fatalf("backend = %q, want bolt", cfg.Storage.Backend)
	}
	if cfg.Logging.Service != DefaultService {
		t.Fatalf("service = %q", cfg.Logging.Service)
	}
	if cfg.Telemetry.Endpoint != DefaultEndpoint {
		t.Fatalf("endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Server.Listen != DefaultListen || cfg.Server.Burst != 20 {
		t.Fatalf("server defaults lost: %+v", cfg.Server)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "pool.yaml", `
pool:
  vault0: "`+testVault0+`"
  vault1: "`+testVault1+`"
  protocol: "`+testProtocol+`"
limits:
  max_legs: 8
oracle:
  max_tick_delta: 200
  max_age_seconds: 30
storage:
  backend: memory
  path: ""
pauses:
  liquidation: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxLegs != 8 {
		t.Fatalf("max legs = %d", cfg.Limits.MaxLegs)
	}
	if cfg.Storage.Path != "" {
		t.Fatalf("memory backend should keep an empty path, got %q", cfg.Storage.Path)
	}
	guard := cfg.OracleGuard()
	if guard.MaxTickDelta != 200 || guard.MaxAge != 30 {
		t.Fatalf("unexpected guard %+v", guard)
	}
	pauses := cfg.PauseSwitches()
	if !pauses.IsPaused(nativecommon.ModuleLiquidation) || pauses.IsPaused(nativecommon.ModuleVault) {
		t.Fatalf("unexpected pauses %v", pauses.Paused())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tomlPath := writeFile(t, "pool.toml", `
[pool]
Vault0 = "`+testVault0+`"
Vault1 = "`+testVault1+`"
Vault2 = "`+testProtocol+`"
`)
	if _, err := Load(tomlPath); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	yamlPath := writeFile(t, "pool.yml", `
pool:
  vault0: "`+testVault0+`"
  vault1: "`+testVault1+`"
  leverage: 10
`)
	if _, err := Load(yamlPath); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "pool.json", `{}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported extension") {
		t.Fatalf("expected extension error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Pool.Vault0 = testVault0
		cfg.Pool.Vault1 = testVault1
		return cfg
	}
	if err := ValidateConfig(valid()); err != nil {
		t.Fatalf("defaults with vaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"missing vault":     func(c *Config) { c.Pool.Vault1 = "" },
		"same vaults":       func(c *Config) { c.Pool.Vault1 = testVault0 },
		"bad recipient":     func(c *Config) { c.Fees.Recipient = "treasury.eth" },
		"splits over whole": func(c *Config) { c.Fees.ProtocolSplit, c.Fees.BuilderSplit = 70, 31 },
		"zero max legs":     func(c *Config) { c.Limits.MaxLegs = 0 },
		"too many legs":     func(c *Config) { c.Limits.MaxLegs = 128 },
		"target mismatch":   func(c *Config) { c.Interest.TargetUtilization = 5_000 },
		"bad steepness":     func(c *Config) { c.Interest.CurveSteepnessWAD = "four" },
		"flat steepness":    func(c *Config) { c.Interest.CurveSteepnessWAD = "1" },
		"unknown backend":   func(c *Config) { c.Storage.Backend = "rocksdb" },
		"zero tick delta":   func(c *Config) { c.Oracle.MaxTickDelta = 0 },
		"saturation":        func(c *Config) { c.Risk.SaturatedUtilization = 6_000 },
		"zero maintenance":  func(c *Config) { c.Risk.MaintenanceMarginRate = 0 },
		"log level":         func(c *Config) { c.Logging.Level = "loud" },
		"listen address":    func(c *Config) { c.Server.Listen = "9464" },
		"zero burst":        func(c *Config) { c.Server.Burst = 0 },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPoolConfigMatchesEngineDefaults(t *testing.T) {
	cfg := Default()
	cfg.Pool.Vault0 = testVault0
	cfg.Pool.Vault1 = testVault1
	cfg.Pool.Protocol = testProtocol
	cfg.Fees.Recipient = testProtocol

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if poolCfg.Vaults[0] != common.HexToAddress(testVault0) || poolCfg.Vaults[1] != common.HexToAddress(testVault1) {
		t.Fatalf("unexpected vaults %v", poolCfg.Vaults)
	}
	if poolCfg.Protocol != common.HexToAddress(testProtocol) {
		t.Fatalf("unexpected protocol %s", poolCfg.Protocol.Hex())
	}
	if poolCfg.Risk != risk.DefaultParams() {
		t.Fatalf("risk params %+v differ from defaults", poolCfg.Risk)
	}
	want := collateral.DefaultInterestModel()
	for i, model := range poolCfg.Models {
		if model.TargetUtilization != want.TargetUtilization ||
			model.InitialRateAtTarget != want.InitialRateAtTarget ||
			model.MinRateAtTarget != want.MinRateAtTarget ||
			model.MaxRateAtTarget != want.MaxRateAtTarget ||
			model.CurveSteepness.Cmp(want.CurveSteepness) != 0 ||
			model.AdjustmentSpeed.Cmp(want.AdjustmentSpeed) != 0 {
			t.Fatalf("model %d differs from the default curve", i)
		}
	}
	if poolCfg.Models[0].CurveSteepness == poolCfg.Models[1].CurveSteepness {
		t.Fatalf("vault models must not share big.Int pointers")
	}

	params, err := cfg.RiskParameters()
	if err != nil {
		t.Fatalf("risk parameters: %v", err)
	}
	if params.FeeRecipient() != common.HexToAddress(testProtocol) {
		t.Fatalf("fee recipient = %s", params.FeeRecipient().Hex())
	}
	if params.MaxLegs() != cfg.Limits.MaxLegs || params.PremiumFee() != cfg.Fees.PremiumFee {
		t.Fatalf("parameter word does not carry the configured limits")
	}
}

func TestWriteThenLoad(t *testing.T) {
	cfg := Default()
	cfg.Pool.Vault0 = testVault0
	cfg.Pool.Vault1 = testVault1
	cfg.Telemetry.Headers = "authorization=Bearer abc"
	for _, name := range []string{"out/pool.toml", "out/pool.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := Write(path, cfg); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if loaded.Pool != cfg.Pool || loaded.Telemetry != cfg.Telemetry {
			t.Fatalf("%s: loaded config differs: %+v", name, loaded)
		}
		headers := loaded.TelemetryConfig().Headers
		if headers["authorization"] != "Bearer abc" {
			t.Fatalf("%s: headers = %v", name, headers)
		}
	}
}
