package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/config"
	"vaultrisk/core/types"
	"vaultrisk/gateway"
)

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init", stderr)
	path := fs.String("config", defaultConfig, "output path (.toml, .yaml or .yml)")
	vault0 := fs.String("vault0", "", "token0 vault address")
	vault1 := fs.String("vault1", "", "token1 vault address")
	backend := fs.String("backend", config.DefaultBackend, "storage backend (memory, leveldb, bolt)")
	dataDir := fs.String("data", config.DefaultDataDir, "storage path")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return printError(stderr, "%s already exists; pass --force to overwrite", *path)
		}
	}
	cfg := config.Default()
	cfg.Pool.Vault0 = *vault0
	cfg.Pool.Vault1 = *vault1
	cfg.Storage.Backend = *backend
	cfg.Storage.Path = *dataDir
	if err := config.ValidateConfig(cfg); err != nil {
		return printError(stderr, "%v", err)
	}
	if err := config.Write(*path, cfg); err != nil {
		return printError(stderr, "%v", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *path)
	return 0
}

func parseWord(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("word is empty")
	}
	b := common.FromHex(raw)
	if len(b) > types.WordSize {
		return nil, fmt.Errorf("word is %d bytes, at most %d allowed", len(b), types.WordSize)
	}
	return common.LeftPadBytes(b, types.WordSize), nil
}

func runDecode(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("decode", stderr)
	kind := fs.String("kind", "", "market, balance, params, signed, unsigned or hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return printError(stderr, "expected exactly one hex word")
	}
	word, err := parseWord(fs.Arg(0))
	if err != nil {
		return printError(stderr, "%v", err)
	}
	out, err := decodeWord(*kind, word)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, out)
}

func decodeWord(kind string, word []byte) (map[string]any, error) {
	switch strings.ToLower(kind) {
	case "market":
		s, err := types.MarketStateFromBytes(word)
		if err != nil {
			return nil, err
		}
		return marketJSON(s), nil
	case "balance":
		b, err := types.PositionBalanceFromBytes(word)
		if err != nil {
			return nil, err
		}
		snap := b.Snapshot()
		return map[string]any{
			"size":         b.Size().String(),
			"utilization0": snap.Utilization0,
			"utilization1": snap.Utilization1,
			"tick":         snap.Tick,
			"twapTick":     snap.TWAPTick,
			"timestamp":    snap.Timestamp,
		}, nil
	case "params":
		p, err := types.RiskParametersFromBytes(word)
		if err != nil {
			return nil, err
		}
		return paramsJSON(p), nil
	case "signed":
		v, err := types.LeftRightSignedFromBytes(word)
		if err != nil {
			return nil, err
		}
		return map[string]any{"right": v.Right().String(), "left": v.Left().String()}, nil
	case "unsigned":
		v, err := types.LeftRightUnsignedFromBytes(word)
		if err != nil {
			return nil, err
		}
		return map[string]any{"right": v.Right().String(), "left": v.Left().String()}, nil
	case "hash":
		h, err := types.PositionsHashFromBytes(word)
		if err != nil {
			return nil, err
		}
		return map[string]any{"legCount": h.LegCount()}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func marketJSON(s types.MarketState) map[string]any {
	return map[string]any{
		"borrowIndex":        s.BorrowIndex().String(),
		"epoch":              s.Epoch(),
		"rateAtTarget":       s.RateAtTarget(),
		"unrealizedInterest": s.UnrealizedInterest().String(),
	}
}

func paramsJSON(p types.RiskParameters) map[string]any {
	return map[string]any{
		"safeMode":             p.SafeMode(),
		"notionalFee":          p.NotionalFee(),
		"premiumFee":           p.PremiumFee(),
		"protocolSplit":        p.ProtocolSplit(),
		"builderSplit":         p.BuilderSplit(),
		"burnSplit":            p.BurnSplit(),
		"tickDeltaLiquidation": p.TickDeltaLiquidation(),
		"maxSpread":            p.MaxSpread(),
		"maxLegs":              p.MaxLegs(),
		"feeRecipient":         p.FeeRecipient().Hex(),
	}
}

func runParams(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("params", stderr)
	path := fs.String("config", defaultConfig, "configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	params, err := cfg.RiskParameters()
	if err != nil {
		return printError(stderr, "%v", err)
	}
	out := paramsJSON(params)
	word := params.Bytes32()
	out["word"] = common.Bytes2Hex(word[:])
	return printJSON(stdout, out)
}

type inspectView struct {
	Vaults  [2]gateway.VaultView `json:"vaults"`
	Account *gateway.AccountView `json:"account,omitempty"`
}

func runInspect(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("inspect", stderr)
	path := fs.String("config", defaultConfig, "configuration file")
	account := fs.String("account", "", "optional account address")
	level := fs.String("log-level", "", "log level (defaults to logging.level)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *account != "" && !common.IsHexAddress(*account) {
		return printError(stderr, "invalid --account %q", *account)
	}
	n, err := openNode(ctx, *path, *level, stdout, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer n.Close(ctx)

	var view inspectView
	vaults, err := n.engine.Vaults(ctx)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	for t := range vaults {
		view.Vaults[t] = gateway.NewVaultView(vaults[t])
	}
	if *account != "" {
		snap, err := n.engine.Account(ctx, common.HexToAddress(*account))
		if err != nil {
			return printError(stderr, "%v", err)
		}
		acct := gateway.NewAccountView(snap)
		view.Account = &acct
	}
	return printJSON(stdout, view)
}

func parseTokenArgs(token uint, account string) (uint8, common.Address, error) {
	if token > 1 {
		return 0, common.Address{}, fmt.Errorf("--token must be 0 or 1")
	}
	if !common.IsHexAddress(account) {
		return 0, common.Address{}, fmt.Errorf("invalid --account %q", account)
	}
	return uint8(token), common.HexToAddress(account), nil
}

func runDeposit(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("deposit", stderr)
	path := fs.String("config", defaultConfig, "configuration file")
	account := fs.String("account", "", "depositor address")
	token := fs.Uint("token", 0, "vault index (0 or 1)")
	amount := fs.String("assets", "", "assets to deposit, base-10")
	level := fs.String("log-level", "", "log level (defaults to logging.level)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tok, addr, err := parseTokenArgs(*token, *account)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	assets, ok := new(big.Int).SetString(strings.TrimSpace(*amount), 10)
	if !ok || assets.Sign() <= 0 {
		return printError(stderr, "--assets must be a positive integer")
	}
	n, err := openNode(ctx, *path, *level, stdout, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer n.Close(ctx)

	shares, err := n.engine.Deposit(ctx, addr, tok, assets)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	return printJSON(stdout, map[string]string{"shares": shares.String()})
}

type accrualView struct {
	Vault        string `json:"vault"`
	BorrowIndex  string `json:"borrowIndex"`
	RateAtTarget uint64 `json:"rateAtTarget"`
	Elapsed      uint64 `json:"elapsed"`
	InterestOwed string `json:"interestOwed"`
	InterestPaid string `json:"interestPaid"`
	SharesBurned string `json:"sharesBurned"`
	Insolvent    bool   `json:"insolvent"`
}

func runAccrue(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("accrue", stderr)
	path := fs.String("config", defaultConfig, "configuration file")
	account := fs.String("account", "", "account address")
	level := fs.String("log-level", "", "log level (defaults to logging.level)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !common.IsHexAddress(*account) {
		return printError(stderr, "invalid --account %q", *account)
	}
	n, err := openNode(ctx, *path, *level, stdout, stderr)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	defer n.Close(ctx)

	results, err := n.engine.Accrue(ctx, common.HexToAddress(*account))
	if err != nil {
		return printError(stderr, "%v", err)
	}
	vaults := n.engine.Config().Vaults
	out := make([]accrualView, 0, len(results))
	for t, res := range results {
		out = append(out, accrualView{
			Vault:        vaults[t].Hex(),
			BorrowIndex:  bigString(res.BorrowIndex),
			RateAtTarget: res.RateAtTarget,
			Elapsed:      res.Elapsed,
			InterestOwed: bigString(res.InterestOwed),
			InterestPaid: bigString(res.InterestPaid),
			SharesBurned: bigString(res.SharesBurned),
			Insolvent:    res.Insolvent,
		})
	}
	return printJSON(stdout, out)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
