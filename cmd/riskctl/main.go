package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaultrisk/config"
	"vaultrisk/core/events"
	"vaultrisk/core/state"
	"vaultrisk/native/pool"
	"vaultrisk/observability/logging"
	telemetry "vaultrisk/observability/otel"
	"vaultrisk/storage"
)

const defaultConfig = "./riskctl.toml"

// Overridden in tests.
var riskctlNow = time.Now

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "decode":
		return runDecode(args[1:], stdout, stderr)
	case "params":
		return runParams(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(ctx, args[1:], stdout, stderr)
	case "deposit":
		return runDeposit(ctx, args[1:], stdout, stderr)
	case "accrue":
		return runAccrue(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: riskctl <command> [flags]

Commands:
  init     write a default configuration file
  decode   decode a packed 32-byte word
  params   print the risk parameter word derived from a configuration
  inspect  show vault totals and an account's collateral state
  deposit  deposit assets into a vault
  accrue   settle interest for an account in both vaults
  serve    serve health, metrics and read-only vault views over HTTP`
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

// node is an opened store with an engine over it.
type node struct {
	cfg      *config.Config
	db       storage.Database
	manager  *state.Manager
	engine   *pool.Engine
	logger   *slog.Logger
	logFile  io.Closer
	shutdown telemetry.ShutdownFunc
}

// openNode loads the configuration and opens the store behind an engine. An
// empty level uses the configured one.
func openNode(ctx context.Context, configPath, level string, stdout, stderr io.Writer) (*node, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	logOut := stderr
	var logFile io.WriteCloser
	if cfg.Logging.File != "" {
		if logFile, err = logging.FileWriter(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups); err != nil {
			return nil, err
		}
		logOut = logFile
	}
	logger := logging.Setup(logOut, cfg.Logging.Service, cfg.Logging.Env, logging.ParseLevel(level))

	telemetryCfg := cfg.TelemetryConfig()
	telemetryCfg.Attributes = map[string]string{
		"vaultrisk.vault0": cfg.Pool.Vault0,
		"vaultrisk.vault1": cfg.Pool.Vault1,
	}
	shutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		logger.Info("telemetry exporters started",
			slog.String("endpoint", telemetryCfg.Endpoint),
			logging.MaskFields("headers", telemetryCfg.Headers))
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		_ = shutdown(ctx)
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	n := &node{cfg: cfg, db: db, manager: state.NewManager(db), logger: logger, logFile: logFile, shutdown: shutdown}

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		n.Close(ctx)
		return nil, err
	}
	engine, err := pool.NewEngine(n.manager, poolCfg, nil)
	if err != nil {
		n.Close(ctx)
		return nil, err
	}
	engine.SetLogger(logger)
	engine.SetPauses(cfg.PauseSwitches())
	engine.SetEmitter(jsonEmitter{w: stdout})
	engine.SetClock(riskctlNow)
	if err := engine.Initialize(ctx); err != nil {
		n.Close(ctx)
		return nil, err
	}
	n.engine = engine
	logger.Debug("store opened",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("path", cfg.Storage.Path))
	return n, nil
}

func (n *node) Close(ctx context.Context) {
	if err := n.db.Close(); err != nil {
		n.logger.Warn("close store", slog.Any("error", err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := n.shutdown(shutdownCtx); err != nil {
		n.logger.Warn("telemetry shutdown", slog.Any("error", err))
	}
	if n.logFile != nil {
		_ = n.logFile.Close()
	}
}

// jsonEmitter prints committed events one per line.
type jsonEmitter struct {
	w io.Writer
}

func (e jsonEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if payload := evt.Event(); payload != nil {
		_ = json.NewEncoder(e.w).Encode(payload)
	}
}
