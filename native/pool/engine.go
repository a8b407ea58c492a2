package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaultrisk/core/events"
	"vaultrisk/core/pricing"
	"vaultrisk/core/state"
	"vaultrisk/core/types"
	nativecommon "vaultrisk/native/common"
	"vaultrisk/native/collateral"
	"vaultrisk/native/risk"
	"vaultrisk/observability"
)

var (
	errNilEngine   = errors.New("pool engine: not initialised")
	errNilManager  = errors.New("pool engine: state manager required")
	errBadVaults   = errors.New("pool engine: two distinct non-zero vaults required")
	errEmptyOrder  = errors.New("pool engine: request carries no mints or burns")
	errBadToken    = errors.New("pool engine: token index must be 0 or 1")
	errOpenPosBusy = errors.New("pool engine: shares are locked while positions are open")
)

// Config wires the two vaults of a pool and its risk settings.
type Config struct {
	// Vaults holds the token0 and token1 vault identities.
	Vaults [2]common.Address
	Models [2]collateral.InterestModel
	Risk   risk.Params
	// Settings are the base risk parameters; safe mode is raised per request
	// when the oracle is unhealthy.
	Settings types.RiskSettings
	Oracle   pricing.Guard
	// Protocol receives the protocol share of commissions. A zero address
	// burns it.
	Protocol common.Address
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Vaults[0] == (common.Address{}) || c.Vaults[1] == (common.Address{}) || c.Vaults[0] == c.Vaults[1] {
		return errBadVaults
	}
	for _, model := range c.Models {
		if err := model.Validate(); err != nil {
			return err
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if _, err := types.NewRiskParameters(c.Settings); err != nil {
		return err
	}
	return nil
}

// Engine orchestrates requests against the two vaults of a pool. Every
// request runs under the engine lock through one state journal and is
// committed whole or not at all.
type Engine struct {
	mu         sync.Mutex
	manager    *state.Manager
	cfg        Config
	calc       *risk.Calculator
	liquidator *risk.Liquidator
	amounts    risk.LiquidityAmounts
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    *observability.RiskEngineMetrics
	tracer     trace.Tracer
	clock      func() time.Time
}

// NewEngine builds an engine over manager. A nil amounts collaborator
// defaults to the chunk math of the configured tick spacing.
func NewEngine(manager *state.Manager, cfg Config, amounts risk.LiquidityAmounts) (*Engine, error) {
	if manager == nil {
		return nil, errNilManager
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if amounts == nil {
		amounts = pricing.ChunkMath{TickSpacing: cfg.Risk.TickSpacing}
	}
	calc, err := risk.NewCalculator(cfg.Risk, amounts)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Models {
		cfg.Models[i] = cfg.Models[i].Clone()
	}
	return &Engine{
		manager:    manager,
		cfg:        cfg,
		calc:       calc,
		liquidator: risk.NewLiquidator(calc),
		amounts:    amounts,
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		metrics:    observability.RiskEngine(),
		tracer:     otel.Tracer("vaultrisk/pool"),
		clock:      time.Now,
	}, nil
}

// SetEmitter configures where committed events are delivered.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the time source used for accrual epochs and oracle
// freshness.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// request is the per-call working set: one journal, one event buffer and a
// tracker per vault bound to both.
type request struct {
	id      string
	journal *state.Journal
	buffer  *events.Buffer
	vaults  [2]*collateral.Tracker
	now     uint64
}

func (e *Engine) begin() *request {
	r := &request{
		id:      uuid.NewString(),
		journal: e.manager.Begin(),
		buffer:  &events.Buffer{},
		now:     uint64(e.clock().Unix()),
	}
	for t := range r.vaults {
		tracker := collateral.NewTracker(e.cfg.Vaults[t], e.cfg.Models[t])
		tracker.SetState(r.journal)
		tracker.SetTimestamp(r.now)
		tracker.SetEmitter(r.buffer)
		tracker.SetLogger(e.logger.With(slog.String("vault", e.cfg.Vaults[t].Hex())))
		r.vaults[t] = tracker
	}
	return r
}

// finish commits the journal and delivers buffered events, or discards both
// when err is set or the context has been cancelled.
func (e *Engine) finish(ctx context.Context, r *request, err error) error {
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.journal.Discard()
		e.dropEvents(r)
		return err
	}
	if err := r.journal.Commit(); err != nil {
		e.dropEvents(r)
		return err
	}
	for _, evt := range r.buffer.Pending() {
		observability.Events().RecordEvent(evt.EventType())
	}
	r.buffer.Flush(e.emitter)
	for t, tracker := range r.vaults {
		e.recordVault(t, tracker)
	}
	return nil
}

func (e *Engine) dropEvents(r *request) {
	for _, evt := range r.buffer.Pending() {
		observability.Events().RecordDiscarded(evt.EventType())
	}
	r.buffer.Reset()
}

func (e *Engine) recordVault(token int, tracker *collateral.Tracker) {
	util, err := tracker.Utilization()
	if err != nil {
		return
	}
	assets, err := tracker.TotalAssets()
	if err != nil {
		return
	}
	e.metrics.RecordVault(e.cfg.Vaults[token].Hex(), util, assets)
}

// riskParameters packs the per-request parameter word. An unhealthy oracle
// raises safe mode.
func (e *Engine) riskParameters(status pricing.PriceStatus) (types.RiskParameters, error) {
	settings := e.cfg.Settings
	if status != pricing.PriceStatusOK && settings.SafeMode == 0 {
		settings.SafeMode = 1
	}
	return types.NewRiskParameters(settings)
}

func (e *Engine) guard(module string) error {
	if err := nativecommon.Guard(e.pauses, module); err != nil {
		e.metrics.SetPause(true)
		return fmt.Errorf("%s: %w", module, err)
	}
	return nil
}

func (e *Engine) observe(span trace.Span, operation string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, operation)
	}
	e.metrics.Observe(operation, e.clock().Sub(start), err)
}

// verifyOpen checks the caller's list of open positions against the stored
// fingerprint and returns them keyed by position key.
func verifyOpen(j *state.Journal, account common.Address, open []types.Position) (map[common.Hash]types.Position, types.PositionsHash, error) {
	stored, err := j.PositionsHash(account)
	if err != nil {
		return nil, types.PositionsHash{}, err
	}
	claimed, err := types.ComputePositionsHash(open)
	if err != nil {
		return nil, types.PositionsHash{}, err
	}
	if !claimed.Equal(stored) {
		return nil, types.PositionsHash{}, types.ErrPositionListMismatch
	}
	byKey := make(map[common.Hash]types.Position, len(open))
	for _, pos := range open {
		byKey[pos.Key()] = pos
	}
	return byKey, stored, nil
}

// accountView assembles the collateral view of account from the journal.
// Deposits are the asset value of its shares; premia default to zero for
// positions the caller reports none for.
func accountView(r *request, account common.Address, open []types.Position, premia map[common.Hash][]types.LeftRightSigned) (risk.Account, error) {
	var view risk.Account
	for t, tracker := range r.vaults {
		assets, err := tracker.AssetsOf(account)
		if err != nil {
			return risk.Account{}, err
		}
		view.Balances[t] = assets
	}
	view.Positions = make([]risk.OpenPosition, 0, len(open))
	for _, pos := range open {
		key := pos.Key()
		balance, err := r.journal.PositionBalance(account, key)
		if err != nil {
			return risk.Account{}, err
		}
		if balance.IsZero() {
			return risk.Account{}, fmt.Errorf("%w: %s", types.ErrPositionNotOpen, key.Hex())
		}
		view.Positions = append(view.Positions, risk.OpenPosition{
			Key:      key,
			Position: pos,
			Balance:  balance,
			Premia:   premia[key],
		})
	}
	return view, nil
}

func utilizations(r *request) ([2]uint64, error) {
	var out [2]uint64
	for t, tracker := range r.vaults {
		u, err := tracker.Utilization()
		if err != nil {
			return out, err
		}
		out[t] = u
	}
	return out, nil
}

// ammDeltas returns the vault movement of each token when the position is
// opened: short legs lend their moved amount to the AMM and long legs take
// it back.
func (e *Engine) ammDeltas(pos types.Position, size *big.Int) ([2]*big.Int, error) {
	deltas := [2]*big.Int{new(big.Int), new(big.Int)}
	for _, leg := range pos.Legs {
		a0, a1, err := e.amounts.AmountsMoved(leg, size)
		if err != nil {
			return deltas, err
		}
		moved := a0
		if leg.TokenType == types.Token1 {
			moved = a1
		}
		if leg.IsLong {
			deltas[leg.TokenType].Sub(deltas[leg.TokenType], moved)
		} else {
			deltas[leg.TokenType].Add(deltas[leg.TokenType], moved)
		}
	}
	return deltas, nil
}

// notional is the absolute amount each token moves when the position opens.
func (e *Engine) notional(pos types.Position, size *big.Int) ([2]*big.Int, error) {
	out := [2]*big.Int{new(big.Int), new(big.Int)}
	for _, leg := range pos.Legs {
		a0, a1, err := e.amounts.AmountsMoved(leg, size)
		if err != nil {
			return out, err
		}
		if leg.TokenType == types.Token0 {
			out[0].Add(out[0], a0)
		} else {
			out[1].Add(out[1], a1)
		}
	}
	return out, nil
}

// Initialize seeds both vaults. Vaults already seeded are left untouched.
func (e *Engine) Initialize(ctx context.Context) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	var err error
	for _, tracker := range r.vaults {
		if initErr := tracker.Initialize(); initErr != nil && !errors.Is(initErr, collateral.ErrVaultInitialized) {
			err = initErr
			break
		}
	}
	if err == nil {
		e.logger.InfoContext(ctx, "pool vaults initialised",
			slog.String("token0", e.cfg.Vaults[0].Hex()),
			slog.String("token1", e.cfg.Vaults[1].Hex()))
	}
	return e.finish(ctx, r, err)
}
