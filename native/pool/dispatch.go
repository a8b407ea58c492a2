package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vaultrisk/core/events"
	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
	nativecommon "vaultrisk/native/common"
	"vaultrisk/native/collateral"
	"vaultrisk/native/risk"
)

// Mint opens a position of the given size.
type Mint struct {
	Position types.Position
	Size     *big.Int
}

// DispatchRequest mints and burns positions for one account in a single
// all-or-nothing step.
type DispatchRequest struct {
	Account common.Address
	// Open is the caller's list of currently open positions. It must match
	// the stored fingerprint.
	Open  []types.Position
	Mints []Mint
	Burns []common.Hash
	// Snapshot is the oracle reading fixed for the whole request.
	Snapshot pricing.Snapshot
	// Premia holds the accumulated premium per leg of each open position as
	// reported by the AMM layer. Missing entries count as zero.
	Premia map[common.Hash][]types.LeftRightSigned
}

// DispatchResult reports a committed dispatch.
type DispatchResult struct {
	RequestID    string
	Minted       []common.Hash
	Burned       []common.Hash
	Status       pricing.PriceStatus
	Utilizations [2]uint64
	// Requirement is the account's collateral verdict at the current tick
	// after the request.
	Requirement risk.Requirement
}

// Dispatch validates the request against the stored position fingerprint,
// accrues interest, burns then mints, commissions the moved notional and
// requires the account to end solvent at both the current and the
// time-weighted tick.
func (e *Engine) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if e == nil {
		return DispatchResult{}, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.dispatch",
		trace.WithAttributes(
			attribute.String("account", req.Account.Hex()),
			attribute.Int("mints", len(req.Mints)),
			attribute.Int("burns", len(req.Burns)),
		))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	result, err := e.dispatch(ctx, r, req)
	err = e.finish(ctx, r, err)
	e.observe(span, "dispatch", start, err)
	if err != nil {
		e.logger.WarnContext(ctx, "dispatch rejected",
			slog.String("request", r.id),
			slog.String("account", req.Account.Hex()),
			slog.Any("error", err))
		return DispatchResult{}, err
	}
	e.logger.InfoContext(ctx, "dispatch committed",
		slog.String("request", r.id),
		slog.String("account", req.Account.Hex()),
		slog.Int("minted", len(result.Minted)),
		slog.Int("burned", len(result.Burned)))
	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, r *request, req DispatchRequest) (DispatchResult, error) {
	result := DispatchResult{RequestID: r.id}
	if len(req.Mints) == 0 && len(req.Burns) == 0 {
		return result, errEmptyOrder
	}
	if err := e.guard(nativecommon.ModulePositions); err != nil {
		return result, err
	}
	if err := req.Snapshot.Validate(); err != nil {
		return result, err
	}

	keys := make([]common.Hash, 0, len(req.Mints)+len(req.Burns))
	for _, m := range req.Mints {
		keys = append(keys, m.Position.Key())
	}
	keys = append(keys, req.Burns...)
	if err := types.CheckUniqueKeys(keys); err != nil {
		return result, err
	}
	byKey, hash, err := verifyOpen(r.journal, req.Account, req.Open)
	if err != nil {
		return result, err
	}
	burnLegs := 0
	for _, key := range req.Burns {
		pos, ok := byKey[key]
		if !ok {
			return result, fmt.Errorf("%w: %s", types.ErrPositionNotOpen, key.Hex())
		}
		burnLegs += len(pos.Legs)
	}
	mintLegs := 0
	for i, m := range req.Mints {
		if _, ok := byKey[keys[i]]; ok {
			return result, fmt.Errorf("%w: %s", types.ErrPositionAlreadyOpen, keys[i].Hex())
		}
		mintLegs += len(m.Position.Legs)
	}

	result.Status = e.cfg.Oracle.Classify(req.Snapshot, r.now)
	params, err := e.riskParameters(result.Status)
	if err != nil {
		return result, err
	}
	if len(req.Mints) > 0 && params.SafeMode() > 0 {
		return result, fmt.Errorf("%w: oracle %s, safe mode %d", types.ErrUnsafePrice, result.Status, params.SafeMode())
	}
	if legs := int(hash.LegCount()) + mintLegs - burnLegs; uint64(legs) > params.MaxLegs() {
		return result, fmt.Errorf("%w: %d open legs above %d", types.ErrInvalidPosition, legs, params.MaxLegs())
	}
	if err := r.journal.PutRiskParameters(params); err != nil {
		return result, err
	}

	for _, tracker := range r.vaults {
		if _, err := tracker.Accrue(req.Account, false); err != nil {
			return result, err
		}
	}

	for _, key := range req.Burns {
		pos := byKey[key]
		if err := e.burn(r, req.Account, key, pos, req.Premia[key], params); err != nil {
			return result, err
		}
		if hash, err = hash.Remove(key, len(pos.Legs)); err != nil {
			return result, err
		}
		delete(byKey, key)
		result.Burned = append(result.Burned, key)
	}

	for i, m := range req.Mints {
		if err := e.mint(r, req.Account, m, params); err != nil {
			return result, err
		}
		if hash, err = hash.Add(keys[i], len(m.Position.Legs)); err != nil {
			return result, err
		}
		result.Minted = append(result.Minted, keys[i])
	}

	// Opening utilisation is read once every movement of the request has
	// been applied.
	utils, err := utilizations(r)
	if err != nil {
		return result, err
	}
	result.Utilizations = utils
	for i, m := range req.Mints {
		balance, err := types.NewPositionBalance(m.Size, types.PositionSnapshot{
			Utilization0: utils[0],
			Utilization1: utils[1],
			Tick:         req.Snapshot.CurrentTick,
			TWAPTick:     req.Snapshot.TWAPTick,
			Timestamp:    r.now,
		})
		if err != nil {
			return result, err
		}
		if err := r.journal.PutPositionBalance(req.Account, keys[i], balance); err != nil {
			return result, err
		}
		r.buffer.Emit(events.PositionMinted{
			Account:     req.Account,
			PositionKey: keys[i],
			Size:        m.Size,
			Tick:        req.Snapshot.CurrentTick,
			Legs:        len(m.Position.Legs),
		})
	}

	remaining := make([]types.Position, 0, len(req.Open)+len(req.Mints))
	index := make([]common.Hash, 0, cap(remaining))
	for _, pos := range req.Open {
		if _, ok := byKey[pos.Key()]; ok {
			remaining = append(remaining, pos)
			index = append(index, pos.Key())
		}
	}
	for i, m := range req.Mints {
		remaining = append(remaining, m.Position)
		index = append(index, keys[i])
	}
	if err := r.journal.PutPositionsHash(req.Account, hash); err != nil {
		return result, err
	}
	if err := r.journal.PutOpenPositions(req.Account, index); err != nil {
		return result, err
	}

	view, err := accountView(r, req.Account, remaining, req.Premia)
	if err != nil {
		return result, err
	}
	for _, tick := range req.Snapshot.Ticks() {
		verdict, err := e.calc.RequiredCollateral(view, tick, utils)
		if err != nil {
			return result, err
		}
		if tick == req.Snapshot.CurrentTick {
			result.Requirement = verdict
		}
		if !verdict.Solvent {
			return result, fmt.Errorf("%w: at tick %d", types.ErrAccountInsolvent, tick)
		}
	}
	return result, ctx.Err()
}

// burn unwinds the position's AMM liquidity, settles its premium and charges
// commission on the premium realised.
func (e *Engine) burn(r *request, account common.Address, key common.Hash, pos types.Position, premia []types.LeftRightSigned, params types.RiskParameters) error {
	balance, err := r.journal.PositionBalance(account, key)
	if err != nil {
		return err
	}
	if balance.IsZero() {
		return fmt.Errorf("%w: %s has no stored balance", types.ErrPositionNotOpen, key.Hex())
	}
	size := balance.Size()
	deltas, err := e.ammDeltas(pos, size)
	if err != nil {
		return err
	}
	for t, tracker := range r.vaults {
		if err := tracker.MoveToAMM(account, new(big.Int).Neg(deltas[t])); err != nil {
			return err
		}
	}

	premium := [2]*big.Int{new(big.Int), new(big.Int)}
	for _, accrued := range premia {
		for t := uint8(0); t < 2; t++ {
			premium[t].Add(premium[t], accrued.Slot(t))
		}
	}
	for t, tracker := range r.vaults {
		if premium[t].Sign() == 0 {
			continue
		}
		if err := tracker.SettlePremium(account, premium[t]); err != nil {
			return err
		}
		fee := collateral.CommissionFor(new(big.Int).Abs(premium[t]), params.PremiumFee())
		if fee.Sign() == 0 {
			continue
		}
		if _, err := tracker.DistributeCommission(account, fee, params, e.cfg.Protocol); err != nil {
			return err
		}
	}

	if err := r.journal.DeletePositionBalance(account, key); err != nil {
		return err
	}
	r.buffer.Emit(events.PositionBurned{
		Account:     account,
		PositionKey: key,
		Size:        size,
		Premium0:    premium[0],
		Premium1:    premium[1],
	})
	return nil
}

// mint moves the position's liquidity into the AMM and charges commission on
// the notional moved.
func (e *Engine) mint(r *request, account common.Address, m Mint, params types.RiskParameters) error {
	if m.Size == nil || m.Size.Sign() <= 0 {
		return fmt.Errorf("%w: size must be positive", types.ErrInvalidPosition)
	}
	if err := m.Position.Validate(e.cfg.Risk.TickSpacing, params.MaxSpread()); err != nil {
		return err
	}
	deltas, err := e.ammDeltas(m.Position, m.Size)
	if err != nil {
		return err
	}
	for t, tracker := range r.vaults {
		if err := tracker.MoveToAMM(account, deltas[t]); err != nil {
			return err
		}
	}
	notional, err := e.notional(m.Position, m.Size)
	if err != nil {
		return err
	}
	for t, tracker := range r.vaults {
		fee := collateral.CommissionFor(notional[t], params.NotionalFee())
		if fee.Sign() == 0 {
			continue
		}
		if _, err := tracker.DistributeCommission(account, fee, params, e.cfg.Protocol); err != nil {
			return err
		}
	}
	return nil
}
