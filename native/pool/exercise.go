package pool

import (
	"context"
	"errors"
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
	"vaultrisk/native/risk"
)

var errSelfExercise = errors.New("pool engine: account cannot exercise its own position")

// ForceExerciseRequest closes one long position of Account on behalf of
// Exerciser, who pays the exercise cost.
type ForceExerciseRequest struct {
	Exerciser common.Address
	Account   common.Address
	// Open is the account's full list of open positions.
	Open     []types.Position
	Position common.Hash
	Snapshot pricing.Snapshot
	Premia   map[common.Hash][]types.LeftRightSigned
	// ExerciserOpen and ExerciserPremia describe the exerciser's own
	// positions; it must stay solvent after paying.
	ExerciserOpen   []types.Position
	ExerciserPremia map[common.Hash][]types.LeftRightSigned
}

// ForceExerciseResult reports a committed force exercise.
type ForceExerciseResult struct {
	ID    string
	Quote risk.ExerciseQuote
	// SharesPaid are the vault shares moved from exerciser to account.
	SharesPaid [2]*big.Int
}

// ForceExercise burns a long position held by another account. Its premium
// is settled as on a regular burn and the exerciser pays the owner the
// exercise cost.
func (e *Engine) ForceExercise(ctx context.Context, req ForceExerciseRequest) (ForceExerciseResult, error) {
	if e == nil {
		return ForceExerciseResult{}, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.force_exercise",
		trace.WithAttributes(
			attribute.String("exerciser", req.Exerciser.Hex()),
			attribute.String("account", req.Account.Hex()),
			attribute.String("position", req.Position.Hex()),
		))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	result, err := e.forceExercise(ctx, r, req)
	err = e.finish(ctx, r, err)
	e.observe(span, "force_exercise", start, err)
	if err != nil {
		e.logger.WarnContext(ctx, "force exercise rejected",
			slog.String("request", r.id),
			slog.String("account", req.Account.Hex()),
			slog.Any("error", err))
		return ForceExerciseResult{}, err
	}
	e.logger.InfoContext(ctx, "force exercise committed",
		slog.String("request", r.id),
		slog.String("exerciser", req.Exerciser.Hex()),
		slog.String("account", req.Account.Hex()),
		slog.Bool("inRange", result.Quote.InRange),
		slog.String("cost0", result.Quote.Total[0].String()),
		slog.String("cost1", result.Quote.Total[1].String()))
	return result, nil
}

func (e *Engine) forceExercise(ctx context.Context, r *request, req ForceExerciseRequest) (ForceExerciseResult, error) {
	result := ForceExerciseResult{ID: r.id}
	if err := e.guard(nativecommon.ModulePositions); err != nil {
		return result, err
	}
	if req.Exerciser == req.Account {
		return result, errSelfExercise
	}
	if err := req.Snapshot.Validate(); err != nil {
		return result, err
	}
	byKey, hash, err := verifyOpen(r.journal, req.Account, req.Open)
	if err != nil {
		return result, err
	}
	pos, ok := byKey[req.Position]
	if !ok {
		return result, fmt.Errorf("%w: %s", types.ErrPositionNotOpen, req.Position.Hex())
	}
	if _, _, err := verifyOpen(r.journal, req.Exerciser, req.ExerciserOpen); err != nil {
		return result, fmt.Errorf("exerciser: %w", err)
	}
	params, err := e.riskParameters(e.cfg.Oracle.Classify(req.Snapshot, r.now))
	if err != nil {
		return result, err
	}

	for _, tracker := range r.vaults {
		for _, account := range []common.Address{req.Account, req.Exerciser} {
			if _, err := tracker.Accrue(account, false); err != nil {
				return result, err
			}
		}
	}
	target, err := accountView(r, req.Account, []types.Position{pos}, req.Premia)
	if err != nil {
		return result, err
	}
	result.Quote, err = e.calc.ExerciseCost(target.Positions[0], req.Snapshot.CurrentTick, req.Snapshot.TWAPTick)
	if err != nil {
		return result, err
	}

	if err := e.burn(r, req.Account, req.Position, pos, req.Premia[req.Position], params); err != nil {
		return result, err
	}
	if hash, err = hash.Remove(req.Position, len(pos.Legs)); err != nil {
		return result, err
	}
	index := make([]common.Hash, 0, len(req.Open))
	for _, open := range req.Open {
		if key := open.Key(); key != req.Position {
			index = append(index, key)
		}
	}
	if err := r.journal.PutPositionsHash(req.Account, hash); err != nil {
		return result, err
	}
	if err := r.journal.PutOpenPositions(req.Account, index); err != nil {
		return result, err
	}

	for t, tracker := range r.vaults {
		shares, err := tracker.TransferAssets(req.Exerciser, req.Account, result.Quote.Total[t])
		if err != nil {
			return result, fmt.Errorf("pay exercise cost token%d: %w", t, err)
		}
		result.SharesPaid[t] = shares
	}

	utils, err := utilizations(r)
	if err != nil {
		return result, err
	}
	exerciser, err := accountView(r, req.Exerciser, req.ExerciserOpen, req.ExerciserPremia)
	if err != nil {
		return result, err
	}
	solvent, err := e.calc.IsSolvent(exerciser, req.Snapshot.Ticks(), utils)
	if err != nil {
		return result, err
	}
	if !solvent {
		return result, fmt.Errorf("%w: exerciser after paying exercise cost", types.ErrAccountInsolvent)
	}

	r.buffer.Emit(events.ForceExercised{
		Exerciser:   req.Exerciser,
		Account:     req.Account,
		PositionKey: req.Position,
		InRange:     result.Quote.InRange,
		Cost0:       result.Quote.Total[0],
		Cost1:       result.Quote.Total[1],
	})
	return result, ctx.Err()
}

// SettleLongPremiumRequest makes a long leg pay the premium it owes without
// closing the position.
type SettleLongPremiumRequest struct {
	Account  common.Address
	Open     []types.Position
	Position common.Hash
	Leg      int
	// Premium is the leg's accumulated premium as reported by the AMM layer.
	// Negative slots are owed by the account.
	Premium types.LeftRightSigned
}

// SettleLongPremiumResult reports the premium paid per token.
type SettleLongPremiumResult struct {
	ID   string
	Paid [2]*big.Int
}

// SettleLongPremium charges the premium owed by one long leg to its owner's
// deposits so that sellers are paid while the position stays open.
func (e *Engine) SettleLongPremium(ctx context.Context, req SettleLongPremiumRequest) (SettleLongPremiumResult, error) {
	if e == nil {
		return SettleLongPremiumResult{}, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.settle_long_premium",
		trace.WithAttributes(
			attribute.String("account", req.Account.Hex()),
			attribute.String("position", req.Position.Hex()),
			attribute.Int("leg", req.Leg),
		))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	result, err := e.settleLongPremium(ctx, r, req)
	err = e.finish(ctx, r, err)
	e.observe(span, "settle_long_premium", start, err)
	if err != nil {
		e.logger.WarnContext(ctx, "long premium settlement rejected",
			slog.String("request", r.id),
			slog.String("account", req.Account.Hex()),
			slog.Any("error", err))
		return SettleLongPremiumResult{}, err
	}
	e.logger.InfoContext(ctx, "long premium settled",
		slog.String("request", r.id),
		slog.String("account", req.Account.Hex()),
		slog.String("paid0", result.Paid[0].String()),
		slog.String("paid1", result.Paid[1].String()))
	return result, nil
}

func (e *Engine) settleLongPremium(ctx context.Context, r *request, req SettleLongPremiumRequest) (SettleLongPremiumResult, error) {
	result := SettleLongPremiumResult{ID: r.id, Paid: [2]*big.Int{new(big.Int), new(big.Int)}}
	if err := e.guard(nativecommon.ModulePositions); err != nil {
		return result, err
	}
	byKey, _, err := verifyOpen(r.journal, req.Account, req.Open)
	if err != nil {
		return result, err
	}
	pos, ok := byKey[req.Position]
	if !ok {
		return result, fmt.Errorf("%w: %s", types.ErrPositionNotOpen, req.Position.Hex())
	}
	if req.Leg < 0 || req.Leg >= len(pos.Legs) || !pos.Legs[req.Leg].IsLong {
		return result, fmt.Errorf("%w: leg %d of %s is not a long leg", types.ErrInvalidPosition, req.Leg, req.Position.Hex())
	}

	for t, tracker := range r.vaults {
		if _, err := tracker.Accrue(req.Account, false); err != nil {
			return result, err
		}
		owed := req.Premium.Slot(uint8(t))
		if owed.Sign() >= 0 {
			continue
		}
		if err := tracker.SettlePremium(req.Account, owed); err != nil {
			return result, fmt.Errorf("settle long premium token%d: %w", t, err)
		}
		result.Paid[t].Neg(owed)
	}
	if result.Paid[0].Sign() == 0 && result.Paid[1].Sign() == 0 {
		return result, ctx.Err()
	}
	r.buffer.Emit(events.LongPremiumSettled{
		Account:     req.Account,
		PositionKey: req.Position,
		Leg:         req.Leg,
		Paid0:       result.Paid[0],
		Paid1:       result.Paid[1],
	})
	return result, ctx.Err()
}
