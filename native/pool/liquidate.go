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

var errSelfLiquidation = errors.New("pool engine: account cannot liquidate itself")

// LiquidateRequest closes every position of an insolvent account.
type LiquidateRequest struct {
	Liquidator common.Address
	Liquidatee common.Address
	// Open is the liquidatee's full list of open positions.
	Open     []types.Position
	Snapshot pricing.Snapshot
	Premia   map[common.Hash][]types.LeftRightSigned
}

// LiquidateResult reports a committed liquidation.
type LiquidateResult struct {
	ID   string
	Plan *risk.Plan
	// SharesTransferred and SharesMinted are the vault shares the liquidator
	// received per token, from the liquidatee and by dilution respectively.
	SharesTransferred [2]*big.Int
	SharesMinted      [2]*big.Int
}

// Liquidate plans and executes the liquidation of req.Liquidatee: positions
// are unwound, premium is settled net of the haircut and the bonus is paid
// to the liquidator.
func (e *Engine) Liquidate(ctx context.Context, req LiquidateRequest) (LiquidateResult, error) {
	if e == nil {
		return LiquidateResult{}, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.liquidate",
		trace.WithAttributes(
			attribute.String("liquidator", req.Liquidator.Hex()),
			attribute.String("liquidatee", req.Liquidatee.Hex()),
			attribute.Int("positions", len(req.Open)),
		))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	result, err := e.liquidate(ctx, r, req)
	err = e.finish(ctx, r, err)
	e.observe(span, "liquidate", start, err)
	if err != nil {
		e.logger.WarnContext(ctx, "liquidation rejected",
			slog.String("request", r.id),
			slog.String("liquidatee", req.Liquidatee.Hex()),
			slog.Any("error", err))
		return LiquidateResult{}, err
	}
	for t := range result.Plan.BonusMinted {
		e.metrics.RecordBonusMinted(e.cfg.Vaults[t].Hex(), result.Plan.BonusMinted[t])
	}
	span.SetAttributes(attribute.String("liquidation.id", result.ID))
	e.logger.InfoContext(ctx, "liquidation committed",
		slog.String("request", r.id),
		slog.String("liquidator", req.Liquidator.Hex()),
		slog.String("liquidatee", req.Liquidatee.Hex()),
		slog.String("bonus0", result.Plan.Bonus[0].String()),
		slog.String("bonus1", result.Plan.Bonus[1].String()))
	return result, nil
}

func (e *Engine) liquidate(ctx context.Context, r *request, req LiquidateRequest) (LiquidateResult, error) {
	result := LiquidateResult{ID: r.id}
	if err := e.guard(nativecommon.ModuleLiquidation); err != nil {
		return result, err
	}
	if req.Liquidator == req.Liquidatee {
		return result, errSelfLiquidation
	}
	if len(req.Open) == 0 {
		return result, types.ErrNotLiquidatable
	}
	if _, _, err := verifyOpen(r.journal, req.Liquidatee, req.Open); err != nil {
		return result, err
	}
	params, err := e.riskParameters(pricing.PriceStatusOK)
	if err != nil {
		return result, err
	}

	for _, tracker := range r.vaults {
		if _, err := tracker.Accrue(req.Liquidatee, false); err != nil {
			return result, err
		}
	}
	utils, err := utilizations(r)
	if err != nil {
		return result, err
	}
	view, err := accountView(r, req.Liquidatee, req.Open, req.Premia)
	if err != nil {
		return result, err
	}
	plan, err := e.liquidator.Plan(risk.LiquidationInput{
		Account:      view,
		Snapshot:     req.Snapshot,
		Utilizations: utils,
		MaxTickDelta: params.TickDeltaLiquidation(),
	})
	if err != nil {
		return result, err
	}
	result.Plan = plan

	for _, open := range view.Positions {
		deltas, err := e.ammDeltas(open.Position, open.Balance.Size())
		if err != nil {
			return result, err
		}
		for t, tracker := range r.vaults {
			if err := tracker.MoveToAMM(req.Liquidatee, new(big.Int).Neg(deltas[t])); err != nil {
				return result, err
			}
		}
		if err := r.journal.DeletePositionBalance(req.Liquidatee, open.Key); err != nil {
			return result, err
		}
	}
	if err := r.journal.PutPositionsHash(req.Liquidatee, types.PositionsHash{}); err != nil {
		return result, err
	}
	if err := r.journal.PutOpenPositions(req.Liquidatee, nil); err != nil {
		return result, err
	}

	for t, tracker := range r.vaults {
		if debits := plan.DebitsPaid[t]; debits.Sign() > 0 {
			if err := tracker.SettlePremium(req.Liquidatee, new(big.Int).Neg(debits)); err != nil {
				return result, fmt.Errorf("settle debits token%d: %w", t, err)
			}
		}
		if err := tracker.SettlePremium(req.Liquidatee, plan.CreditsPaid[t]); err != nil {
			return result, fmt.Errorf("settle credits token%d: %w", t, err)
		}
		if err := tracker.RetainPremium(plan.Haircut[t]); err != nil {
			return result, err
		}
		moved, minted, err := tracker.SettleLiquidation(req.Liquidator, req.Liquidatee, plan.Bonus[t])
		if err != nil {
			return result, fmt.Errorf("pay bonus token%d: %w", t, err)
		}
		result.SharesTransferred[t], result.SharesMinted[t] = moved, minted
	}

	r.buffer.Emit(events.Liquidated{
		Liquidator: req.Liquidator,
		Liquidatee: req.Liquidatee,
		Bonus0:     plan.Bonus[0],
		Bonus1:     plan.Bonus[1],
		Minted0:    result.SharesMinted[0],
		Minted1:    result.SharesMinted[1],
		Haircut0:   plan.Haircut[0],
		Haircut1:   plan.Haircut[1],
		Positions:  len(view.Positions),
	})
	return result, ctx.Err()
}
