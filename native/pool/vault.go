package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
	nativecommon "vaultrisk/native/common"
	"vaultrisk/native/collateral"
	"vaultrisk/native/risk"
)

// WithdrawRequest redeems assets from one vault. Accounts holding positions
// must pass their open list and an oracle snapshot so solvency can be
// checked after the withdrawal.
type WithdrawRequest struct {
	Account  common.Address
	Token    uint8
	Assets   *big.Int
	Open     []types.Position
	Snapshot pricing.Snapshot
	Premia   map[common.Hash][]types.LeftRightSigned
}

func checkToken(token uint8) error {
	if token > types.Token1 {
		return errBadToken
	}
	return nil
}

// Deposit adds assets to the token vault and returns the shares minted.
func (e *Engine) Deposit(ctx context.Context, account common.Address, token uint8, assets *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.deposit",
		trace.WithAttributes(attribute.String("account", account.Hex()), attribute.Int("token", int(token))))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	var shares *big.Int
	err := e.guard(nativecommon.ModuleVault)
	if err == nil {
		err = checkToken(token)
	}
	if err == nil {
		shares, err = r.vaults[token].Deposit(account, assets)
	}
	err = e.finish(ctx, r, err)
	e.observe(span, "deposit", start, err)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "deposit committed",
		slog.String("account", account.Hex()),
		slog.Int("token", int(token)),
		slog.String("assets", assets.String()),
		slog.String("shares", shares.String()))
	return shares, nil
}

// Withdraw redeems assets and returns the shares burned. The account must
// remain solvent at both ticks of the snapshot when it holds positions.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (*big.Int, error) {
	if e == nil {
		return nil, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.withdraw",
		trace.WithAttributes(attribute.String("account", req.Account.Hex()), attribute.Int("token", int(req.Token))))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	shares, err := e.withdraw(r, req)
	err = e.finish(ctx, r, err)
	e.observe(span, "withdraw", start, err)
	if err != nil {
		return nil, err
	}
	return shares, nil
}

func (e *Engine) withdraw(r *request, req WithdrawRequest) (*big.Int, error) {
	if err := e.guard(nativecommon.ModuleVault); err != nil {
		return nil, err
	}
	if err := checkToken(req.Token); err != nil {
		return nil, err
	}
	_, hash, err := verifyOpen(r.journal, req.Account, req.Open)
	if err != nil {
		return nil, err
	}
	other := r.vaults[1-req.Token]
	if _, err := other.Accrue(req.Account, false); err != nil {
		return nil, err
	}
	shares, err := r.vaults[req.Token].Withdraw(req.Account, req.Assets)
	if err != nil {
		return nil, err
	}
	if hash.LegCount() == 0 {
		return shares, nil
	}
	if err := req.Snapshot.Validate(); err != nil {
		return nil, err
	}
	if err := e.requireSolvent(r, req.Account, req.Open, req.Premia, req.Snapshot); err != nil {
		return nil, err
	}
	return shares, nil
}

func (e *Engine) requireSolvent(r *request, account common.Address, open []types.Position, premia map[common.Hash][]types.LeftRightSigned, snapshot pricing.Snapshot) error {
	utils, err := utilizations(r)
	if err != nil {
		return err
	}
	view, err := accountView(r, account, open, premia)
	if err != nil {
		return err
	}
	solvent, err := e.calc.IsSolvent(view, snapshot.Ticks(), utils)
	if err != nil {
		return err
	}
	if !solvent {
		return types.ErrAccountInsolvent
	}
	return nil
}

// Transfer moves vault shares between accounts. Senders with open positions
// cannot transfer since their shares back those positions.
func (e *Engine) Transfer(ctx context.Context, token uint8, from, to common.Address, shares *big.Int) error {
	if e == nil {
		return errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.transfer",
		trace.WithAttributes(attribute.String("from", from.Hex()), attribute.String("to", to.Hex())))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	err := e.transfer(r, token, from, to, shares)
	err = e.finish(ctx, r, err)
	e.observe(span, "transfer", start, err)
	return err
}

func (e *Engine) transfer(r *request, token uint8, from, to common.Address, shares *big.Int) error {
	if err := e.guard(nativecommon.ModuleVault); err != nil {
		return err
	}
	if err := checkToken(token); err != nil {
		return err
	}
	if shares == nil || shares.Sign() <= 0 {
		return collateral.ErrInvalidAmount
	}
	hash, err := r.journal.PositionsHash(from)
	if err != nil {
		return err
	}
	if hash.LegCount() > 0 {
		return errOpenPosBusy
	}
	return r.journal.Transfer(e.cfg.Vaults[token], from, to, shares)
}

// Accrue settles interest for account in both vaults and commits the result.
func (e *Engine) Accrue(ctx context.Context, account common.Address) ([2]collateral.AccrualResult, error) {
	var out [2]collateral.AccrualResult
	if e == nil {
		return out, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, "pool.accrue", trace.WithAttributes(attribute.String("account", account.Hex())))
	defer span.End()
	start := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	var err error
	for t, tracker := range r.vaults {
		if out[t], err = tracker.Accrue(account, false); err != nil {
			break
		}
	}
	err = e.finish(ctx, r, err)
	e.observe(span, "accrue", start, err)
	return out, err
}

// RequiredCollateral reports the account's requirement at tick with interest
// accrued to now. Nothing is committed.
func (e *Engine) RequiredCollateral(ctx context.Context, account common.Address, open []types.Position, premia map[common.Hash][]types.LeftRightSigned, tick int32) (risk.Requirement, error) {
	if e == nil {
		return risk.Requirement{}, errNilEngine
	}
	_, span := e.tracer.Start(ctx, "pool.required_collateral")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	defer r.journal.Discard()
	view, utils, err := e.preview(r, account, open, premia)
	if err != nil {
		span.RecordError(err)
		return risk.Requirement{}, err
	}
	return e.calc.RequiredCollateral(view, tick, utils)
}

// IsSolvent reports whether the account is solvent at both ticks of
// snapshot with interest accrued to now. Nothing is committed.
func (e *Engine) IsSolvent(ctx context.Context, account common.Address, open []types.Position, premia map[common.Hash][]types.LeftRightSigned, snapshot pricing.Snapshot) (bool, error) {
	if e == nil {
		return false, errNilEngine
	}
	_, span := e.tracer.Start(ctx, "pool.is_solvent")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	defer r.journal.Discard()
	if err := snapshot.Validate(); err != nil {
		return false, err
	}
	view, utils, err := e.preview(r, account, open, premia)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return e.calc.IsSolvent(view, snapshot.Ticks(), utils)
}

func (e *Engine) preview(r *request, account common.Address, open []types.Position, premia map[common.Hash][]types.LeftRightSigned) (risk.Account, [2]uint64, error) {
	if _, _, err := verifyOpen(r.journal, account, open); err != nil {
		return risk.Account{}, [2]uint64{}, err
	}
	for _, tracker := range r.vaults {
		if _, err := tracker.Accrue(account, false); err != nil {
			return risk.Account{}, [2]uint64{}, fmt.Errorf("accrue: %w", err)
		}
	}
	utils, err := utilizations(r)
	if err != nil {
		return risk.Account{}, [2]uint64{}, err
	}
	view, err := accountView(r, account, open, premia)
	return view, utils, err
}
