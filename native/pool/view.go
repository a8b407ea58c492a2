package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/types"
)

// VaultSnapshot is the persisted state of one vault. Interest is not accrued.
type VaultSnapshot struct {
	Vault       common.Address
	Market      types.MarketState
	Deposited   *big.Int
	InAMM       *big.Int
	TotalAssets *big.Int
	TotalSupply *big.Int
	Utilization uint64
}

// AccountSnapshot is an account's persisted position in both vaults.
type AccountSnapshot struct {
	Account    common.Address
	Shares     [2]*big.Int
	Assets     [2]*big.Int
	NetBorrows [2]*big.Int
	Positions  types.PositionsHash
	Open       []common.Hash
}

// Vaults reads both vaults without committing anything.
func (e *Engine) Vaults(ctx context.Context) ([2]VaultSnapshot, error) {
	var out [2]VaultSnapshot
	if e == nil {
		return out, errNilEngine
	}
	_, span := e.tracer.Start(ctx, "pool.vaults")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	defer r.journal.Discard()
	for t, tracker := range r.vaults {
		vault := e.cfg.Vaults[t]
		market, err := r.journal.MarketState(vault)
		if err != nil {
			return out, err
		}
		deposited, inAMM, err := tracker.Totals()
		if err != nil {
			return out, err
		}
		total, err := tracker.TotalAssets()
		if err != nil {
			return out, err
		}
		supply, err := r.journal.TotalSupply(vault)
		if err != nil {
			return out, err
		}
		util, err := tracker.Utilization()
		if err != nil {
			return out, err
		}
		out[t] = VaultSnapshot{
			Vault:       vault,
			Market:      market,
			Deposited:   deposited,
			InAMM:       inAMM,
			TotalAssets: total,
			TotalSupply: supply,
			Utilization: util,
		}
	}
	return out, nil
}

// Account reads the account's shares, their asset value, its borrowed
// notional and its open position index.
func (e *Engine) Account(ctx context.Context, account common.Address) (AccountSnapshot, error) {
	out := AccountSnapshot{Account: account}
	if e == nil {
		return out, errNilEngine
	}
	_, span := e.tracer.Start(ctx, "pool.account")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.begin()
	defer r.journal.Discard()
	for t, tracker := range r.vaults {
		shares, err := r.journal.BalanceOf(e.cfg.Vaults[t], account)
		if err != nil {
			return out, err
		}
		assets, err := tracker.AssetsOf(account)
		if err != nil {
			return out, err
		}
		borrows, err := tracker.NetBorrows(account)
		if err != nil {
			return out, err
		}
		out.Shares[t], out.Assets[t], out.NetBorrows[t] = shares, assets, borrows
	}
	hash, err := r.journal.PositionsHash(account)
	if err != nil {
		return out, err
	}
	out.Positions = hash
	if out.Open, err = r.journal.OpenPositions(account); err != nil {
		return out, err
	}
	return out, nil
}
