package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/types"
)

// BalanceOf returns the vault shares held by account.
func (j *Journal) BalanceOf(vault, account common.Address) (*big.Int, error) {
	return j.getAmount(accountKey(sharesPrefix, vault, account))
}

// TotalSupply returns the vault's outstanding shares, virtual shares
// included.
func (j *Journal) TotalSupply(vault common.Address) (*big.Int, error) {
	return j.getAmount(vaultKey(supplyPrefix, vault))
}

// Mint credits shares to an account and grows the supply.
func (j *Journal) Mint(vault, to common.Address, shares *big.Int) error {
	if shares.Sign() < 0 {
		return fmt.Errorf("%w: negative mint", types.ErrArithmeticInconsistency)
	}
	if shares.Sign() == 0 {
		return nil
	}
	supply, err := j.TotalSupply(vault)
	if err != nil {
		return err
	}
	balance, err := j.BalanceOf(vault, to)
	if err != nil {
		return err
	}
	if err := j.putAmount(vaultKey(supplyPrefix, vault), supply.Add(supply, shares)); err != nil {
		return err
	}
	return j.putAmount(accountKey(sharesPrefix, vault, to), balance.Add(balance, shares))
}

// Burn removes shares from an account and shrinks the supply.
func (j *Journal) Burn(vault, from common.Address, shares *big.Int) error {
	if shares.Sign() < 0 {
		return fmt.Errorf("%w: negative burn", types.ErrArithmeticInconsistency)
	}
	if shares.Sign() == 0 {
		return nil
	}
	balance, err := j.BalanceOf(vault, from)
	if err != nil {
		return err
	}
	if balance.Cmp(shares) < 0 {
		return fmt.Errorf("%w: burn %s of %s shares", types.ErrInsufficientBalance, shares, balance)
	}
	supply, err := j.TotalSupply(vault)
	if err != nil {
		return err
	}
	if supply.Cmp(shares) < 0 {
		return fmt.Errorf("%w: supply below burn", types.ErrArithmeticInconsistency)
	}
	if err := j.putAmount(vaultKey(supplyPrefix, vault), supply.Sub(supply, shares)); err != nil {
		return err
	}
	return j.putAmount(accountKey(sharesPrefix, vault, from), balance.Sub(balance, shares))
}

// Transfer moves shares between accounts without touching supply.
func (j *Journal) Transfer(vault, from, to common.Address, shares *big.Int) error {
	if shares.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", types.ErrArithmeticInconsistency)
	}
	if shares.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := j.BalanceOf(vault, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(shares) < 0 {
		return fmt.Errorf("%w: transfer %s of %s shares", types.ErrInsufficientBalance, shares, fromBalance)
	}
	toBalance, err := j.BalanceOf(vault, to)
	if err != nil {
		return err
	}
	if err := j.putAmount(accountKey(sharesPrefix, vault, from), fromBalance.Sub(fromBalance, shares)); err != nil {
		return err
	}
	return j.putAmount(accountKey(sharesPrefix, vault, to), toBalance.Add(toBalance, shares))
}

// SetTotalSupply seeds the supply, used when a vault is bootstrapped with
// virtual shares.
func (j *Journal) SetTotalSupply(vault common.Address, supply *big.Int) error {
	return j.putAmount(vaultKey(supplyPrefix, vault), supply)
}
