package collateral

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/events"
	"vaultrisk/core/types"
)

// AccrualResult reports what a call to Accrue changed.
type AccrualResult struct {
	BorrowIndex  *big.Int
	RateAtTarget uint64
	Elapsed      uint64
	InterestOwed *big.Int
	InterestPaid *big.Int
	SharesBurned *big.Int
	// Insolvent is set when the account could not pay the interest it owed.
	// Its snapshot is left untouched so the debt keeps compounding.
	Insolvent bool
}

// AccrueMarket compounds the vault's borrow index up to the current epoch and
// adds the interest earned on AMM assets to the unrealized pool.
func (t *Tracker) AccrueMarket() (types.MarketState, uint64, error) {
	ms, err := t.marketState()
	if err != nil {
		return types.MarketState{}, 0, err
	}
	epoch := types.EpochOf(t.now)
	if epoch < ms.Epoch() {
		return types.MarketState{}, 0, fmt.Errorf("%w: clock moved backwards", types.ErrArithmeticInconsistency)
	}
	elapsed := (epoch - ms.Epoch()) << 2
	if elapsed == 0 {
		return ms, 0, nil
	}

	utilization, err := t.Utilization()
	if err != nil {
		return types.MarketState{}, 0, err
	}
	rate, rateAtTarget := t.model.Rates(utilization, ms.RateAtTarget(), elapsed)

	oldIndex := ms.BorrowIndex()
	newIndex := growIndex(oldIndex, rate, elapsed)
	_, inAMM, err := t.Totals()
	if err != nil {
		return types.MarketState{}, 0, err
	}
	growth := mulDivUp(inAMM, new(big.Int).Sub(newIndex, oldIndex), oldIndex)
	unrealized := new(big.Int).Add(ms.UnrealizedInterest(), growth)

	next, err := types.NewMarketState(newIndex, epoch, rateAtTarget, unrealized)
	if err != nil {
		return types.MarketState{}, 0, err
	}
	if err := t.state.PutMarketState(t.vault, next); err != nil {
		return types.MarketState{}, 0, err
	}
	return next, elapsed, nil
}

// Owed computes netBorrows * (index - snapshot) / snapshot, rounded up.
func Owed(netBorrows, snapshot, index *big.Int) (*big.Int, error) {
	if netBorrows.Sign() <= 0 || snapshot.Sign() == 0 {
		return new(big.Int), nil
	}
	if index.Cmp(snapshot) < 0 {
		return nil, fmt.Errorf("%w: index %s below snapshot %s", types.ErrArithmeticInconsistency, index, snapshot)
	}
	return mulDivUp(netBorrows, new(big.Int).Sub(index, snapshot), snapshot), nil
}

// Accrue brings the vault and account current. Interest owed is paid by
// burning the account's shares; an account that cannot pay burns what it
// holds (nothing on deposits) and keeps its old snapshot.
func (t *Tracker) Accrue(account common.Address, isDeposit bool) (AccrualResult, error) {
	ms, elapsed, err := t.AccrueMarket()
	if err != nil {
		return AccrualResult{}, err
	}
	index := ms.BorrowIndex()
	result := AccrualResult{
		BorrowIndex:  index,
		RateAtTarget: ms.RateAtTarget(),
		Elapsed:      elapsed,
		InterestOwed: new(big.Int),
		InterestPaid: new(big.Int),
		SharesBurned: new(big.Int),
	}

	word, err := t.state.InterestState(t.vault, account)
	if err != nil {
		return AccrualResult{}, err
	}
	netBorrows, snapshot := word.Right(), word.Left()
	if netBorrows.Sign() <= 0 || snapshot.Sign() == 0 {
		if err := t.putSnapshot(account, netBorrows, index); err != nil {
			return AccrualResult{}, err
		}
		return result, nil
	}

	owed, err := Owed(netBorrows, snapshot, index)
	if err != nil {
		return AccrualResult{}, err
	}
	result.InterestOwed = owed
	if owed.Sign() == 0 {
		return result, t.putSnapshot(account, netBorrows, index)
	}

	shares, err := t.ConvertToSharesUp(owed)
	if err != nil {
		return AccrualResult{}, err
	}
	balance, err := t.state.BalanceOf(t.vault, account)
	if err != nil {
		return AccrualResult{}, err
	}

	paid := owed
	if shares.Cmp(balance) > 0 {
		result.Insolvent = true
		if isDeposit {
			shares, paid = new(big.Int), new(big.Int)
		} else {
			shares = balance
			if paid, err = t.ConvertToAssets(balance); err != nil {
				return AccrualResult{}, err
			}
		}
	}
	if err := t.state.Burn(t.vault, account, shares); err != nil {
		return AccrualResult{}, err
	}
	if err := t.realize(ms, paid); err != nil {
		return AccrualResult{}, err
	}
	if !result.Insolvent {
		if err := t.putSnapshot(account, netBorrows, index); err != nil {
			return AccrualResult{}, err
		}
	}
	result.InterestPaid = paid
	result.SharesBurned = shares

	t.emitter.Emit(events.Accrued{
		Vault:        t.vault,
		Account:      account,
		BorrowIndex:  index,
		RateAtTarget: result.RateAtTarget,
		Elapsed:      elapsed,
		InterestPaid: paid,
		SharesBurned: shares,
	})
	if result.Insolvent {
		t.emitter.Emit(events.InterestInsolvent{
			Vault:     t.vault,
			Account:   account,
			Owed:      owed,
			Paid:      paid,
			IsDeposit: isDeposit,
		})
		t.logger.Warn("collateral: account interest insolvent",
			slog.String("vault", t.vault.Hex()),
			slog.String("account", account.Hex()),
			slog.String("owed", owed.String()),
			slog.String("paid", paid.String()),
		)
	}
	return result, nil
}

// realize moves paid interest out of the unrealized pool into deposits so
// total assets are unchanged while the payer's shares disappear.
func (t *Tracker) realize(ms types.MarketState, paid *big.Int) error {
	if paid.Sign() == 0 {
		return nil
	}
	moved := minBig(paid, ms.UnrealizedInterest())
	next, err := ms.WithUnrealizedInterest(new(big.Int).Sub(ms.UnrealizedInterest(), moved))
	if err != nil {
		return err
	}
	if err := t.state.PutMarketState(t.vault, next); err != nil {
		return err
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return err
	}
	return t.putTotals(deposited.Add(deposited, moved), inAMM)
}

func (t *Tracker) putSnapshot(account common.Address, netBorrows, index *big.Int) error {
	word, err := types.NewLeftRightSigned(netBorrows, index)
	if err != nil {
		return err
	}
	return t.state.PutInterestState(t.vault, account, word)
}
