package collateral

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/events"
	"vaultrisk/core/types"
)

// ShareLedger mints, burns and moves vault shares.
type ShareLedger interface {
	BalanceOf(vault, account common.Address) (*big.Int, error)
	TotalSupply(vault common.Address) (*big.Int, error)
	Mint(vault, to common.Address, shares *big.Int) error
	Burn(vault, from common.Address, shares *big.Int) error
	Transfer(vault, from, to common.Address, shares *big.Int) error
	SetTotalSupply(vault common.Address, supply *big.Int) error
}

// State is the persistence surface a Tracker mutates.
type State interface {
	ShareLedger
	MarketState(vault common.Address) (types.MarketState, error)
	PutMarketState(vault common.Address, s types.MarketState) error
	VaultTotals(vault common.Address) (types.LeftRightUnsigned, error)
	PutVaultTotals(vault common.Address, totals types.LeftRightUnsigned) error
	InterestState(vault, account common.Address) (types.LeftRightSigned, error)
	PutInterestState(vault, account common.Address, s types.LeftRightSigned) error
}

// Tracker manages one collateral vault: share accounting, borrow-index
// compounding and per-account interest settlement.
type Tracker struct {
	vault   common.Address
	model   InterestModel
	state   State
	now     uint64
	emitter events.Emitter
	logger  *slog.Logger
}

// NewTracker binds a tracker to a vault address and interest model.
func NewTracker(vault common.Address, model InterestModel) *Tracker {
	return &Tracker{
		vault:   vault,
		model:   model.Clone(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetState wires the tracker to the persistence layer for the current request.
func (t *Tracker) SetState(state State) { t.state = state }

// SetTimestamp records the request timestamp in seconds.
func (t *Tracker) SetTimestamp(ts uint64) { t.now = ts }

func (t *Tracker) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	t.emitter = e
}

func (t *Tracker) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t.logger = logger
}

// Vault returns the vault address the tracker manages.
func (t *Tracker) Vault() common.Address { return t.vault }

// Initialize seeds a fresh vault with virtual assets and shares.
func (t *Tracker) Initialize() error {
	if t.state == nil {
		return ErrNilState
	}
	current, err := t.state.MarketState(t.vault)
	if err != nil {
		return err
	}
	if current.Initialized() {
		return ErrVaultInitialized
	}
	ms, err := types.NewMarketState(wad, types.EpochOf(t.now), t.model.InitialRateAtTarget, nil)
	if err != nil {
		return err
	}
	if err := t.state.PutMarketState(t.vault, ms); err != nil {
		return err
	}
	totals, err := types.NewLeftRightUnsigned(virtualAssets, nil)
	if err != nil {
		return err
	}
	if err := t.state.PutVaultTotals(t.vault, totals); err != nil {
		return err
	}
	return t.state.SetTotalSupply(t.vault, virtualShares)
}

func (t *Tracker) marketState() (types.MarketState, error) {
	if t.state == nil {
		return types.MarketState{}, ErrNilState
	}
	ms, err := t.state.MarketState(t.vault)
	if err != nil {
		return types.MarketState{}, err
	}
	if !ms.Initialized() {
		return types.MarketState{}, ErrVaultNotInitialized
	}
	return ms, nil
}

// Totals returns deposited assets and assets lent to the AMM.
func (t *Tracker) Totals() (*big.Int, *big.Int, error) {
	totals, err := t.state.VaultTotals(t.vault)
	if err != nil {
		return nil, nil, err
	}
	return totals.Right(), totals.Left(), nil
}

func (t *Tracker) putTotals(deposited, inAMM *big.Int) error {
	if deposited.Sign() < 0 || inAMM.Sign() < 0 {
		return fmt.Errorf("%w: negative vault totals", types.ErrArithmeticInconsistency)
	}
	totals, err := types.NewLeftRightUnsigned(deposited, inAMM)
	if err != nil {
		return err
	}
	return t.state.PutVaultTotals(t.vault, totals)
}

// TotalAssets is deposited + inAMM + unrealized interest.
func (t *Tracker) TotalAssets() (*big.Int, error) {
	ms, err := t.marketState()
	if err != nil {
		return nil, err
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(deposited, inAMM)
	return total.Add(total, ms.UnrealizedInterest()), nil
}

// Utilization returns ceil(inAMM * DECIMALS / totalAssets).
func (t *Tracker) Utilization() (uint64, error) {
	total, err := t.TotalAssets()
	if err != nil {
		return 0, err
	}
	_, inAMM, err := t.Totals()
	if err != nil {
		return 0, err
	}
	if total.Sign() == 0 {
		return 0, nil
	}
	u := mulDivUp(inAMM, decimals, total)
	if u.Cmp(decimals) > 0 {
		return types.Decimals, nil
	}
	return u.Uint64(), nil
}

func (t *Tracker) convert(amount *big.Int, toShares, roundUp bool) (*big.Int, error) {
	total, err := t.TotalAssets()
	if err != nil {
		return nil, err
	}
	supply, err := t.state.TotalSupply(t.vault)
	if err != nil {
		return nil, err
	}
	num, den := supply, total
	if !toShares {
		num, den = total, supply
	}
	if den.Sign() == 0 {
		return nil, fmt.Errorf("%w: empty vault", types.ErrArithmeticInconsistency)
	}
	if roundUp {
		return mulDivUp(amount, num, den), nil
	}
	return mulDiv(amount, num, den), nil
}

// ConvertToShares rounds down.
func (t *Tracker) ConvertToShares(assets *big.Int) (*big.Int, error) {
	return t.convert(assets, true, false)
}

// ConvertToSharesUp rounds up; used whenever shares leave an account.
func (t *Tracker) ConvertToSharesUp(assets *big.Int) (*big.Int, error) {
	return t.convert(assets, true, true)
}

func (t *Tracker) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	return t.convert(shares, false, false)
}

// AssetsOf values an account's shares.
func (t *Tracker) AssetsOf(account common.Address) (*big.Int, error) {
	balance, err := t.state.BalanceOf(t.vault, account)
	if err != nil {
		return nil, err
	}
	return t.ConvertToAssets(balance)
}

// Deposit credits assets to account and mints shares, rounding down.
func (t *Tracker) Deposit(account common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assets.Cmp(maxDeposit) > 0 {
		return nil, fmt.Errorf("%w: deposit exceeds 104 bits", types.ErrEncodingOverflow)
	}
	if _, err := t.Accrue(account, true); err != nil {
		return nil, err
	}
	shares, err := t.ConvertToShares(assets)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return nil, err
	}
	if err := t.state.Mint(t.vault, account, shares); err != nil {
		return nil, err
	}
	if err := t.putTotals(deposited.Add(deposited, assets), inAMM); err != nil {
		return nil, err
	}
	return shares, nil
}

// Withdraw burns shares worth assets, rounding up, and releases the assets.
// At least one asset always stays deposited.
func (t *Tracker) Withdraw(account common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := t.Accrue(account, false); err != nil {
		return nil, err
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(deposited, assets)
	if remaining.Cmp(virtualAssets) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	shares, err := t.ConvertToSharesUp(assets)
	if err != nil {
		return nil, err
	}
	if err := t.state.Burn(t.vault, account, shares); err != nil {
		return nil, err
	}
	if err := t.putTotals(remaining, inAMM); err != nil {
		return nil, err
	}
	return shares, nil
}

// MoveToAMM shifts assets between the vault and the AMM on behalf of account.
// A positive delta lends assets out and grows the account's net borrows; a
// negative delta returns them. The account must have been accrued first.
func (t *Tracker) MoveToAMM(account common.Address, delta *big.Int) error {
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return err
	}
	deposited = new(big.Int).Sub(deposited, delta)
	inAMM = new(big.Int).Add(inAMM, delta)
	if deposited.Cmp(virtualAssets) < 0 {
		return ErrInsufficientLiquidity
	}
	if inAMM.Sign() < 0 {
		return fmt.Errorf("%w: more assets returned than lent", types.ErrArithmeticInconsistency)
	}
	if err := t.putTotals(deposited, inAMM); err != nil {
		return err
	}

	ms, err := t.marketState()
	if err != nil {
		return err
	}
	word, err := t.state.InterestState(t.vault, account)
	if err != nil {
		return err
	}
	netBorrows := new(big.Int).Add(word.Right(), delta)
	snapshot := word.Left()
	if snapshot.Sign() == 0 {
		snapshot = ms.BorrowIndex()
	}
	updated, err := types.NewLeftRightSigned(netBorrows, snapshot)
	if err != nil {
		return err
	}
	return t.state.PutInterestState(t.vault, account, updated)
}

// NetBorrows returns the account's outstanding borrowed notional.
func (t *Tracker) NetBorrows(account common.Address) (*big.Int, error) {
	word, err := t.state.InterestState(t.vault, account)
	if err != nil {
		return nil, err
	}
	return word.Right(), nil
}

// SettlePremium realises premium for account. Positive amounts are credited
// as newly minted shares; negative amounts are paid by burning shares.
func (t *Tracker) SettlePremium(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return err
	}
	if amount.Sign() > 0 {
		shares, err := t.ConvertToShares(amount)
		if err != nil {
			return err
		}
		if err := t.state.Mint(t.vault, account, shares); err != nil {
			return err
		}
		return t.putTotals(deposited.Add(deposited, amount), inAMM)
	}
	owed := new(big.Int).Neg(amount)
	shares, err := t.ConvertToSharesUp(owed)
	if err != nil {
		return err
	}
	if err := t.state.Burn(t.vault, account, shares); err != nil {
		return err
	}
	deposited.Sub(deposited, owed)
	if deposited.Cmp(virtualAssets) < 0 {
		return ErrInsufficientLiquidity
	}
	return t.putTotals(deposited, inAMM)
}

// TransferAssets pays assets from one account to another in shares, rounded
// up against the payer, and returns the shares moved.
func (t *Tracker) TransferAssets(from, to common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return new(big.Int), nil
	}
	shares, err := t.ConvertToSharesUp(assets)
	if err != nil {
		return nil, err
	}
	if err := t.state.Transfer(t.vault, from, to, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// RetainPremium keeps premium inside the vault without minting shares, so
// every holder benefits pro rata.
func (t *Tracker) RetainPremium(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	deposited, inAMM, err := t.Totals()
	if err != nil {
		return err
	}
	return t.putTotals(deposited.Add(deposited, amount), inAMM)
}

// SettleLiquidation pays bonus assets from liquidatee to liquidator. When the
// liquidatee's shares cannot cover the bonus, the remainder is minted to the
// liquidator, diluting every holder. It returns shares transferred and
// shares minted.
func (t *Tracker) SettleLiquidation(liquidator, liquidatee common.Address, bonus *big.Int) (*big.Int, *big.Int, error) {
	zero := new(big.Int)
	if bonus == nil || bonus.Sign() <= 0 {
		return zero, zero, nil
	}
	bonusShares, err := t.ConvertToShares(bonus)
	if err != nil {
		return nil, nil, err
	}
	balance, err := t.state.BalanceOf(t.vault, liquidatee)
	if err != nil {
		return nil, nil, err
	}
	if bonusShares.Cmp(balance) <= 0 {
		if err := t.state.Transfer(t.vault, liquidatee, liquidator, bonusShares); err != nil {
			return nil, nil, err
		}
		return bonusShares, zero, nil
	}

	total, err := t.TotalAssets()
	if err != nil {
		return nil, nil, err
	}
	supply, err := t.state.TotalSupply(t.vault)
	if err != nil {
		return nil, nil, err
	}
	if total.Cmp(bonus) <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}
	// (balance + m) * total / (supply + m) == bonus
	num := new(big.Int).Mul(bonus, supply)
	num.Sub(num, new(big.Int).Mul(balance, total))
	minted := mulDivUp(num, big.NewInt(1), new(big.Int).Sub(total, bonus))
	if err := t.state.Transfer(t.vault, liquidatee, liquidator, balance); err != nil {
		return nil, nil, err
	}
	if err := t.state.Mint(t.vault, liquidator, minted); err != nil {
		return nil, nil, err
	}
	t.logger.Warn("collateral: liquidation bonus diluted vault",
		slog.String("vault", t.vault.Hex()),
		slog.String("liquidatee", liquidatee.Hex()),
		slog.String("minted", minted.String()),
	)
	return balance, minted, nil
}
