package collateral

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/events"
	"vaultrisk/core/types"
)

// Split apportions a commission in shares.
type Split struct {
	Protocol *big.Int
	Builder  *big.Int
	Burned   *big.Int
}

// Total returns the sum of all parts.
func (s Split) Total() *big.Int {
	total := new(big.Int).Add(s.Protocol, s.Builder)
	return total.Add(total, s.Burned)
}

// SplitCommission divides shares between the protocol, the fee recipient and
// the burn. Without a fee recipient the whole commission is burned. The burn
// absorbs rounding so the parts always add up to shares.
func SplitCommission(shares *big.Int, params types.RiskParameters) Split {
	if shares == nil || shares.Sign() <= 0 {
		return Split{Protocol: new(big.Int), Builder: new(big.Int), Burned: new(big.Int)}
	}
	if params.FeeRecipient() == (common.Address{}) {
		return Split{Protocol: new(big.Int), Builder: new(big.Int), Burned: new(big.Int).Set(shares)}
	}
	den := new(big.Int).SetUint64(types.SplitDenominator)
	protocol := mulDiv(shares, new(big.Int).SetUint64(params.ProtocolSplit()), den)
	builder := mulDiv(shares, new(big.Int).SetUint64(params.BuilderSplit()), den)
	burned := new(big.Int).Sub(shares, protocol)
	burned.Sub(burned, builder)
	return Split{Protocol: protocol, Builder: builder, Burned: burned}
}

// Distribution is the outcome of DistributeCommission.
type Distribution struct {
	Assets *big.Int
	Shares *big.Int
	Split
}

// CommissionFor applies a DECIMALS-denominated fee to amount, rounding up.
func CommissionFor(amount *big.Int, fee uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || fee == 0 {
		return new(big.Int)
	}
	return mulDivUp(amount, new(big.Int).SetUint64(fee), decimals)
}

// DistributeCommission charges payer a commission worth assets. Shares are
// rounded up against the payer, then transferred to protocol and the fee
// recipient with the remainder burned. A zero protocol address burns the
// protocol share too.
func (t *Tracker) DistributeCommission(payer common.Address, assets *big.Int, params types.RiskParameters, protocol common.Address) (Distribution, error) {
	if assets == nil || assets.Sign() <= 0 {
		zero := SplitCommission(nil, params)
		return Distribution{Assets: new(big.Int), Shares: new(big.Int), Split: zero}, nil
	}
	shares, err := t.ConvertToSharesUp(assets)
	if err != nil {
		return Distribution{}, err
	}
	split := SplitCommission(shares, params)
	if protocol == (common.Address{}) && split.Protocol.Sign() > 0 {
		split.Burned = new(big.Int).Add(split.Burned, split.Protocol)
		split.Protocol = new(big.Int)
	}
	if split.Total().Cmp(shares) != 0 {
		return Distribution{}, fmt.Errorf("%w: commission split does not sum", types.ErrArithmeticInconsistency)
	}
	if err := t.state.Transfer(t.vault, payer, protocol, split.Protocol); err != nil {
		return Distribution{}, err
	}
	if err := t.state.Transfer(t.vault, payer, params.FeeRecipient(), split.Builder); err != nil {
		return Distribution{}, err
	}
	if err := t.state.Burn(t.vault, payer, split.Burned); err != nil {
		return Distribution{}, err
	}

	t.emitter.Emit(events.Commission{
		Vault:             t.vault,
		Payer:             payer,
		Assets:            assets,
		ProtocolRecipient: protocol,
		ProtocolShares:    split.Protocol,
		BuilderRecipient:  params.FeeRecipient(),
		BuilderShares:     split.Builder,
		BurnedShares:      split.Burned,
	})
	return Distribution{Assets: new(big.Int).Set(assets), Shares: shares, Split: split}, nil
}
