package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/types"
)

const (
	// TypeAccrued is emitted whenever a vault index is compounded and an
	// account settles its interest.
	TypeAccrued = "risk.accrued"
	// TypeInterestInsolvent flags an account whose shares could not cover
	// the interest it owed.
	TypeInterestInsolvent = "risk.interest_insolvent"
	// TypeCommission records how a commission was split.
	TypeCommission     = "risk.commission"
	TypePositionMinted = "risk.position_minted"
	TypePositionBurned = "risk.position_burned"
	TypeLiquidated     = "risk.liquidated"
	// TypeForceExercised records a long position closed by another account.
	TypeForceExercised = "risk.force_exercised"
	// TypeLongPremiumSettled records premium a long leg paid without closing.
	TypeLongPremiumSettled = "risk.long_premium_settled"
)

// Accrued captures the result of a single accrual.
type Accrued struct {
	Vault        common.Address
	Account      common.Address
	BorrowIndex  *big.Int
	RateAtTarget uint64
	Elapsed      uint64
	InterestPaid *big.Int
	SharesBurned *big.Int
}

func (Accrued) EventType() string { return TypeAccrued }

func (e Accrued) Event() *types.Event {
	evt := types.NewEvent(TypeAccrued)
	setAddress(evt.Attributes, "vault", e.Vault)
	setAddress(evt.Attributes, "account", e.Account)
	setAmount(evt.Attributes, "borrowIndex", e.BorrowIndex)
	evt.Attributes["rateAtTarget"] = strconv.FormatUint(e.RateAtTarget, 10)
	evt.Attributes["elapsed"] = strconv.FormatUint(e.Elapsed, 10)
	setAmount(evt.Attributes, "interestPaid", e.InterestPaid)
	setAmount(evt.Attributes, "sharesBurned", e.SharesBurned)
	return evt
}

// InterestInsolvent records the shortfall of an account that could not pay.
type InterestInsolvent struct {
	Vault     common.Address
	Account   common.Address
	Owed      *big.Int
	Paid      *big.Int
	IsDeposit bool
}

func (InterestInsolvent) EventType() string { return TypeInterestInsolvent }

func (e InterestInsolvent) Event() *types.Event {
	evt := types.NewEvent(TypeInterestInsolvent)
	setAddress(evt.Attributes, "vault", e.Vault)
	setAddress(evt.Attributes, "account", e.Account)
	setAmount(evt.Attributes, "owed", e.Owed)
	setAmount(evt.Attributes, "paid", e.Paid)
	evt.Attributes["deposit"] = strconv.FormatBool(e.IsDeposit)
	return evt
}

// Commission reports each party's share of a commission, in vault shares.
type Commission struct {
	Vault             common.Address
	Payer             common.Address
	Assets            *big.Int
	ProtocolRecipient common.Address
	ProtocolShares    *big.Int
	BuilderRecipient  common.Address
	BuilderShares     *big.Int
	BurnedShares      *big.Int
}

func (Commission) EventType() string { return TypeCommission }

func (e Commission) Event() *types.Event {
	evt := types.NewEvent(TypeCommission)
	setAddress(evt.Attributes, "vault", e.Vault)
	setAddress(evt.Attributes, "payer", e.Payer)
	setAmount(evt.Attributes, "assets", e.Assets)
	setAddress(evt.Attributes, "protocol", e.ProtocolRecipient)
	setAmount(evt.Attributes, "protocolShares", e.ProtocolShares)
	setAddress(evt.Attributes, "builder", e.BuilderRecipient)
	setAmount(evt.Attributes, "builderShares", e.BuilderShares)
	setAmount(evt.Attributes, "burnedShares", e.BurnedShares)
	return evt
}

// PositionMinted is emitted once per opened position.
type PositionMinted struct {
	Account     common.Address
	PositionKey common.Hash
	Size        *big.Int
	Tick        int32
	Legs        int
}

func (PositionMinted) EventType() string { return TypePositionMinted }

func (e PositionMinted) Event() *types.Event {
	evt := types.NewEvent(TypePositionMinted)
	setAddress(evt.Attributes, "account", e.Account)
	evt.Attributes["position"] = e.PositionKey.Hex()
	setAmount(evt.Attributes, "size", e.Size)
	evt.Attributes["tick"] = strconv.FormatInt(int64(e.Tick), 10)
	evt.Attributes["legs"] = strconv.Itoa(e.Legs)
	return evt
}

// PositionBurned is emitted once per closed position with the premium
// realised in each token.
type PositionBurned struct {
	Account     common.Address
	PositionKey common.Hash
	Size        *big.Int
	Premium0    *big.Int
	Premium1    *big.Int
}

func (PositionBurned) EventType() string { return TypePositionBurned }

func (e PositionBurned) Event() *types.Event {
	evt := types.NewEvent(TypePositionBurned)
	setAddress(evt.Attributes, "account", e.Account)
	evt.Attributes["position"] = e.PositionKey.Hex()
	setAmount(evt.Attributes, "size", e.Size)
	setAmount(evt.Attributes, "premium0", e.Premium0)
	setAmount(evt.Attributes, "premium1", e.Premium1)
	return evt
}

// Liquidated summarises a completed liquidation.
type Liquidated struct {
	Liquidator common.Address
	Liquidatee common.Address
	Bonus0     *big.Int
	Bonus1     *big.Int
	Minted0    *big.Int
	Minted1    *big.Int
	Haircut0   *big.Int
	Haircut1   *big.Int
	Positions  int
}

func (Liquidated) EventType() string { return TypeLiquidated }

func (e Liquidated) Event() *types.Event {
	evt := types.NewEvent(TypeLiquidated)
	setAddress(evt.Attributes, "liquidator", e.Liquidator)
	setAddress(evt.Attributes, "liquidatee", e.Liquidatee)
	setAmount(evt.Attributes, "bonus0", e.Bonus0)
	setAmount(evt.Attributes, "bonus1", e.Bonus1)
	setAmount(evt.Attributes, "minted0", e.Minted0)
	setAmount(evt.Attributes, "minted1", e.Minted1)
	setAmount(evt.Attributes, "haircut0", e.Haircut0)
	setAmount(evt.Attributes, "haircut1", e.Haircut1)
	evt.Attributes["positions"] = strconv.Itoa(e.Positions)
	return evt
}

// ForceExercised reports a position closed by an exerciser and the cost it
// paid the owner, in assets.
type ForceExercised struct {
	Exerciser   common.Address
	Account     common.Address
	PositionKey common.Hash
	InRange     bool
	Cost0       *big.Int
	Cost1       *big.Int
}

func (ForceExercised) EventType() string { return TypeForceExercised }

func (e ForceExercised) Event() *types.Event {
	evt := types.NewEvent(TypeForceExercised)
	setAddress(evt.Attributes, "exerciser", e.Exerciser)
	setAddress(evt.Attributes, "account", e.Account)
	evt.Attributes["position"] = e.PositionKey.Hex()
	evt.Attributes["inRange"] = strconv.FormatBool(e.InRange)
	setAmount(evt.Attributes, "cost0", e.Cost0)
	setAmount(evt.Attributes, "cost1", e.Cost1)
	return evt
}

// LongPremiumSettled reports premium a long leg paid to sellers.
type LongPremiumSettled struct {
	Account     common.Address
	PositionKey common.Hash
	Leg         int
	Paid0       *big.Int
	Paid1       *big.Int
}

func (LongPremiumSettled) EventType() string { return TypeLongPremiumSettled }

func (e LongPremiumSettled) Event() *types.Event {
	evt := types.NewEvent(TypeLongPremiumSettled)
	setAddress(evt.Attributes, "account", e.Account)
	evt.Attributes["position"] = e.PositionKey.Hex()
	evt.Attributes["leg"] = strconv.Itoa(e.Leg)
	setAmount(evt.Attributes, "paid0", e.Paid0)
	setAmount(evt.Attributes, "paid1", e.Paid1)
	return evt
}
