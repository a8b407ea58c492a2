package risk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
)

// LiquidityAmounts supplies the token amounts of a leg's liquidity chunk.
type LiquidityAmounts interface {
	AmountsMoved(leg types.Leg, size *big.Int) (*big.Int, *big.Int, error)
	AmountsAtTick(leg types.Leg, size *big.Int, tick int32) (*big.Int, *big.Int, error)
}

// OpenPosition is a position held by an account together with its stored
// balance word and the premium accumulated per leg. A positive premium slot
// is owed to the account, a negative one is owed by it.
type OpenPosition struct {
	Key      common.Hash
	Position types.Position
	Balance  types.PositionBalance
	Premia   []types.LeftRightSigned
}

func (p OpenPosition) legPremium(i int) types.LeftRightSigned {
	if i < len(p.Premia) {
		return p.Premia[i]
	}
	return types.LeftRightSigned{}
}

// Account is the collateral view of one account. Balances are the settled
// deposits per token, excluding any unsettled premium.
type Account struct {
	Balances  [2]*big.Int
	Positions []OpenPosition
}

func (a Account) balance(token uint8) *big.Int {
	if b := a.Balances[token]; b != nil {
		return b
	}
	return new(big.Int)
}

// Requirement is the collateral verdict for an account at one tick.
type Requirement struct {
	Tick int32
	// Balances are deposits plus premium credits.
	Balances [2]*big.Int
	// Credits and Debits are the premium owed to and by the account.
	Credits [2]*big.Int
	Debits  [2]*big.Int
	// Required is the per-token requirement, premium debits included.
	Required [2]*big.Int
	// Netted is the balance each token must hold after the other token's
	// surplus has been applied across.
	Netted [2]*big.Int
	// Maintenance is the requirement scaled by the maintenance margin rate.
	Maintenance [2]*big.Int
	// Threshold is the whole requirement valued in token0.
	Threshold *big.Int
	Solvent   bool
	// SettledSolvent nets the settled deposits alone against Maintenance, so
	// unsettled premium credits cannot keep an account out of liquidation.
	SettledSolvent bool
}

// Calculator prices the collateral an account must hold.
type Calculator struct {
	params  Params
	amounts LiquidityAmounts
}

// NewCalculator validates params and binds the amounts collaborator.
func NewCalculator(params Params, amounts LiquidityAmounts) (*Calculator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if amounts == nil {
		return nil, fmt.Errorf("%w: liquidity amounts not configured", errInvalidParams)
	}
	return &Calculator{params: params, amounts: amounts}, nil
}

// Params returns the calculator configuration.
func (c *Calculator) Params() Params { return c.params }

func pick(a0, a1 *big.Int, token uint8) *big.Int {
	if token == types.Token0 {
		return a0
	}
	return a1
}

func (c *Calculator) moved(leg types.Leg, size *big.Int) (*big.Int, error) {
	a0, a1, err := c.amounts.AmountsMoved(leg, size)
	if err != nil {
		return nil, err
	}
	return pick(a0, a1, leg.TokenType), nil
}

// valueAt is the chunk's worth at tick, valued in the leg's token type.
func (c *Calculator) valueAt(leg types.Leg, size *big.Int, tick int32, sqrtP *big.Int) (*big.Int, error) {
	a0, a1, err := c.amounts.AmountsAtTick(leg, size, tick)
	if err != nil {
		return nil, err
	}
	other := 1 - leg.TokenType
	value := new(big.Int).Set(pick(a0, a1, leg.TokenType))
	return value.Add(value, pricing.ConvertTo(pick(a0, a1, other), other, leg.TokenType, sqrtP, false)), nil
}

// LegRequirement prices a single leg in its token type using the utilisation
// recorded when the position was opened.
func (c *Calculator) LegRequirement(leg types.Leg, size *big.Int, openUtilization uint64, tick int32, sqrtP *big.Int) (*big.Int, error) {
	moved, err := c.moved(leg, size)
	if err != nil {
		return nil, err
	}
	if leg.IsLong {
		return ratio(moved, c.params.BuyRatio(openUtilization), true), nil
	}
	required := ratio(moved, c.params.SellRatio(openUtilization), true)
	value, err := c.valueAt(leg, size, tick, sqrtP)
	if err != nil {
		return nil, err
	}
	if moved.Cmp(value) > 0 {
		required.Add(required, new(big.Int).Sub(moved, value))
	}
	return required, nil
}

// SpreadRequirement bounds the pair's requirement by its maximum loss plus the
// calendar term.
func (c *Calculator) SpreadRequirement(a, b types.Leg, size *big.Int, independent *big.Int, tick int32, sqrtP *big.Int) (*big.Int, error) {
	token := a.TokenType
	contracts := a.Contracts(size)
	var maxLoss *big.Int
	if token != a.Asset {
		movedA, err := c.moved(a, size)
		if err != nil {
			return nil, err
		}
		movedB, err := c.moved(b, size)
		if err != nil {
			return nil, err
		}
		maxLoss = new(big.Int).Abs(new(big.Int).Sub(movedA, movedB))
	} else {
		other := 1 - token
		a0, a1, err := c.amounts.AmountsAtTick(a, size, tick)
		if err != nil {
			return nil, err
		}
		b0, b1, err := c.amounts.AmountsAtTick(b, size, tick)
		if err != nil {
			return nil, err
		}
		nA, nB := pick(a0, a1, other), pick(b0, b1, other)
		larger := maxOf(nA, nB)
		// Both legs out of range on the same side: only the calendar term
		// applies.
		maxLoss = new(big.Int)
		if larger.Sign() > 0 {
			diff := new(big.Int).Abs(new(big.Int).Sub(nA, nB))
			maxLoss = mulDivUp(diff, contracts, larger)
		}
	}

	widthDelta := int64(a.Width) - int64(b.Width)
	if widthDelta < 0 {
		widthDelta = -widthDelta
	}
	widthTicks := big.NewInt(widthDelta * int64(c.params.TickSpacing))
	notional := contracts
	if token != a.Asset {
		notional = pricing.ConvertTo(contracts, a.Asset, token, sqrtP, true)
	}
	calendar := mulDivUp(notional, widthTicks, new(big.Int).SetUint64(c.params.CalendarDivisor))
	if calendar.Sign() == 0 {
		calendar.SetInt64(1)
	}
	bound := new(big.Int).Add(maxLoss, calendar)
	return minOf(independent, bound), nil
}

// RequiredCollateral prices every open position of account at tick and nets
// the two tokens against each other using the current utilisations.
func (c *Calculator) RequiredCollateral(account Account, tick int32, utilizations [2]uint64) (Requirement, error) {
	sqrtP, err := pricing.SqrtRatioAtTick(tick)
	if err != nil {
		return Requirement{}, err
	}
	req := Requirement{Tick: tick}
	for t := range req.Required {
		req.Required[t] = new(big.Int)
		req.Credits[t] = new(big.Int)
		req.Debits[t] = new(big.Int)
	}

	for _, open := range account.Positions {
		size := open.Balance.Size()
		if size.Sign() == 0 {
			return Requirement{}, fmt.Errorf("%w: position %s has no size", types.ErrInvalidPosition, open.Key.Hex())
		}
		legs := open.Position.Legs
		legReq := make([]*big.Int, len(legs))
		for i, leg := range legs {
			if legReq[i], err = c.LegRequirement(leg, size, open.Balance.Utilization(leg.TokenType), tick, sqrtP); err != nil {
				return Requirement{}, err
			}
		}
		done := make([]bool, len(legs))
		for i, leg := range legs {
			if done[i] {
				continue
			}
			done[i] = true
			amount := legReq[i]
			if j, spread := open.Position.SpreadPartner(i); spread && !done[j] {
				done[j] = true
				independent := new(big.Int).Add(legReq[i], legReq[j])
				if amount, err = c.SpreadRequirement(leg, legs[j], size, independent, tick, sqrtP); err != nil {
					return Requirement{}, err
				}
			}
			req.Required[leg.TokenType].Add(req.Required[leg.TokenType], amount)
		}
		for i := range legs {
			premium := open.legPremium(i)
			for t := uint8(0); t < 2; t++ {
				v := premium.Slot(t)
				if v.Sign() > 0 {
					req.Credits[t].Add(req.Credits[t], v)
				} else {
					req.Debits[t].Sub(req.Debits[t], v)
				}
			}
		}
	}

	for t := uint8(0); t < 2; t++ {
		req.Required[t].Add(req.Required[t], req.Debits[t])
		req.Balances[t] = new(big.Int).Add(account.balance(t), req.Credits[t])
		if err := checked("required collateral", req.Required[t]); err != nil {
			return Requirement{}, err
		}
		if err := checked("balance", req.Balances[t]); err != nil {
			return Requirement{}, err
		}
	}
	req.Netted, req.Solvent = c.net(req.Balances, req.Required, sqrtP, utilizations)
	for t := range req.Maintenance {
		req.Maintenance[t] = ratio(req.Required[t], c.params.MaintenanceMarginRate, true)
	}
	settled := [2]*big.Int{account.balance(0), account.balance(1)}
	_, req.SettledSolvent = c.net(settled, req.Maintenance, sqrtP, utilizations)
	req.Threshold = new(big.Int).Add(req.Required[0], pricing.Convert1To0Up(req.Required[1], sqrtP))
	return req, nil
}

// net applies each token's buffered surplus against the other's requirement
// and reports whether balances cover what remains in both tokens.
func (c *Calculator) net(balances, required [2]*big.Int, sqrtP *big.Int, utilizations [2]uint64) ([2]*big.Int, bool) {
	var surplus, netted [2]*big.Int
	for t := uint8(0); t < 2; t++ {
		excess := positive(new(big.Int).Sub(balances[t], required[t]))
		surplus[t] = ratio(excess, c.params.CrossBuffer(utilizations[t]), false)
	}
	solvent := true
	for t := uint8(0); t < 2; t++ {
		other := 1 - t
		usable := pricing.ConvertTo(surplus[other], other, t, sqrtP, false)
		netted[t] = positive(new(big.Int).Sub(required[t], usable))
		if balances[t].Cmp(netted[t]) < 0 {
			solvent = false
		}
	}
	return netted, solvent
}

// IsSolvent requires the account to be solvent at every tick.
func (c *Calculator) IsSolvent(account Account, ticks []int32, utilizations [2]uint64) (bool, error) {
	for _, tick := range ticks {
		req, err := c.RequiredCollateral(account, tick, utilizations)
		if err != nil {
			return false, err
		}
		if !req.Solvent {
			return false, nil
		}
	}
	return true, nil
}
