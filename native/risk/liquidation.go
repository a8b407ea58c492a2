package risk

import (
	"fmt"
	"math/big"
	"sort"

	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
)

// LiquidationState tracks a liquidation through its phases.
type LiquidationState int32

const (
	LiquidationStateSolvent LiquidationState = iota
	LiquidationStateInsolvent
	LiquidationStateBonusComputed
	LiquidationStateHaircutApplied
	LiquidationStateSettled
)

func (s LiquidationState) String() string {
	switch s {
	case LiquidationStateSolvent:
		return "Solvent"
	case LiquidationStateInsolvent:
		return "Insolvent"
	case LiquidationStateBonusComputed:
		return "BonusComputed"
	case LiquidationStateHaircutApplied:
		return "HaircutApplied"
	case LiquidationStateSettled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates liquidation state transitions.
func (s LiquidationState) CanTransitionTo(next LiquidationState) bool {
	transitions := map[LiquidationState][]LiquidationState{
		LiquidationStateSolvent: {
			LiquidationStateInsolvent,
		},
		LiquidationStateInsolvent: {
			LiquidationStateBonusComputed,
		},
		LiquidationStateBonusComputed: {
			LiquidationStateHaircutApplied,
		},
		LiquidationStateHaircutApplied: {
			LiquidationStateSettled,
		},
		LiquidationStateSettled: {
			// Terminal state
		},
	}
	for _, allowed := range transitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// shortfall enumerates which tokens cannot cover bonus plus debits.
type shortfall int

const (
	shortfallNone shortfall = iota
	shortfallOnly0
	shortfallOnly1
	shortfallBoth
)

func classifyShortfall(short [2]*big.Int) shortfall {
	switch s0, s1 := short[0].Sign() > 0, short[1].Sign() > 0; {
	case s0 && s1:
		return shortfallBoth
	case s0:
		return shortfallOnly0
	case s1:
		return shortfallOnly1
	default:
		return shortfallNone
	}
}

// LiquidationInput fixes every input of a liquidation at request start.
type LiquidationInput struct {
	Account      Account
	Snapshot     pricing.Snapshot
	Utilizations [2]uint64
	// MaxTickDelta bounds |current - twap|; larger deviations refuse to
	// liquidate.
	MaxTickDelta uint64
}

// LegHaircut is the premium clawed back from one leg.
type LegHaircut struct {
	Position int
	Leg      int
	Amount   types.LeftRightUnsigned
}

// Plan is the settlement of one liquidation. Amounts are per token.
type Plan struct {
	State       LiquidationState
	Current     Requirement
	TWAP        Requirement
	RealBalance *big.Int
	BonusTotal  *big.Int
	// Bonus is the per-token bonus owed to the liquidator after mitigation.
	Bonus             [2]*big.Int
	BonusFromDeposits [2]*big.Int
	BonusMinted       [2]*big.Int
	DebitsPaid        [2]*big.Int
	DebitsWrittenOff  [2]*big.Int
	CreditsPaid       [2]*big.Int
	Haircut           [2]*big.Int
	LegHaircuts       []LegHaircut
}

func (p *Plan) advance(next LiquidationState) error {
	if !p.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: liquidation cannot move from %s to %s", types.ErrArithmeticInconsistency, p.State, next)
	}
	p.State = next
	return nil
}

// Liquidator plans liquidations against a calculator.
type Liquidator struct {
	calc *Calculator
}

func NewLiquidator(calc *Calculator) *Liquidator {
	return &Liquidator{calc: calc}
}

// Plan detects insolvency at both the current and time-weighted ticks,
// counting settled deposits only, and computes the bonus, cross-token mitigation, premium haircut and final
// settlement amounts.
func (l *Liquidator) Plan(in LiquidationInput) (*Plan, error) {
	if err := in.Snapshot.Validate(); err != nil {
		return nil, err
	}
	if in.Snapshot.Deviation() > in.MaxTickDelta {
		return nil, fmt.Errorf("%w: tick deviation %d above %d", types.ErrStaleOracle, in.Snapshot.Deviation(), in.MaxTickDelta)
	}
	plan := &Plan{State: LiquidationStateSolvent}

	current, err := l.calc.RequiredCollateral(in.Account, in.Snapshot.CurrentTick, in.Utilizations)
	if err != nil {
		return nil, err
	}
	twap, err := l.calc.RequiredCollateral(in.Account, in.Snapshot.TWAPTick, in.Utilizations)
	if err != nil {
		return nil, err
	}
	plan.Current, plan.TWAP = current, twap
	if current.SettledSolvent || twap.SettledSolvent {
		return nil, types.ErrNotLiquidatable
	}
	if err := plan.advance(LiquidationStateInsolvent); err != nil {
		return nil, err
	}

	_, sqrtTWAP, err := in.Snapshot.SqrtPrices()
	if err != nil {
		return nil, err
	}
	deposits := [2]*big.Int{in.Account.balance(0), in.Account.balance(1)}
	l.computeBonus(plan, deposits, sqrtTWAP)
	if err := plan.advance(LiquidationStateBonusComputed); err != nil {
		return nil, err
	}
	l.mitigate(plan, deposits, sqrtTWAP)

	if err := l.haircut(plan, in.Account, deposits, sqrtTWAP); err != nil {
		return nil, err
	}
	if err := plan.advance(LiquidationStateHaircutApplied); err != nil {
		return nil, err
	}

	for t := 0; t < 2; t++ {
		debits := twap.Debits[t]
		plan.BonusFromDeposits[t] = minOf(plan.Bonus[t], deposits[t])
		plan.BonusMinted[t] = new(big.Int).Sub(plan.Bonus[t], plan.BonusFromDeposits[t])
		remainder := new(big.Int).Sub(deposits[t], plan.BonusFromDeposits[t])
		plan.DebitsPaid[t] = minOf(debits, remainder)
		plan.DebitsWrittenOff[t] = new(big.Int).Sub(debits, plan.DebitsPaid[t])
		plan.CreditsPaid[t] = new(big.Int).Sub(twap.Credits[t], plan.Haircut[t])
	}
	if err := plan.advance(LiquidationStateSettled); err != nil {
		return nil, err
	}
	return plan, nil
}

// computeBonus caps the bonus at half the deposits and at the shortfall
// against the threshold, both valued at the time-weighted price, then splits
// it by each token's share of the deposits.
func (l *Liquidator) computeBonus(plan *Plan, deposits [2]*big.Int, sqrtTWAP *big.Int) {
	value1 := pricing.Convert1To0(deposits[1], sqrtTWAP)
	total := new(big.Int).Add(deposits[0], value1)
	plan.RealBalance = total

	half := new(big.Int).Rsh(total, 1)
	gap := positive(new(big.Int).Sub(plan.TWAP.Threshold, total))
	plan.BonusTotal = minOf(half, gap)

	plan.Bonus = [2]*big.Int{new(big.Int), new(big.Int)}
	if total.Sign() == 0 || plan.BonusTotal.Sign() == 0 {
		return
	}
	plan.Bonus[0] = mulDiv(plan.BonusTotal, deposits[0], total)
	rest := new(big.Int).Sub(plan.BonusTotal, plan.Bonus[0])
	plan.Bonus[1] = minOf(pricing.Convert0To1(rest, sqrtTWAP), deposits[1])
}

// mitigate substitutes the other token's spare balance for the part of a
// token's bonus the liquidatee cannot cover. Spare balance counts premium
// credits, so a shortfall in both tokens can still be mitigated.
func (l *Liquidator) mitigate(plan *Plan, deposits [2]*big.Int, sqrtTWAP *big.Int) {
	short := func(t int) *big.Int {
		paid := new(big.Int).Add(plan.Bonus[t], plan.TWAP.Debits[t])
		return positive(paid.Sub(paid, deposits[t]))
	}
	spare := func(t int) *big.Int {
		available := new(big.Int).Add(deposits[t], plan.TWAP.Credits[t])
		available.Sub(available, plan.Bonus[t])
		return positive(available.Sub(available, plan.TWAP.Debits[t]))
	}
	shift := func(from, to int) {
		reducible := minOf(short(to), plan.Bonus[to])
		if reducible.Sign() == 0 {
			return
		}
		added := minOf(spare(from), pricing.ConvertTo(reducible, uint8(to), uint8(from), sqrtTWAP, true))
		removed := minOf(pricing.ConvertTo(added, uint8(from), uint8(to), sqrtTWAP, false), reducible)
		plan.Bonus[from].Add(plan.Bonus[from], added)
		plan.Bonus[to].Sub(plan.Bonus[to], removed)
	}

	switch classifyShortfall([2]*big.Int{short(0), short(1)}) {
	case shortfallNone:
	case shortfallOnly0:
		shift(1, 0)
	case shortfallOnly1:
		shift(0, 1)
	case shortfallBoth:
		shift(1, 0)
		shift(0, 1)
	}
}

// haircut claws back premium credits owed to the liquidatee, pro rata across
// every leg holding a credit, until the uncovered loss is absorbed. Credits in
// one token are applied to its own loss first and then to the other token's
// loss by shifting bonus across.
func (l *Liquidator) haircut(plan *Plan, account Account, deposits [2]*big.Int, sqrtTWAP *big.Int) error {
	credits := plan.TWAP.Credits
	var uncovered [2]*big.Int
	for t := 0; t < 2; t++ {
		paid := new(big.Int).Add(plan.Bonus[t], plan.TWAP.Debits[t])
		uncovered[t] = positive(paid.Sub(paid, deposits[t]))
		plan.Haircut[t] = minOf(uncovered[t], credits[t])
		uncovered[t].Sub(uncovered[t], plan.Haircut[t])
	}
	for t := 0; t < 2; t++ {
		u := 1 - t
		if uncovered[t].Sign() == 0 {
			continue
		}
		spare := new(big.Int).Sub(credits[u], plan.Haircut[u])
		reducible := minOf(uncovered[t], plan.Bonus[t])
		if spare.Sign() <= 0 || reducible.Sign() == 0 {
			continue
		}
		taken := minOf(spare, pricing.ConvertTo(reducible, uint8(t), uint8(u), sqrtTWAP, true))
		covered := minOf(pricing.ConvertTo(taken, uint8(u), uint8(t), sqrtTWAP, false), reducible)
		plan.Haircut[u].Add(plan.Haircut[u], taken)
		plan.Bonus[u].Add(plan.Bonus[u], taken)
		plan.Bonus[t].Sub(plan.Bonus[t], covered)
		uncovered[t].Sub(uncovered[t], covered)
	}
	legs, err := distributeHaircut(account, plan.Haircut)
	if err != nil {
		return err
	}
	plan.LegHaircuts = legs
	return nil
}

type creditLeg struct {
	position, leg int
	credit        [2]*big.Int
}

// distributeHaircut spreads each token's haircut over crediting legs in
// proportion to their credit. Floored shares are topped up one unit at a time
// by largest remainder, and no leg gives up more than it is owed.
func distributeHaircut(account Account, haircut [2]*big.Int) ([]LegHaircut, error) {
	var legs []creditLeg
	for p, open := range account.Positions {
		for i := range open.Position.Legs {
			premium := open.legPremium(i)
			entry := creditLeg{position: p, leg: i}
			hasCredit := false
			for t := uint8(0); t < 2; t++ {
				entry.credit[t] = positive(premium.Slot(t))
				if entry.credit[t].Sign() > 0 {
					hasCredit = true
				}
			}
			if hasCredit {
				legs = append(legs, entry)
			}
		}
	}
	shares := make([][2]*big.Int, len(legs))
	for t := 0; t < 2; t++ {
		total := new(big.Int)
		for k, entry := range legs {
			shares[k][t] = new(big.Int)
			total.Add(total, entry.credit[t])
		}
		if haircut[t].Sign() == 0 {
			continue
		}
		if haircut[t].Cmp(total) > 0 {
			return nil, fmt.Errorf("%w: token%d haircut %s exceeds credits %s", types.ErrArithmeticInconsistency, t, haircut[t], total)
		}
		remainders := make([]*big.Int, len(legs))
		order := make([]int, 0, len(legs))
		leftover := new(big.Int).Set(haircut[t])
		for k, entry := range legs {
			remainders[k] = new(big.Int)
			if entry.credit[t].Sign() == 0 {
				continue
			}
			product := new(big.Int).Mul(haircut[t], entry.credit[t])
			shares[k][t].QuoRem(product, total, remainders[k])
			if shares[k][t].Cmp(entry.credit[t]) > 0 {
				shares[k][t].Set(entry.credit[t])
			}
			leftover.Sub(leftover, shares[k][t])
			order = append(order, k)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]].Cmp(remainders[order[b]]) > 0
		})
		for leftover.Sign() > 0 {
			progressed := false
			for _, k := range order {
				if leftover.Sign() == 0 {
					break
				}
				if shares[k][t].Cmp(legs[k].credit[t]) >= 0 {
					continue
				}
				shares[k][t].Add(shares[k][t], big.NewInt(1))
				leftover.Sub(leftover, big.NewInt(1))
				progressed = true
			}
			if !progressed {
				return nil, fmt.Errorf("%w: token%d haircut remainder %s has no leg to absorb it", types.ErrArithmeticInconsistency, t, leftover)
			}
		}
	}
	out := make([]LegHaircut, 0, len(legs))
	for k, entry := range legs {
		amount, err := types.NewLeftRightUnsigned(shares[k][0], shares[k][1])
		if err != nil {
			return nil, fmt.Errorf("leg haircut %d/%d: %w", entry.position, entry.leg, err)
		}
		out = append(out, LegHaircut{Position: entry.position, Leg: entry.leg, Amount: amount})
	}
	return out, nil
}
