package risk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultrisk/core/pricing"
	"vaultrisk/core/types"
)

// fixedAmounts returns per-contract token amounts keyed by leg strike,
// independent of the tick.
type fixedAmounts struct {
	moved  map[int32][2]int64
	atTick map[int32][2]int64
}

func scale(v [2]int64, leg types.Leg, size *big.Int) (*big.Int, *big.Int, error) {
	contracts := leg.Contracts(size)
	return new(big.Int).Mul(big.NewInt(v[0]), contracts), new(big.Int).Mul(big.NewInt(v[1]), contracts), nil
}

func (f fixedAmounts) AmountsMoved(leg types.Leg, size *big.Int) (*big.Int, *big.Int, error) {
	return scale(f.moved[leg.Strike], leg, size)
}

func (f fixedAmounts) AmountsAtTick(leg types.Leg, size *big.Int, _ int32) (*big.Int, *big.Int, error) {
	if v, ok := f.atTick[leg.Strike]; ok {
		return scale(v, leg, size)
	}
	return scale(f.moved[leg.Strike], leg, size)
}

func newCalc(t *testing.T, amounts LiquidityAmounts) *Calculator {
	t.Helper()
	calc, err := NewCalculator(DefaultParams(), amounts)
	require.NoError(t, err)
	return calc
}

func open(t *testing.T, size int64, util uint64, legs []types.Leg, premia ...types.LeftRightSigned) OpenPosition {
	t.Helper()
	bal, err := types.NewPositionBalance(big.NewInt(size), types.PositionSnapshot{Utilization0: util, Utilization1: util})
	require.NoError(t, err)
	pos := types.Position{Legs: legs}
	return OpenPosition{Key: pos.Key(), Position: pos, Balance: bal, Premia: premia}
}

func shortLeg(strike int32) types.Leg {
	return types.Leg{Asset: 0, OptionRatio: 1, TokenType: 0, Strike: strike, Width: 2}
}

func longLeg(strike int32, partner uint8) types.Leg {
	return types.Leg{Asset: 0, OptionRatio: 1, IsLong: true, TokenType: 0, RiskPartner: partner, Strike: strike, Width: 2}
}

func balances(b0, b1 int64) [2]*big.Int {
	return [2]*big.Int{big.NewInt(b0), big.NewInt(b1)}
}

func TestShortLegUsesUtilizationAtOpen(t *testing.T) {
	calc := newCalc(t, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}})

	atTarget := Account{Positions: []OpenPosition{open(t, 1_000, 5_000, []types.Leg{shortLeg(100)})}}
	saturated := Account{Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)})}}

	for _, current := range [][2]uint64{{0, 0}, {9_500, 9_500}} {
		low, err := calc.RequiredCollateral(atTarget, 0, current)
		require.NoError(t, err)
		require.Equal(t, int64(200), low.Required[0].Int64())

		high, err := calc.RequiredCollateral(saturated, 0, current)
		require.NoError(t, err)
		require.Equal(t, int64(1_000), high.Required[0].Int64())
	}
}

func TestRatiosRampBetweenTargetAndSaturation(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, p.SellerCollateralRatio, p.SellRatio(0))
	require.Equal(t, types.Decimals, p.SellRatio(p.SaturatedUtilization))
	require.Equal(t, p.BuyerCollateralRatio/2, p.BuyRatio(types.Decimals))
	require.Equal(t, uint64(0), p.CrossBuffer(p.SaturatedUtilization))

	previous := p.SellRatio(p.TargetUtilization)
	for u := p.TargetUtilization; u <= p.SaturatedUtilization; u += 111 {
		next := p.SellRatio(u)
		require.GreaterOrEqual(t, next, previous)
		previous = next
	}
}

func TestZeroNotionalSpreadKeepsCalendarTerm(t *testing.T) {
	amounts := fixedAmounts{
		moved:  map[int32][2]int64{100: {1, 3}, 200: {1, 5}},
		atTick: map[int32][2]int64{100: {1, 0}, 200: {1, 0}},
	}
	calc := newCalc(t, amounts)
	short := shortLeg(100)
	short.RiskPartner = 1
	long := longLeg(200, 0)
	long.Width = 4
	account := Account{Positions: []OpenPosition{open(t, 1_000, 0, []types.Leg{short, long})}}

	req, err := calc.RequiredCollateral(account, 0, [2]uint64{})
	require.NoError(t, err)
	// Neither leg holds token1 at the tick, so only the calendar term remains.
	require.Equal(t, int64(1), req.Required[0].Int64())
	require.Zero(t, req.Required[1].Sign())

	long.Width = 2
	account = Account{Positions: []OpenPosition{open(t, 1_000, 0, []types.Leg{short, long})}}
	req, err = calc.RequiredCollateral(account, 0, [2]uint64{})
	require.NoError(t, err)
	require.Equal(t, int64(1), req.Required[0].Int64())
}

func TestSpreadCappedByMaxLoss(t *testing.T) {
	amounts := fixedAmounts{
		moved: map[int32][2]int64{100: {1, 10}, 200: {1, 12}},
	}
	calc := newCalc(t, amounts)
	short := types.Leg{Asset: 0, OptionRatio: 1, TokenType: 1, RiskPartner: 1, Strike: 100, Width: 2}
	long := types.Leg{Asset: 0, OptionRatio: 1, IsLong: true, TokenType: 1, RiskPartner: 0, Strike: 200, Width: 2}
	account := Account{Positions: []OpenPosition{open(t, 100, 9_000, []types.Leg{short, long})}}

	req, err := calc.RequiredCollateral(account, 0, [2]uint64{})
	require.NoError(t, err)
	// |1000 - 1200| plus a calendar term of one.
	require.Equal(t, int64(201), req.Required[1].Int64())
}

func TestCrossCollateralNetting(t *testing.T) {
	calc := newCalc(t, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}})
	positions := []OpenPosition{open(t, 1_000, 0, []types.Leg{shortLeg(100)})}

	covered, err := calc.RequiredCollateral(Account{Balances: balances(0, 300), Positions: positions}, 0, [2]uint64{})
	require.NoError(t, err)
	require.True(t, covered.Solvent)
	require.Zero(t, covered.Netted[0].Sign())
	require.Equal(t, int64(200), covered.Threshold.Int64())

	short, err := calc.RequiredCollateral(Account{Balances: balances(0, 210), Positions: positions}, 0, [2]uint64{})
	require.NoError(t, err)
	require.False(t, short.Solvent)

	saturated, err := calc.RequiredCollateral(Account{Balances: balances(0, 300), Positions: positions}, 0, [2]uint64{0, 9_000})
	require.NoError(t, err)
	require.False(t, saturated.Solvent)
	require.Equal(t, int64(200), saturated.Netted[0].Int64())
}

func TestPremiumDebitsAndCredits(t *testing.T) {
	calc := newCalc(t, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}})
	positions := []OpenPosition{open(t, 1_000, 0, []types.Leg{shortLeg(100)}, types.MustLeftRightSigned(50, -30))}

	req, err := calc.RequiredCollateral(Account{Balances: balances(160, 30), Positions: positions}, 0, [2]uint64{})
	require.NoError(t, err)
	require.Equal(t, int64(200), req.Required[0].Int64())
	require.Equal(t, int64(30), req.Required[1].Int64())
	require.Equal(t, int64(210), req.Balances[0].Int64())
	require.True(t, req.Solvent)

	ok, err := calc.IsSolvent(Account{Balances: balances(100, 30), Positions: positions}, []int32{0, 10}, [2]uint64{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRequirementGrowsWhenShortLegMovesInTheMoney(t *testing.T) {
	calc := newCalc(t, pricing.ChunkMath{TickSpacing: 10})
	leg := types.Leg{Asset: 0, OptionRatio: 1, TokenType: 0, Strike: 0, Width: 2}
	account := Account{Positions: []OpenPosition{open(t, 1_000_000_000_000, 0, []types.Leg{leg})}}

	below, err := calc.RequiredCollateral(account, -1_000, [2]uint64{})
	require.NoError(t, err)
	above, err := calc.RequiredCollateral(account, 1_000, [2]uint64{})
	require.NoError(t, err)
	require.Equal(t, 1, above.Required[0].Cmp(below.Required[0]))
}

func TestLiquidationStateTransitions(t *testing.T) {
	require.True(t, LiquidationStateSolvent.CanTransitionTo(LiquidationStateInsolvent))
	require.True(t, LiquidationStateBonusComputed.CanTransitionTo(LiquidationStateHaircutApplied))
	require.False(t, LiquidationStateSolvent.CanTransitionTo(LiquidationStateSettled))
	require.False(t, LiquidationStateInsolvent.CanTransitionTo(LiquidationStateHaircutApplied))
	require.False(t, LiquidationStateSettled.CanTransitionTo(LiquidationStateSolvent))
	require.Equal(t, "HaircutApplied", LiquidationStateHaircutApplied.String())
}

func liquidator(t *testing.T, moved map[int32][2]int64) *Liquidator {
	t.Helper()
	return NewLiquidator(newCalc(t, fixedAmounts{moved: moved}))
}

func planFor(t *testing.T, l *Liquidator, account Account) *Plan {
	t.Helper()
	plan, err := l.Plan(LiquidationInput{
		Account:      account,
		Snapshot:     pricing.Snapshot{CurrentTick: 0, TWAPTick: 0},
		MaxTickDelta: 513,
	})
	require.NoError(t, err)
	require.Equal(t, LiquidationStateSettled, plan.State)
	return plan
}

func TestLiquidationRejectsDeviantOracle(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}})
	account := Account{Balances: balances(0, 0), Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)})}}
	_, err := l.Plan(LiquidationInput{
		Account:      account,
		Snapshot:     pricing.Snapshot{CurrentTick: 0, TWAPTick: 600},
		MaxTickDelta: 513,
	})
	require.ErrorIs(t, err, types.ErrStaleOracle)
}

func TestLiquidationRequiresInsolvencyAtBothTicks(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}})
	account := Account{Balances: balances(5_000, 0), Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)})}}
	_, err := l.Plan(LiquidationInput{Account: account, Snapshot: pricing.Snapshot{}, MaxTickDelta: 513})
	require.ErrorIs(t, err, types.ErrNotLiquidatable)
}

func TestBonusIgnoresUnsettledCredits(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {10, 0}})
	// Deposits of 100 inflated to 1000 by unsettled premium credits.
	account := Account{
		Balances:  balances(100, 0),
		Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)}, types.MustLeftRightSigned(900, 0))},
	}
	plan := planFor(t, l, account)
	require.Equal(t, int64(1_000), plan.TWAP.Balances[0].Int64())
	require.Equal(t, int64(100), plan.RealBalance.Int64())
	require.Equal(t, int64(50), plan.BonusTotal.Int64())
	require.LessOrEqual(t, plan.Bonus[0].Int64(), int64(100))
	require.Zero(t, plan.BonusMinted[0].Sign())
	require.Equal(t, int64(900), plan.CreditsPaid[0].Int64())
}

func TestHaircutCoversEveryCreditedLeg(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}, 200: {1, 0}, 300: {1, 0}})
	credited := open(t, 1_000, 9_000,
		[]types.Leg{shortLeg(100), longLeg(200, 1)},
		types.MustLeftRightSigned(40, 0), types.MustLeftRightSigned(60, 0),
	)
	debited := open(t, 1_000, 9_000, []types.Leg{longLeg(300, 0)}, types.MustLeftRightSigned(-200, 0))
	account := Account{Balances: balances(100, 0), Positions: []OpenPosition{credited, debited}}

	plan := planFor(t, l, account)
	require.Equal(t, int64(50), plan.Bonus[0].Int64())
	require.Equal(t, int64(100), plan.Haircut[0].Int64())
	require.Len(t, plan.LegHaircuts, 2)
	require.Equal(t, int64(40), plan.LegHaircuts[0].Amount.Right().Int64())
	require.Equal(t, int64(60), plan.LegHaircuts[1].Amount.Right().Int64())
	require.True(t, plan.LegHaircuts[1].Leg == 1 && plan.LegHaircuts[1].Position == 0)

	require.Equal(t, int64(50), plan.DebitsPaid[0].Int64())
	require.Equal(t, int64(150), plan.DebitsWrittenOff[0].Int64())
	require.Zero(t, plan.CreditsPaid[0].Sign())
	assertConserved(t, plan, account)
}

func TestLiquidationCountsSettledDepositsOnly(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}})
	// A requirement of 1000 against 100 deposited: the 950 credit still
	// unsettled would otherwise lift the account over the line.
	account := Account{
		Balances:  balances(100, 0),
		Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)}, types.MustLeftRightSigned(950, 0))},
	}
	solvent, err := l.calc.IsSolvent(account, []int32{0}, [2]uint64{})
	require.NoError(t, err)
	require.True(t, solvent)

	plan := planFor(t, l, account)
	require.True(t, plan.TWAP.Solvent)
	require.False(t, plan.TWAP.SettledSolvent)
	require.False(t, plan.Current.SettledSolvent)
	require.Equal(t, int64(50), plan.BonusTotal.Int64())
	require.Zero(t, plan.Haircut[0].Sign())
	require.Equal(t, int64(950), plan.CreditsPaid[0].Int64())
	assertConserved(t, plan, account)
}

func legHaircutSum(legs []LegHaircut, token uint8) *big.Int {
	sum := new(big.Int)
	for _, leg := range legs {
		sum.Add(sum, leg.Amount.Slot(token))
	}
	return sum
}

func TestHaircutRemainderStaysWithinLegCredit(t *testing.T) {
	one := types.MustLeftRightSigned(1, 0)
	account := Account{Positions: []OpenPosition{
		open(t, 1_000, 0, []types.Leg{shortLeg(100), shortLeg(200), shortLeg(300)}, one, one, one),
	}}
	legs, err := distributeHaircut(account, [2]*big.Int{big.NewInt(2), new(big.Int)})
	require.NoError(t, err)
	require.Len(t, legs, 3)
	for _, leg := range legs {
		require.LessOrEqual(t, leg.Amount.Right().Int64(), int64(1), "leg %d over its credit", leg.Leg)
	}
	require.Equal(t, int64(2), legHaircutSum(legs, 0).Int64())

	// Exact shares 1.4, 2.1 and 3.5: the spare unit goes to the largest
	// remainder.
	account = Account{Positions: []OpenPosition{
		open(t, 1_000, 0, []types.Leg{shortLeg(100), shortLeg(200)}, types.MustLeftRightSigned(0, 2), types.MustLeftRightSigned(0, 3)),
		open(t, 1_000, 0, []types.Leg{shortLeg(300)}, types.MustLeftRightSigned(0, 5)),
	}}
	legs, err = distributeHaircut(account, [2]*big.Int{new(big.Int), big.NewInt(7)})
	require.NoError(t, err)
	require.Len(t, legs, 3)
	require.Equal(t, int64(1), legs[0].Amount.Left().Int64())
	require.Equal(t, int64(2), legs[1].Amount.Left().Int64())
	require.Equal(t, int64(4), legs[2].Amount.Left().Int64())
	require.True(t, legs[2].Position == 1 && legs[2].Leg == 0)
}

func TestHaircutAboveCreditsIsRejected(t *testing.T) {
	account := Account{Positions: []OpenPosition{
		open(t, 1_000, 0, []types.Leg{shortLeg(100)}, types.MustLeftRightSigned(3, 0)),
	}}
	_, err := distributeHaircut(account, [2]*big.Int{big.NewInt(4), new(big.Int)})
	require.ErrorIs(t, err, types.ErrArithmeticInconsistency)
}

func TestDanglingRiskPartnerIsPricedAlone(t *testing.T) {
	calc := newCalc(t, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}})
	leg := shortLeg(100)
	leg.RiskPartner = 3
	account := Account{Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{leg})}}

	var req Requirement
	require.NotPanics(t, func() {
		var err error
		req, err = calc.RequiredCollateral(account, 0, [2]uint64{})
		require.NoError(t, err)
	})
	require.Equal(t, int64(1_000), req.Required[0].Int64())
}

func TestMitigationShiftsBonusToSpareToken(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}, 300: {1, 0}})
	account := Account{
		Balances: balances(100, 1_000),
		Positions: []OpenPosition{
			open(t, 10_000, 9_000, []types.Leg{shortLeg(100)}),
			open(t, 1_000, 9_000, []types.Leg{longLeg(300, 0)}, types.MustLeftRightSigned(-200, 0)),
		},
	}
	plan := planFor(t, l, account)
	require.Equal(t, int64(550), plan.BonusTotal.Int64())
	require.Zero(t, plan.Bonus[0].Sign())
	require.Equal(t, int64(550), plan.Bonus[1].Int64())
	assertConserved(t, plan, account)
}

func TestMitigationRunsWhenBothTokensShort(t *testing.T) {
	l := liquidator(t, map[int32][2]int64{100: {1, 0}, 300: {1, 0}, 400: {1, 0}})
	account := Account{
		Balances: balances(100, 100),
		Positions: []OpenPosition{
			open(t, 10_000, 9_000, []types.Leg{shortLeg(100)}),
			open(t, 1_000, 9_000, []types.Leg{longLeg(300, 0)}, types.MustLeftRightSigned(-200, -150)),
			open(t, 1_000, 9_000, []types.Leg{shortLeg(400)}, types.MustLeftRightSigned(0, 400)),
		},
	}
	plan := planFor(t, l, account)
	require.Equal(t, int64(100), plan.BonusTotal.Int64())
	require.Zero(t, plan.Bonus[0].Sign())
	require.Equal(t, int64(100), plan.Bonus[1].Int64())
	require.Equal(t, int64(150), plan.Haircut[1].Int64())
	require.Equal(t, int64(250), plan.CreditsPaid[1].Int64())
	assertConserved(t, plan, account)
}

func assertConserved(t *testing.T, plan *Plan, account Account) {
	t.Helper()
	for tok := 0; tok < 2; tok++ {
		paid := plan.Bonus[tok]
		deposited := account.balance(uint8(tok))
		bound := new(big.Int).Add(deposited, plan.BonusMinted[tok])
		require.True(t, paid.Cmp(bound) <= 0, "token %d bonus %s above deposits plus minted", tok, paid)
		if plan.BonusMinted[tok].Sign() > 0 {
			require.Equal(t, 1, paid.Cmp(deposited), "token %d minted without a deficit", tok)
		}
		sum := new(big.Int).Add(plan.BonusFromDeposits[tok], plan.BonusMinted[tok])
		require.Zero(t, sum.Cmp(paid))
	}
}

// tickedAmounts overrides the chunk composition at specific ticks.
type tickedAmounts struct {
	fixedAmounts
	byTick map[int32][2]int64
}

func (a tickedAmounts) AmountsAtTick(leg types.Leg, size *big.Int, tick int32) (*big.Int, *big.Int, error) {
	if v, ok := a.byTick[tick]; ok {
		return scale(v, leg, size)
	}
	return a.fixedAmounts.AmountsAtTick(leg, size, tick)
}

func TestExerciseCostDependsOnRange(t *testing.T) {
	calc := newCalc(t, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}, 200: {1, 0}}})
	long := open(t, 1_000, 0, []types.Leg{longLeg(100, 0)})

	// The leg spans [90, 110).
	quote, err := calc.ExerciseCost(long, 100, 100)
	require.NoError(t, err)
	require.True(t, quote.InRange)
	require.Equal(t, int64(11), quote.Total[0].Int64())
	require.Zero(t, quote.Total[1].Sign())

	quote, err = calc.ExerciseCost(long, 110, 110)
	require.NoError(t, err)
	require.False(t, quote.InRange)
	require.Equal(t, int64(1), quote.Total[0].Int64())

	// The short leg of a spread adds nothing and cannot put it in range.
	short := shortLeg(200)
	short.RiskPartner = 1
	spread := open(t, 1_000, 0, []types.Leg{short, longLeg(100, 0)})
	quote, err = calc.ExerciseCost(spread, 200, 200)
	require.NoError(t, err)
	require.False(t, quote.InRange)
	require.Equal(t, int64(1), quote.Fee[0].Int64())

	_, err = calc.ExerciseCost(open(t, 1_000, 0, []types.Leg{shortLeg(100)}), 100, 100)
	require.ErrorIs(t, err, types.ErrInvalidPosition)
}

func TestExerciseCostCompensatesOracleValue(t *testing.T) {
	calc := newCalc(t, tickedAmounts{
		fixedAmounts: fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}},
		byTick:       map[int32][2]int64{95: {3, 0}, 105: {1, 2}},
	})
	long := open(t, 1_000, 0, []types.Leg{longLeg(100, 0)})

	quote, err := calc.ExerciseCost(long, 95, 105)
	require.NoError(t, err)
	require.Equal(t, int64(11), quote.Fee[0].Int64())
	// Token0 is worth less at the oracle tick, so only token1 is owed.
	require.Zero(t, quote.Delta[0].Sign())
	require.Equal(t, int64(2_000), quote.Delta[1].Int64())
	require.Equal(t, int64(2_000), quote.Total[1].Int64())
}

func TestMaintenanceMarginGatesLiquidation(t *testing.T) {
	params := DefaultParams()
	params.MaintenanceMarginRate = 5_000
	calc, err := NewCalculator(params, fixedAmounts{moved: map[int32][2]int64{100: {1, 0}}})
	require.NoError(t, err)
	l := NewLiquidator(calc)

	account := Account{Balances: balances(600, 0), Positions: []OpenPosition{open(t, 1_000, 9_000, []types.Leg{shortLeg(100)})}}
	req, err := calc.RequiredCollateral(account, 0, [2]uint64{})
	require.NoError(t, err)
	require.False(t, req.Solvent)
	require.Equal(t, int64(500), req.Maintenance[0].Int64())
	require.True(t, req.SettledSolvent)
	_, err = l.Plan(LiquidationInput{Account: account, Snapshot: pricing.Snapshot{}, MaxTickDelta: 513})
	require.ErrorIs(t, err, types.ErrNotLiquidatable)

	account.Balances = balances(400, 0)
	plan := planFor(t, l, account)
	require.Equal(t, int64(200), plan.BonusTotal.Int64())

	params.MaintenanceMarginRate = 0
	_, err = NewCalculator(params, fixedAmounts{})
	require.Error(t, err)
}
