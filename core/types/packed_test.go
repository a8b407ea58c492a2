package types

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

func TestMarketStateRoundTrip(t *testing.T) {
	index := new(big.Int).Add(WAD, big.NewInt(12345))
	unrealized := new(big.Int).Sub(pow2(106), big.NewInt(1))
	state, err := NewMarketState(index, 1<<31, 1_234_567, unrealized)
	if err != nil {
		t.Fatalf("new market state: %v", err)
	}
	encoded := state.Bytes32()
	decoded, err := MarketStateFromBytes(encoded[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.BorrowIndex().Cmp(index) != 0 {
		t.Fatalf("unexpected borrow index: %s", decoded.BorrowIndex())
	}
	if decoded.Epoch() != 1<<31 {
		t.Fatalf("unexpected epoch: %d", decoded.Epoch())
	}
	if decoded.RateAtTarget() != 1_234_567 {
		t.Fatalf("unexpected rate: %d", decoded.RateAtTarget())
	}
	if decoded.UnrealizedInterest().Cmp(unrealized) != 0 {
		t.Fatalf("unexpected unrealized interest: %s", decoded.UnrealizedInterest())
	}
}

func TestMarketStateRejectsOverflow(t *testing.T) {
	if _, err := NewMarketState(pow2(80), 0, 0, nil); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected overflow for borrow index, got %v", err)
	}
	if _, err := NewMarketState(WAD, 1<<32, 0, nil); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected overflow for epoch, got %v", err)
	}
	state, err := NewMarketState(WAD, 0, 0, nil)
	if err != nil {
		t.Fatalf("new market state: %v", err)
	}
	if _, err := state.WithUnrealizedInterest(pow2(106)); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected overflow for unrealized interest, got %v", err)
	}
	if _, err := state.WithRateAtTarget(1 << 38); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected overflow for rate, got %v", err)
	}
	if _, err := state.WithEpoch(1 << 32); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected overflow for epoch, got %v", err)
	}
	if next, err := state.WithEpoch(EpochOf(1_700_000_000)); err != nil || next.Epoch() != 425_000_000 {
		t.Fatalf("epoch update = %d, %v", next.Epoch(), err)
	}
	if _, err := state.WithBorrowIndex(big.NewInt(1)); !errors.Is(err, ErrArithmeticInconsistency) {
		t.Fatalf("expected decreasing index to be rejected, got %v", err)
	}
	if state.BorrowIndex().Cmp(WAD) != 0 {
		t.Fatalf("rejected update mutated state: %s", state.BorrowIndex())
	}
}

func TestPositionBalanceSignedTicks(t *testing.T) {
	size := new(big.Int).Sub(pow2(128), big.NewInt(1))
	snap := PositionSnapshot{Utilization0: 6_667, Utilization1: 10_000, Tick: -887272, TWAPTick: 8_388_607, Timestamp: 1_700_000_000}
	bal, err := NewPositionBalance(size, snap)
	if err != nil {
		t.Fatalf("new balance: %v", err)
	}
	encoded := bal.Bytes32()
	decoded, err := PositionBalanceFromBytes(encoded[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Size().Cmp(size) != 0 {
		t.Fatalf("unexpected size: %s", decoded.Size())
	}
	if got := decoded.Snapshot(); got != snap {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if decoded.Utilization(Token1) != 10_000 {
		t.Fatalf("unexpected token1 utilisation: %d", decoded.Utilization(Token1))
	}

	snap.Tick = 8_388_608
	if _, err := NewPositionBalance(size, snap); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected tick overflow, got %v", err)
	}
	snap.Tick = 0
	snap.Utilization0 = 10_001
	if _, err := NewPositionBalance(size, snap); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected utilisation overflow, got %v", err)
	}
	if _, err := NewPositionBalance(pow2(128), PositionSnapshot{}); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected size overflow, got %v", err)
	}
}

func TestRiskParametersKeepFullRecipient(t *testing.T) {
	recipient := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	params, err := NewRiskParameters(RiskSettings{
		SafeMode:             1,
		NotionalFee:          10,
		PremiumFee:           100,
		ProtocolSplit:        65,
		BuilderSplit:         25,
		TickDeltaLiquidation: 513,
		MaxSpread:            4_000_000,
		MaxLegs:              33,
		FeeRecipient:         recipient,
	})
	if err != nil {
		t.Fatalf("new params: %v", err)
	}
	if params.FeeRecipient() != recipient {
		t.Fatalf("recipient truncated: %s", params.FeeRecipient().Hex())
	}
	if params.BurnSplit() != 10 {
		t.Fatalf("unexpected burn split: %d", params.BurnSplit())
	}
	encoded := params.Bytes32()
	decoded, err := RiskParametersFromBytes(encoded[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Settings() != params.Settings() {
		t.Fatalf("settings changed across round trip: %+v", decoded.Settings())
	}
}

func TestRiskParametersRejectInvalidSplits(t *testing.T) {
	_, err := NewRiskParameters(RiskSettings{ProtocolSplit: 60, BuilderSplit: 41, MaxLegs: 1})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected split rejection, got %v", err)
	}
	_, err = NewRiskParameters(RiskSettings{SafeMode: 16, MaxLegs: 1})
	if !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected safe mode overflow, got %v", err)
	}
	_, err = NewRiskParameters(RiskSettings{TickDeltaLiquidation: 1 << 13, MaxLegs: 1})
	if !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected tick delta overflow, got %v", err)
	}
}

func TestLeftRightSignedArithmetic(t *testing.T) {
	a := MustLeftRightSigned(-5, 7)
	b := MustLeftRightSigned(3, -10)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.Right().Int64() != -2 || sum.Left().Int64() != -3 {
		t.Fatalf("unexpected sum: %s", sum)
	}
	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.Slot(Token0).Int64() != -8 || diff.Slot(Token1).Int64() != 17 {
		t.Fatalf("unexpected difference: %s", diff)
	}

	upper := new(big.Int).Sub(pow2(127), big.NewInt(1))
	top, err := NewLeftRightSigned(upper, big.NewInt(0))
	if err != nil {
		t.Fatalf("max value: %v", err)
	}
	if _, err := top.Add(MustLeftRightSigned(1, 0)); !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected int128 overflow, got %v", err)
	}
	lower := new(big.Int).Neg(pow2(127))
	bottom, err := NewLeftRightSigned(big.NewInt(0), lower)
	if err != nil {
		t.Fatalf("min value: %v", err)
	}
	if bottom.Left().Cmp(lower) != 0 {
		t.Fatalf("unexpected min decode: %s", bottom.Left())
	}
}

func TestLeftRightUnsignedUnderflow(t *testing.T) {
	a, _ := NewLeftRightUnsigned(big.NewInt(5), big.NewInt(5))
	b, _ := NewLeftRightUnsigned(big.NewInt(6), big.NewInt(0))
	if _, err := a.Sub(b); !errors.Is(err, ErrArithmeticInconsistency) {
		t.Fatalf("expected underflow rejection, got %v", err)
	}
	next, err := a.WithSlot(Token1, big.NewInt(9))
	if err != nil {
		t.Fatalf("with slot: %v", err)
	}
	if next.Right().Int64() != 5 || next.Left().Int64() != 9 {
		t.Fatalf("unexpected slots: %s", next)
	}
}

func testPosition(strike int32, long bool) Position {
	return Position{Legs: []Leg{{Asset: 0, OptionRatio: 1, IsLong: long, TokenType: 0, RiskPartner: 0, Strike: strike, Width: 2}}}
}

func TestPositionsHashToggle(t *testing.T) {
	a, b := testPosition(100, false), testPosition(200, true)
	h, err := ComputePositionsHash([]Position{a, b})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if h.LegCount() != 2 {
		t.Fatalf("unexpected leg count: %d", h.LegCount())
	}
	h, err = h.Remove(a.Key(), 1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	only, _ := ComputePositionsHash([]Position{b})
	if !h.Equal(only) {
		t.Fatalf("hash after removal does not match single-position hash")
	}
	if _, err := ComputePositionsHash([]Position{a, a}); !errors.Is(err, ErrDuplicatePositionKey) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := (PositionsHash{}).Remove(a.Key(), 1); !errors.Is(err, ErrArithmeticInconsistency) {
		t.Fatalf("expected leg count underflow, got %v", err)
	}
}

func TestPositionValidate(t *testing.T) {
	spread := Position{Legs: []Leg{
		{Asset: 0, OptionRatio: 1, TokenType: 1, RiskPartner: 1, Strike: 100, Width: 2},
		{Asset: 0, OptionRatio: 1, IsLong: true, TokenType: 1, RiskPartner: 0, Strike: 200, Width: 2},
	}}
	if err := spread.Validate(10, 0); err != nil {
		t.Fatalf("valid spread rejected: %v", err)
	}
	if j, ok := spread.SpreadPartner(0); !ok || j != 1 {
		t.Fatalf("expected leg 0 to be spread with leg 1")
	}
	if err := spread.Validate(10, 50); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected spread width rejection, got %v", err)
	}

	oneSided := Position{Legs: []Leg{
		{Asset: 0, OptionRatio: 1, TokenType: 1, RiskPartner: 1, Strike: 100, Width: 2},
		{Asset: 0, OptionRatio: 1, IsLong: true, TokenType: 1, RiskPartner: 1, Strike: 200, Width: 2},
	}}
	if err := oneSided.Validate(10, 0); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected non-mutual partner rejection, got %v", err)
	}

	outOfRange := testPosition(MaxTick, false)
	if err := outOfRange.Validate(10, 0); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected range rejection, got %v", err)
	}
	if spread.Key() == oneSided.Key() {
		t.Fatalf("distinct positions share a key")
	}
}

func TestSpreadPartnerOutsidePosition(t *testing.T) {
	dangling := testPosition(100, false)
	dangling.Legs[0].RiskPartner = 3
	if j, ok := dangling.SpreadPartner(0); ok || j != 0 {
		t.Fatalf("dangling partner reported as spread with leg %d", j)
	}
	if _, ok := dangling.SpreadPartner(1); ok {
		t.Fatalf("leg index past the position reported as spread")
	}
	if err := dangling.Validate(10, 0); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected dangling partner rejection, got %v", err)
	}
}
