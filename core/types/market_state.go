package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// WAD is the fixed-point unit for borrow indexes and rates.
var WAD = big.NewInt(1_000_000_000_000_000_000)

var (
	marketBorrowIndex  = field{name: "borrowIndex", offset: 0, width: 80}
	marketEpoch        = field{name: "epoch", offset: 80, width: 32}
	marketRateAtTarget = field{name: "rateAtTarget", offset: 112, width: 38}
	marketUnrealized   = field{name: "unrealizedInterest", offset: 150, width: 106}
)

// MarketState is the packed per-vault interest state. The zero value is an
// uninitialised vault.
type MarketState struct {
	word uint256.Int
}

// EpochOf converts a unix timestamp into the 4-second epoch stored in
// MarketState.
func EpochOf(timestamp uint64) uint64 {
	return timestamp >> 2
}

// NewMarketState validates and packs a market state.
func NewMarketState(borrowIndex *big.Int, epoch uint64, rateAtTarget uint64, unrealizedInterest *big.Int) (MarketState, error) {
	var s MarketState
	if err := marketBorrowIndex.setBig(&s.word, borrowIndex); err != nil {
		return MarketState{}, err
	}
	if err := marketEpoch.setUint64(&s.word, epoch); err != nil {
		return MarketState{}, err
	}
	if err := marketRateAtTarget.setUint64(&s.word, rateAtTarget); err != nil {
		return MarketState{}, err
	}
	if err := marketUnrealized.setBig(&s.word, unrealizedInterest); err != nil {
		return MarketState{}, err
	}
	return s, nil
}

// MarketStateFromBytes decodes a stored word. An empty slice decodes to the
// zero state.
func MarketStateFromBytes(b []byte) (MarketState, error) {
	w, err := wordFromBytes("market state", b)
	if err != nil {
		return MarketState{}, err
	}
	return MarketState{word: w}, nil
}

func (s MarketState) BorrowIndex() *big.Int { return marketBorrowIndex.getBig(&s.word) }
func (s MarketState) Epoch() uint64 { return marketEpoch.getUint64(&s.word) }
func (s MarketState) RateAtTarget() uint64 { return marketRateAtTarget.getUint64(&s.word) }
func (s MarketState) UnrealizedInterest() *big.Int { return marketUnrealized.getBig(&s.word) }

// Initialized reports whether the vault has been bootstrapped.
func (s MarketState) Initialized() bool {
	return marketBorrowIndex.getBig(&s.word).Sign() > 0
}

// WithBorrowIndex returns a copy carrying the new index. Decreasing the index
// is rejected.
func (s MarketState) WithBorrowIndex(index *big.Int) (MarketState, error) {
	if index == nil || index.Cmp(s.BorrowIndex()) < 0 {
		return MarketState{}, fmt.Errorf("%w: borrow index decreased", ErrArithmeticInconsistency)
	}
	out := s
	if err := marketBorrowIndex.setBig(&out.word, index); err != nil {
		return MarketState{}, err
	}
	return out, nil
}

func (s MarketState) WithEpoch(epoch uint64) (MarketState, error) {
	out := s
	if err := marketEpoch.setUint64(&out.word, epoch); err != nil {
		return MarketState{}, err
	}
	return out, nil
}

func (s MarketState) WithRateAtTarget(rate uint64) (MarketState, error) {
	out := s
	if err := marketRateAtTarget.setUint64(&out.word, rate); err != nil {
		return MarketState{}, err
	}
	return out, nil
}

func (s MarketState) WithUnrealizedInterest(amount *big.Int) (MarketState, error) {
	out := s
	if err := marketUnrealized.setBig(&out.word, amount); err != nil {
		return MarketState{}, err
	}
	return out, nil
}

// Bytes32 encodes the word big-endian.
func (s MarketState) Bytes32() [WordSize]byte { return s.word.Bytes32() }

func (s MarketState) String() string {
	return fmt.Sprintf("MarketState{borrowIndex=%s epoch=%d rateAtTarget=%d unrealizedInterest=%s}",
		s.BorrowIndex(), s.Epoch(), s.RateAtTarget(), s.UnrealizedInterest())
}
