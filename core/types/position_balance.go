package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	balanceSize      = field{name: "positionSize", offset: 0, width: 128}
	balanceUtil0     = field{name: "utilization0", offset: 128, width: 16}
	balanceUtil1     = field{name: "utilization1", offset: 144, width: 16}
	balanceTick      = field{name: "tickAtMint", offset: 160, width: 24}
	balanceTWAPTick  = field{name: "twapTickAtMint", offset: 184, width: 24}
	balanceTimestamp = field{name: "timestampAtMint", offset: 208, width: 32}
)

// PositionBalance records the size of an open position and the market
// snapshot taken when it was opened. Requirements are always evaluated with
// the utilisation captured here.
type PositionBalance struct {
	word uint256.Int
}

// PositionSnapshot groups the open-time values packed next to the size.
type PositionSnapshot struct {
	Utilization0 uint64
	Utilization1 uint64
	Tick         int32
	TWAPTick     int32
	Timestamp    uint64
}

// NewPositionBalance validates and packs a balance. Utilisation values are in
// DECIMALS and may not exceed it.
func NewPositionBalance(size *big.Int, snap PositionSnapshot) (PositionBalance, error) {
	if size == nil || size.Sign() <= 0 {
		return PositionBalance{}, fmt.Errorf("%w: position size must be positive", ErrInvalidPosition)
	}
	if snap.Utilization0 > Decimals || snap.Utilization1 > Decimals {
		return PositionBalance{}, fmt.Errorf("%w: utilisation above %d", ErrEncodingOverflow, Decimals)
	}
	var b PositionBalance
	if err := balanceSize.setBig(&b.word, size); err != nil {
		return PositionBalance{}, err
	}
	if err := balanceUtil0.setUint64(&b.word, snap.Utilization0); err != nil {
		return PositionBalance{}, err
	}
	if err := balanceUtil1.setUint64(&b.word, snap.Utilization1); err != nil {
		return PositionBalance{}, err
	}
	if err := balanceTick.setInt64(&b.word, int64(snap.Tick)); err != nil {
		return PositionBalance{}, err
	}
	if err := balanceTWAPTick.setInt64(&b.word, int64(snap.TWAPTick)); err != nil {
		return PositionBalance{}, err
	}
	if err := balanceTimestamp.setUint64(&b.word, snap.Timestamp); err != nil {
		return PositionBalance{}, err
	}
	return b, nil
}

// PositionBalanceFromBytes decodes a stored word.
func PositionBalanceFromBytes(b []byte) (PositionBalance, error) {
	w, err := wordFromBytes("position balance", b)
	if err != nil {
		return PositionBalance{}, err
	}
	return PositionBalance{word: w}, nil
}

func (b PositionBalance) Size() *big.Int { return balanceSize.getBig(&b.word) }

// Utilization returns the open-time utilisation of the given token's vault.
func (b PositionBalance) Utilization(token uint8) uint64 {
	if token == 0 {
		return balanceUtil0.getUint64(&b.word)
	}
	return balanceUtil1.getUint64(&b.word)
}

func (b PositionBalance) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		Utilization0: balanceUtil0.getUint64(&b.word),
		Utilization1: balanceUtil1.getUint64(&b.word),
		Tick:         int32(balanceTick.getInt64(&b.word)),
		TWAPTick:     int32(balanceTWAPTick.getInt64(&b.word)),
		Timestamp:    balanceTimestamp.getUint64(&b.word),
	}
}

// IsZero reports whether the balance is the closed (empty) record.
func (b PositionBalance) IsZero() bool { return b.word.IsZero() }

func (b PositionBalance) Bytes32() [WordSize]byte { return b.word.Bytes32() }

func (b PositionBalance) String() string {
	snap := b.Snapshot()
	return fmt.Sprintf("PositionBalance{size=%s util0=%d util1=%d tick=%d twapTick=%d timestamp=%d}",
		b.Size(), snap.Utilization0, snap.Utilization1, snap.Tick, snap.TWAPTick, snap.Timestamp)
}
