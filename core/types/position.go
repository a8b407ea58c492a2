package types

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	// MinTick and MaxTick bound the AMM price range.
	MinTick int32 = -887272
	MaxTick int32 = 887272

	MaxLegsPerPosition = 4
	MaxOptionRatio     = 127
	MaxWidth           = 4095
)

// Leg is one option leg decoded from a position identifier.
type Leg struct {
	Asset       uint8
	OptionRatio uint8
	IsLong      bool
	TokenType   uint8
	RiskPartner uint8
	Strike      int32
	Width       int32
}

// TickRange returns the liquidity range backing the leg.
func (l Leg) TickRange(tickSpacing int32) (int32, int32) {
	span := l.Width * tickSpacing
	lower := l.Strike - span/2
	return lower, lower + span
}

// Contracts is the number of asset-denominated contracts the leg controls for
// the given position size.
func (l Leg) Contracts(size *big.Int) *big.Int {
	return new(big.Int).Mul(size, big.NewInt(int64(l.OptionRatio)))
}

// Position is an ordered set of legs identified by its key.
type Position struct {
	Legs []Leg
}

// Key hashes the canonical leg encoding.
func (p Position) Key() common.Hash {
	buf := make([]byte, 0, len(p.Legs)*11)
	for _, leg := range p.Legs {
		var long byte
		if leg.IsLong {
			long = 1
		}
		buf = append(buf, leg.Asset, leg.OptionRatio, long, leg.TokenType, leg.RiskPartner)
		buf = binary.BigEndian.AppendUint32(buf, uint32(leg.Strike))
		buf = binary.BigEndian.AppendUint16(buf, uint16(leg.Width))
	}
	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

// SpreadPartner reports whether legs i and its partner form a spread: same
// token type, opposite direction. A partner index outside the position is
// never a spread.
func (p Position) SpreadPartner(i int) (int, bool) {
	if i < 0 || i >= len(p.Legs) {
		return i, false
	}
	j := int(p.Legs[i].RiskPartner)
	if j == i || j >= len(p.Legs) {
		return i, false
	}
	a, b := p.Legs[i], p.Legs[j]
	return j, a.TokenType == b.TokenType && a.IsLong != b.IsLong
}

// Validate checks leg structure, partner symmetry and range bounds.
func (p Position) Validate(tickSpacing int32, maxSpread uint64) error {
	if len(p.Legs) == 0 || len(p.Legs) > MaxLegsPerPosition {
		return fmt.Errorf("%w: %d legs", ErrInvalidPosition, len(p.Legs))
	}
	if tickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidParameters, tickSpacing)
	}
	for i, leg := range p.Legs {
		if leg.Asset > Token1 || leg.TokenType > Token1 {
			return fmt.Errorf("%w: leg %d token out of range", ErrInvalidPosition, i)
		}
		if leg.OptionRatio == 0 || leg.OptionRatio > MaxOptionRatio {
			return fmt.Errorf("%w: leg %d option ratio %d", ErrInvalidPosition, i, leg.OptionRatio)
		}
		if leg.Width <= 0 || leg.Width > MaxWidth {
			return fmt.Errorf("%w: leg %d width %d", ErrInvalidPosition, i, leg.Width)
		}
		lower, upper := leg.TickRange(tickSpacing)
		if lower < MinTick || upper > MaxTick {
			return fmt.Errorf("%w: leg %d range [%d,%d] out of bounds", ErrInvalidPosition, i, lower, upper)
		}
		j := int(leg.RiskPartner)
		if j >= len(p.Legs) {
			return fmt.Errorf("%w: leg %d partner %d", ErrInvalidPosition, i, j)
		}
		if j == i {
			continue
		}
		partner := p.Legs[j]
		if int(partner.RiskPartner) != i {
			return fmt.Errorf("%w: leg %d partner is not mutual", ErrInvalidPosition, i)
		}
		if partner.Asset != leg.Asset || partner.OptionRatio != leg.OptionRatio {
			return fmt.Errorf("%w: leg %d partner differs in asset or ratio", ErrInvalidPosition, i)
		}
		if _, spread := p.SpreadPartner(i); !spread {
			return fmt.Errorf("%w: leg %d partner does not form a spread", ErrInvalidPosition, i)
		}
		if maxSpread > 0 {
			distance := int64(leg.Strike) - int64(partner.Strike)
			if distance < 0 {
				distance = -distance
			}
			if uint64(distance) > maxSpread {
				return fmt.Errorf("%w: leg %d spread width %d above %d", ErrInvalidPosition, i, distance, maxSpread)
			}
		}
	}
	return nil
}

// CheckUniqueKeys rejects any key that appears more than once.
func CheckUniqueKeys(keys []common.Hash) error {
	seen := make(map[common.Hash]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePositionKey, key.Hex())
		}
		seen[key] = struct{}{}
	}
	return nil
}

var (
	hashFingerprint = field{name: "fingerprint", offset: 0, width: 248}
	hashLegCount    = field{name: "legCount", offset: 248, width: 8}
)

// PositionsHash fingerprints an account's open positions: the XOR of each key
// hash in the low 248 bits and the open leg count in the top 8 bits.
type PositionsHash struct {
	word uint256.Int
}

func PositionsHashFromBytes(b []byte) (PositionsHash, error) {
	w, err := wordFromBytes("positions hash", b)
	if err != nil {
		return PositionsHash{}, err
	}
	return PositionsHash{word: w}, nil
}

// ComputePositionsHash builds the fingerprint of a list. Duplicate keys are
// rejected since they would cancel out.
func ComputePositionsHash(positions []Position) (PositionsHash, error) {
	keys := make([]common.Hash, len(positions))
	for i, pos := range positions {
		keys[i] = pos.Key()
	}
	if err := CheckUniqueKeys(keys); err != nil {
		return PositionsHash{}, err
	}
	var h PositionsHash
	var err error
	for i, pos := range positions {
		if h, err = h.Add(keys[i], len(pos.Legs)); err != nil {
			return PositionsHash{}, err
		}
	}
	return h, nil
}

func (h PositionsHash) LegCount() uint64 { return hashLegCount.getUint64(&h.word) }

// Add toggles a key into the fingerprint and counts its legs.
func (h PositionsHash) Add(key common.Hash, legs int) (PositionsHash, error) {
	return h.toggle(key, int64(legs))
}

// Remove toggles a key out of the fingerprint.
func (h PositionsHash) Remove(key common.Hash, legs int) (PositionsHash, error) {
	return h.toggle(key, -int64(legs))
}

func (h PositionsHash) toggle(key common.Hash, legs int64) (PositionsHash, error) {
	count := int64(h.LegCount()) + legs
	if count < 0 {
		return PositionsHash{}, fmt.Errorf("%w: negative leg count", ErrArithmeticInconsistency)
	}
	out := h
	if err := hashLegCount.setUint64(&out.word, uint64(count)); err != nil {
		return PositionsHash{}, err
	}
	keyHash := new(uint256.Int).SetBytes32(ethcrypto.Keccak256(key.Bytes()))
	fp := hashFingerprint.get(&out.word)
	fp.Xor(fp, keyHash.And(keyHash, hashFingerprint.mask()))
	if err := hashFingerprint.set(&out.word, fp); err != nil {
		return PositionsHash{}, err
	}
	return out, nil
}

func (h PositionsHash) Equal(o PositionsHash) bool { return h.word.Eq(&o.word) }

func (h PositionsHash) Bytes32() [WordSize]byte { return h.word.Bytes32() }
