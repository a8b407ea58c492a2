package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Token slots. The right slot carries token0 and the left slot token1.
const (
	Token0 uint8 = 0
	Token1 uint8 = 1
)

var (
	signedRight   = field{name: "right", offset: 0, width: 128}
	signedLeft    = field{name: "left", offset: 128, width: 128}
	unsignedRight = field{name: "right", offset: 0, width: 128}
	unsignedLeft  = field{name: "left", offset: 128, width: 128}
)

// LeftRightSigned packs two int128 values into one word.
type LeftRightSigned struct {
	word uint256.Int
}

func NewLeftRightSigned(right, left *big.Int) (LeftRightSigned, error) {
	var v LeftRightSigned
	if err := signedRight.setSigned(&v.word, right); err != nil {
		return LeftRightSigned{}, err
	}
	if err := signedLeft.setSigned(&v.word, left); err != nil {
		return LeftRightSigned{}, err
	}
	return v, nil
}

// MustLeftRightSigned panics when either value overflows. Intended for
// constants and tests.
func MustLeftRightSigned(right, left int64) LeftRightSigned {
	v, err := NewLeftRightSigned(big.NewInt(right), big.NewInt(left))
	if err != nil {
		panic(err)
	}
	return v
}

func LeftRightSignedFromBytes(b []byte) (LeftRightSigned, error) {
	w, err := wordFromBytes("left-right signed", b)
	if err != nil {
		return LeftRightSigned{}, err
	}
	return LeftRightSigned{word: w}, nil
}

func (v LeftRightSigned) Right() *big.Int { return signedRight.getSigned(&v.word) }
func (v LeftRightSigned) Left() *big.Int { return signedLeft.getSigned(&v.word) }

// Slot returns the value for the given token.
func (v LeftRightSigned) Slot(token uint8) *big.Int {
	if token == Token0 {
		return v.Right()
	}
	return v.Left()
}

func (v LeftRightSigned) WithSlot(token uint8, value *big.Int) (LeftRightSigned, error) {
	out := v
	f := signedLeft
	if token == Token0 {
		f = signedRight
	}
	if err := f.setSigned(&out.word, value); err != nil {
		return LeftRightSigned{}, err
	}
	return out, nil
}

// Add sums both slots independently, rejecting overflow of either.
func (v LeftRightSigned) Add(o LeftRightSigned) (LeftRightSigned, error) {
	return NewLeftRightSigned(
		new(big.Int).Add(v.Right(), o.Right()),
		new(big.Int).Add(v.Left(), o.Left()),
	)
}

func (v LeftRightSigned) Sub(o LeftRightSigned) (LeftRightSigned, error) {
	return NewLeftRightSigned(
		new(big.Int).Sub(v.Right(), o.Right()),
		new(big.Int).Sub(v.Left(), o.Left()),
	)
}

func (v LeftRightSigned) IsZero() bool { return v.word.IsZero() }

func (v LeftRightSigned) Bytes32() [WordSize]byte { return v.word.Bytes32() }

func (v LeftRightSigned) String() string {
	return fmt.Sprintf("{right=%s left=%s}", v.Right(), v.Left())
}

// LeftRightUnsigned packs two uint128 values into one word.
type LeftRightUnsigned struct {
	word uint256.Int
}

func NewLeftRightUnsigned(right, left *big.Int) (LeftRightUnsigned, error) {
	var v LeftRightUnsigned
	if err := unsignedRight.setBig(&v.word, right); err != nil {
		return LeftRightUnsigned{}, err
	}
	if err := unsignedLeft.setBig(&v.word, left); err != nil {
		return LeftRightUnsigned{}, err
	}
	return v, nil
}

func LeftRightUnsignedFromBytes(b []byte) (LeftRightUnsigned, error) {
	w, err := wordFromBytes("left-right unsigned", b)
	if err != nil {
		return LeftRightUnsigned{}, err
	}
	return LeftRightUnsigned{word: w}, nil
}

func (v LeftRightUnsigned) Right() *big.Int { return unsignedRight.getBig(&v.word) }
func (v LeftRightUnsigned) Left() *big.Int { return unsignedLeft.getBig(&v.word) }

func (v LeftRightUnsigned) Slot(token uint8) *big.Int {
	if token == Token0 {
		return v.Right()
	}
	return v.Left()
}

func (v LeftRightUnsigned) WithSlot(token uint8, value *big.Int) (LeftRightUnsigned, error) {
	out := v
	f := unsignedLeft
	if token == Token0 {
		f = unsignedRight
	}
	if err := f.setBig(&out.word, value); err != nil {
		return LeftRightUnsigned{}, err
	}
	return out, nil
}

// Add sums both slots, rejecting overflow.
func (v LeftRightUnsigned) Add(o LeftRightUnsigned) (LeftRightUnsigned, error) {
	return NewLeftRightUnsigned(
		new(big.Int).Add(v.Right(), o.Right()),
		new(big.Int).Add(v.Left(), o.Left()),
	)
}

// Sub subtracts both slots; a negative result is an arithmetic inconsistency.
func (v LeftRightUnsigned) Sub(o LeftRightUnsigned) (LeftRightUnsigned, error) {
	right := new(big.Int).Sub(v.Right(), o.Right())
	left := new(big.Int).Sub(v.Left(), o.Left())
	if right.Sign() < 0 || left.Sign() < 0 {
		return LeftRightUnsigned{}, fmt.Errorf("%w: unsigned slot underflow", ErrArithmeticInconsistency)
	}
	return NewLeftRightUnsigned(right, left)
}

func (v LeftRightUnsigned) IsZero() bool { return v.word.IsZero() }

func (v LeftRightUnsigned) Bytes32() [WordSize]byte { return v.word.Bytes32() }

func (v LeftRightUnsigned) String() string {
	return fmt.Sprintf("{right=%s left=%s}", v.Right(), v.Left())
}
