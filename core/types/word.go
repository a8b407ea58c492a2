package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// WordSize is the encoded length of every packed record.
const WordSize = 32

// field locates a value inside a 256-bit word.
type field struct {
	name   string
	offset uint
	width  uint
}

func (f field) mask() *uint256.Int {
	if f.width >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	m := new(uint256.Int).Lsh(uint256.NewInt(1), f.width)
	return m.SubUint64(m, 1)
}

func (f field) get(w *uint256.Int) *uint256.Int {
	v := new(uint256.Int).Rsh(w, f.offset)
	return v.And(v, f.mask())
}

func (f field) set(w *uint256.Int, v *uint256.Int) error {
	if v.BitLen() > int(f.width) {
		return overflow(f.name, f.width)
	}
	keep := new(uint256.Int).Lsh(f.mask(), f.offset)
	keep.Not(keep)
	w.And(w, keep)
	w.Or(w, new(uint256.Int).Lsh(v, f.offset))
	return nil
}

func (f field) getUint64(w *uint256.Int) uint64 {
	return f.get(w).Uint64()
}

func (f field) setUint64(w *uint256.Int, v uint64) error {
	return f.set(w, uint256.NewInt(v))
}

func (f field) getBig(w *uint256.Int) *big.Int {
	return f.get(w).ToBig()
}

func (f field) setBig(w *uint256.Int, v *big.Int) error {
	if v == nil {
		return f.set(w, new(uint256.Int))
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrEncodingOverflow, f.name)
	}
	if v.BitLen() > int(f.width) {
		return overflow(f.name, f.width)
	}
	u, _ := uint256.FromBig(v)
	return f.set(w, u)
}

// getSigned decodes a two's complement value of the field's width.
func (f field) getSigned(w *uint256.Int) *big.Int {
	raw := f.getBig(w)
	if raw.Bit(int(f.width)-1) == 1 {
		raw.Sub(raw, new(big.Int).Lsh(big.NewInt(1), f.width))
	}
	return raw
}

func (f field) setSigned(w *uint256.Int, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), f.width-1)
	if v.Cmp(limit) >= 0 || v.Cmp(new(big.Int).Neg(limit)) < 0 {
		return overflow(f.name, f.width)
	}
	enc := new(big.Int).Set(v)
	if enc.Sign() < 0 {
		enc.Add(enc, new(big.Int).Lsh(limit, 1))
	}
	u, _ := uint256.FromBig(enc)
	return f.set(w, u)
}

func (f field) getInt64(w *uint256.Int) int64 {
	return f.getSigned(w).Int64()
}

func (f field) setInt64(w *uint256.Int, v int64) error {
	return f.setSigned(w, big.NewInt(v))
}

func wordFromBytes(kind string, b []byte) (uint256.Int, error) {
	var w uint256.Int
	if len(b) == 0 {
		return w, nil
	}
	if len(b) != WordSize {
		return w, fmt.Errorf("%s: expected %d bytes, got %d", kind, WordSize, len(b))
	}
	w.SetBytes32(b)
	return w, nil
}
