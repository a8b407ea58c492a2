package types

import (
	"errors"
	"fmt"
)

var (
	// ErrEncodingOverflow is returned when a value does not fit the bit width
	// reserved for it in a packed word.
	ErrEncodingOverflow = errors.New("packed: encoding overflow")
	// ErrArithmeticInconsistency flags an intermediate result that violates an
	// accounting invariant, such as a decreasing borrow index.
	ErrArithmeticInconsistency = errors.New("risk: arithmetic inconsistency")
	// ErrInsufficientBalance is returned when an account cannot cover a
	// payment from its share balance.
	ErrInsufficientBalance = errors.New("risk: insufficient balance")
	// ErrDuplicatePositionKey is returned when a position key appears more
	// than once within one request.
	ErrDuplicatePositionKey = errors.New("risk: duplicate position key")
	// ErrStaleOracle is returned when the current and time-weighted ticks
	// diverge beyond the liquidation tolerance.
	ErrStaleOracle = errors.New("risk: stale oracle")
	// ErrUnsafePrice is returned when an opening is attempted while the
	// oracle snapshot is not healthy.
	ErrUnsafePrice = errors.New("risk: unsafe price")

	ErrPositionAlreadyOpen  = errors.New("risk: position already open")
	ErrPositionNotOpen      = errors.New("risk: position not open")
	ErrPositionListMismatch = errors.New("risk: position list does not match stored hash")
	ErrInvalidPosition      = errors.New("risk: invalid position")
	ErrInvalidParameters    = errors.New("risk: invalid parameters")
	ErrAccountInsolvent     = errors.New("risk: account insolvent")
	ErrNotLiquidatable      = errors.New("risk: account not liquidatable")
)

func overflow(field string, width uint) error {
	return fmt.Errorf("%w: %s exceeds %d bits", ErrEncodingOverflow, field, width)
}
