package collateral

import (
	"errors"
	"fmt"
)

var (
	ErrNilState              = errors.New("collateral: state not configured")
	ErrVaultNotInitialized   = errors.New("collateral: vault not initialised")
	ErrVaultInitialized      = errors.New("collateral: vault already initialised")
	ErrInvalidAmount         = errors.New("collateral: amount must be positive")
	ErrInsufficientLiquidity = errors.New("collateral: insufficient vault liquidity")
	ErrZeroShares            = errors.New("collateral: deposit rounds to zero shares")
	ErrInvalidModel          = errors.New("collateral: invalid interest model")
)

func errInvalidModel(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, reason)
}
