package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func setAddress(attrs map[string]string, key string, addr common.Address) {
	if addr == (common.Address{}) {
		return
	}
	attrs[key] = addr.Hex()
}

func setAmount(attrs map[string]string, key string, amount *big.Int) {
	if amount == nil {
		return
	}
	attrs[key] = amount.String()
}
