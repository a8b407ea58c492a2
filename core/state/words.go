package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"vaultrisk/core/types"
)

type word interface {
	Bytes32() [types.WordSize]byte
}

// putWord stores a packed word, deleting the key for the zero word.
func (j *Journal) putWord(key []byte, w word) {
	encoded := w.Bytes32()
	if encoded == ([types.WordSize]byte{}) {
		j.del(key)
		return
	}
	j.put(key, encoded[:])
}

func (j *Journal) MarketState(vault common.Address) (types.MarketState, error) {
	data, err := j.get(vaultKey(marketPrefix, vault))
	if err != nil {
		return types.MarketState{}, err
	}
	return types.MarketStateFromBytes(data)
}

func (j *Journal) PutMarketState(vault common.Address, s types.MarketState) error {
	j.putWord(vaultKey(marketPrefix, vault), s)
	return nil
}

// VaultTotals returns depositedAssets (right) and assetsInAMM (left).
func (j *Journal) VaultTotals(vault common.Address) (types.LeftRightUnsigned, error) {
	data, err := j.get(vaultKey(totalsPrefix, vault))
	if err != nil {
		return types.LeftRightUnsigned{}, err
	}
	return types.LeftRightUnsignedFromBytes(data)
}

func (j *Journal) PutVaultTotals(vault common.Address, totals types.LeftRightUnsigned) error {
	j.putWord(vaultKey(totalsPrefix, vault), totals)
	return nil
}

func (j *Journal) InterestState(vault, account common.Address) (types.LeftRightSigned, error) {
	data, err := j.get(accountKey(interestPrefix, vault, account))
	if err != nil {
		return types.LeftRightSigned{}, err
	}
	return types.LeftRightSignedFromBytes(data)
}

func (j *Journal) PutInterestState(vault, account common.Address, s types.LeftRightSigned) error {
	j.putWord(accountKey(interestPrefix, vault, account), s)
	return nil
}

func (j *Journal) PositionBalance(account common.Address, key common.Hash) (types.PositionBalance, error) {
	data, err := j.get(positionKey(account, key))
	if err != nil {
		return types.PositionBalance{}, err
	}
	return types.PositionBalanceFromBytes(data)
}

func (j *Journal) PutPositionBalance(account common.Address, key common.Hash, b types.PositionBalance) error {
	j.putWord(positionKey(account, key), b)
	return nil
}

func (j *Journal) DeletePositionBalance(account common.Address, key common.Hash) error {
	j.del(positionKey(account, key))
	return nil
}

func (j *Journal) PositionsHash(account common.Address) (types.PositionsHash, error) {
	data, err := j.get(compositeKey(positionsHashKey, account.Bytes()))
	if err != nil {
		return types.PositionsHash{}, err
	}
	return types.PositionsHashFromBytes(data)
}

func (j *Journal) PutPositionsHash(account common.Address, h types.PositionsHash) error {
	j.putWord(compositeKey(positionsHashKey, account.Bytes()), h)
	return nil
}

// OpenPositions returns the RLP-encoded index of the account's open keys.
func (j *Journal) OpenPositions(account common.Address) ([]common.Hash, error) {
	data, err := j.get(compositeKey(positionIndexKey, account.Bytes()))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []common.Hash{}, nil
	}
	var keys []common.Hash
	if err := rlp.DecodeBytes(data, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (j *Journal) PutOpenPositions(account common.Address, keys []common.Hash) error {
	key := compositeKey(positionIndexKey, account.Bytes())
	if len(keys) == 0 {
		j.del(key)
		return nil
	}
	encoded, err := rlp.EncodeToBytes(keys)
	if err != nil {
		return err
	}
	j.put(key, encoded)
	return nil
}

// RiskParameters returns the stored parameter word. Unset parameters decode
// to the zero word.
func (j *Journal) RiskParameters() (types.RiskParameters, error) {
	data, err := j.get(riskParametersKey)
	if err != nil {
		return types.RiskParameters{}, err
	}
	return types.RiskParametersFromBytes(data)
}

func (j *Journal) PutRiskParameters(p types.RiskParameters) error {
	j.putWord(riskParametersKey, p)
	return nil
}

func (j *Journal) getAmount(key []byte) (*big.Int, error) {
	data, err := j.get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).SetBytes(data), nil
}

func (j *Journal) putAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		j.del(key)
		return nil
	}
	u, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return types.ErrEncodingOverflow
	}
	j.putWord(key, u)
	return nil
}
