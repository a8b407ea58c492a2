package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vaultrisk/core/types"
	"vaultrisk/storage"
)

var (
	testVault   = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testOther   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestJournalCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	state, err := types.NewMarketState(types.WAD, 7, 42, big.NewInt(9))
	require.NoError(t, err)

	discarded := mgr.Begin()
	require.NoError(t, discarded.PutMarketState(testVault, state))
	got, err := discarded.MarketState(testVault)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.RateAtTarget())
	discarded.Discard()
	require.Equal(t, 0, db.Len())

	journal := mgr.Begin()
	require.NoError(t, journal.PutMarketState(testVault, state))
	require.Equal(t, 0, db.Len())
	require.NoError(t, journal.Commit())
	require.Equal(t, 1, db.Len())
	require.Error(t, journal.Commit())

	view := mgr.View()
	stored, err := view.MarketState(testVault)
	require.NoError(t, err)
	require.Equal(t, state.Bytes32(), stored.Bytes32())
}

func TestZeroWordsAreDeleted(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	journal := mgr.Begin()
	totals, err := types.NewLeftRightUnsigned(big.NewInt(5), big.NewInt(6))
	require.NoError(t, err)
	require.NoError(t, journal.PutVaultTotals(testVault, totals))
	require.NoError(t, journal.Commit())
	require.Equal(t, 1, db.Len())

	journal = mgr.Begin()
	require.NoError(t, journal.PutVaultTotals(testVault, types.LeftRightUnsigned{}))
	require.NoError(t, journal.Commit())
	require.Equal(t, 0, db.Len())

	empty, err := mgr.View().VaultTotals(testVault)
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}

func TestOpenPositionIndex(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	journal := mgr.Begin()

	keys, err := journal.OpenPositions(testAccount)
	require.NoError(t, err)
	require.Empty(t, keys)

	want := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	require.NoError(t, journal.PutOpenPositions(testAccount, want))
	require.NoError(t, journal.Commit())

	got, err := mgr.View().OpenPositions(testAccount)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLedgerMintBurnTransfer(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	journal := mgr.Begin()

	require.NoError(t, journal.Mint(testVault, testAccount, big.NewInt(100)))
	require.NoError(t, journal.Transfer(testVault, testAccount, testOther, big.NewInt(40)))
	require.NoError(t, journal.Burn(testVault, testOther, big.NewInt(10)))

	supply, err := journal.TotalSupply(testVault)
	require.NoError(t, err)
	require.Equal(t, int64(90), supply.Int64())

	a, err := journal.BalanceOf(testVault, testAccount)
	require.NoError(t, err)
	require.Equal(t, int64(60), a.Int64())
	b, err := journal.BalanceOf(testVault, testOther)
	require.NoError(t, err)
	require.Equal(t, int64(30), b.Int64())

	err = journal.Burn(testVault, testOther, big.NewInt(31))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	err = journal.Transfer(testVault, testAccount, testOther, big.NewInt(61))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestPositionBalanceLifecycle(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	journal := mgr.Begin()
	key := common.HexToHash("0xabc")

	bal, err := types.NewPositionBalance(big.NewInt(10), types.PositionSnapshot{Utilization0: 5_000, Tick: -20})
	require.NoError(t, err)
	require.NoError(t, journal.PutPositionBalance(testAccount, key, bal))

	got, err := journal.PositionBalance(testAccount, key)
	require.NoError(t, err)
	require.Equal(t, int32(-20), got.Snapshot().Tick)

	require.NoError(t, journal.DeletePositionBalance(testAccount, key))
	got, err = journal.PositionBalance(testAccount, key)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}
