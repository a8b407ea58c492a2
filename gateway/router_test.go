package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vaultrisk/core/types"
	"vaultrisk/native/pool"
)

type fakeReader struct {
	vaults  [2]pool.VaultSnapshot
	account pool.AccountSnapshot
	err     error
	asked   common.Address
}

func (f *fakeReader) Vaults(context.Context) ([2]pool.VaultSnapshot, error) {
	return f.vaults, f.err
}

func (f *fakeReader) Account(_ context.Context, account common.Address) (pool.AccountSnapshot, error) {
	f.asked = account
	out := f.account
	out.Account = account
	return out, f.err
}

func newTestHandler(t *testing.T, reader Reader, limit RateLimit) http.Handler {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h, err := New(reader, Config{ServiceName: "vaultrisk-test", RateLimit: limit, Metrics: metrics})
	require.NoError(t, err)
	return h
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresReader(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(t, &fakeReader{}, RateLimit{RequestsPerMinute: 60, Burst: 5})

	rec := get(h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")
}

func TestVaultsView(t *testing.T) {
	market, err := types.NewMarketState(big.NewInt(1_000_000_000_000_000_000), 42, 400, big.NewInt(7))
	require.NoError(t, err)
	reader := &fakeReader{}
	reader.vaults[0] = pool.VaultSnapshot{
		Vault:       common.HexToAddress("0xa0"),
		Market:      market,
		Deposited:   big.NewInt(900),
		InAMM:       big.NewInt(100),
		TotalAssets: big.NewInt(1_000),
		TotalSupply: big.NewInt(1_000_000),
		Utilization: 1_000,
	}
	reader.vaults[1] = pool.VaultSnapshot{Vault: common.HexToAddress("0xa1"), Market: market}

	rec := get(newTestHandler(t, reader, RateLimit{}), "/vaults")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views [2]VaultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Equal(t, common.HexToAddress("0xa0").Hex(), views[0].Vault)
	require.Equal(t, "1000", views[0].TotalAssets)
	require.Equal(t, "100", views[0].InAMM)
	require.Equal(t, uint64(1_000), views[0].Utilization)
	require.Equal(t, uint64(42), views[0].Market.Epoch)
	require.Equal(t, "7", views[0].Market.UnrealizedInterest)
	require.Equal(t, "0", views[1].Deposited)
}

func TestAccountView(t *testing.T) {
	key := common.HexToHash("0x01")
	reader := &fakeReader{account: pool.AccountSnapshot{
		Shares:     [2]*big.Int{big.NewInt(5), big.NewInt(6)},
		Assets:     [2]*big.Int{big.NewInt(50), big.NewInt(60)},
		NetBorrows: [2]*big.Int{big.NewInt(0), big.NewInt(3)},
		Open:       []common.Hash{key},
	}}
	h := newTestHandler(t, reader, RateLimit{})
	addr := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	rec := get(h, "/accounts/"+addr.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, addr, reader.asked)

	var view AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, [2]string{"5", "6"}, view.Shares)
	require.Equal(t, [2]string{"0", "3"}, view.NetBorrows)
	require.Equal(t, []string{key.Hex()}, view.Positions)
}

func TestAccountRejectsBadAddress(t *testing.T) {
	rec := get(newTestHandler(t, &fakeReader{}, RateLimit{}), "/accounts/treasury")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReaderErrorsSurfaceAsServerErrors(t *testing.T) {
	reader := &fakeReader{err: errors.New("store closed")}
	rec := get(newTestHandler(t, reader, RateLimit{}), "/vaults")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "store closed", body["error"])
}

func TestRateLimitPerClient(t *testing.T) {
	h := newTestHandler(t, &fakeReader{}, RateLimit{RequestsPerMinute: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(h, "/vaults").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(h, "/vaults").Code)

	// Health checks are not limited.
	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)

	req := httptest.NewRequest(http.MethodGet, "/vaults", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "192.0.2.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.allow("a"))
	require.False(t, limiter.allow("a"))
	require.Len(t, limiter.visitors, 1)

	now = now.Add(limiter.idleTTL + time.Second)
	require.True(t, limiter.allow("b"))
	require.Len(t, limiter.visitors, 1)
}
