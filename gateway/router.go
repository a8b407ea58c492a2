package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vaultrisk/native/pool"
)

// Reader is the read-only view of a pool the gateway serves.
type Reader interface {
	Vaults(ctx context.Context) ([2]pool.VaultSnapshot, error)
	Account(ctx context.Context, account common.Address) (pool.AccountSnapshot, error)
}

type Config struct {
	ServiceName string
	RateLimit   RateLimit
	// Metrics serves /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler
	Logger  *slog.Logger
}

type handlers struct {
	reader Reader
	logger *slog.Logger
}

// New builds the operator HTTP surface: health, metrics and read-only vault
// and account views. Every request is traced.
func New(reader Reader, cfg Config) (http.Handler, error) {
	if reader == nil {
		return nil, errors.New("gateway: reader required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vaultrisk"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{reader: reader, logger: cfg.Logger}
	limiter := NewRateLimiter(cfg.RateLimit)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", cfg.Metrics)
	r.Group(func(api chi.Router) {
		api.Use(limiter.Middleware)
		api.Get("/vaults", h.vaults)
		api.Get("/accounts/{address}", h.account)
	})
	return otelhttp.NewHandler(r, cfg.ServiceName), nil
}

func (h *handlers) vaults(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.reader.Vaults(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, [2]VaultView{NewVaultView(snaps[0]), NewVaultView(snaps[1])})
}

func (h *handlers) account(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		h.fail(w, r, http.StatusBadRequest, errors.New("invalid account address"))
		return
	}
	snap, err := h.reader.Account(r.Context(), common.HexToAddress(raw))
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAccountView(snap))
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.logger.WarnContext(r.Context(), "gateway request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
