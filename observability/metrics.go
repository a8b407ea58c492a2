package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	riskMetricsOnce sync.Once
	riskRegistry    *RiskEngineMetrics
)

// RiskEngineMetrics captures request outcomes and vault health for the pool
// engine.
type RiskEngineMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	utilization  *prometheus.GaugeVec
	totalAssets  *prometheus.GaugeVec
	bonusMinted  *prometheus.CounterVec
	pauseEngaged prometheus.Gauge
}

// RiskEngine returns the singleton metrics registry for the pool engine.
func RiskEngine() *RiskEngineMetrics {
	riskMetricsOnce.Do(func() {
		riskRegistry = &RiskEngineMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultrisk",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Count of engine requests segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vaultrisk",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for engine requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultrisk",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of rejected engine requests segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vaultrisk",
				Subsystem: "vault",
				Name:      "utilization",
				Help:      "Share of vault assets deployed to the AMM (0-1).",
			}, []string{"vault"}),
			totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vaultrisk",
				Subsystem: "vault",
				Name:      "total_assets",
				Help:      "Vault assets including AMM deployments and unrealized interest.",
			}, []string{"vault"}),
			bonusMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultrisk",
				Subsystem: "liquidation",
				Name:      "bonus_minted_total",
				Help:      "Liquidation bonus funded by diluting depositors, in vault assets.",
			}, []string{"vault"}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vaultrisk",
				Subsystem: "engine",
				Name:      "pause_engaged",
				Help:      "Indicates whether any engine module is paused (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			riskRegistry.requests,
			riskRegistry.latency,
			riskRegistry.errors,
			riskRegistry.utilization,
			riskRegistry.totalAssets,
			riskRegistry.bonusMinted,
			riskRegistry.pauseEngaged,
		)
	})
	return riskRegistry
}

// Observe records the execution metrics for an engine operation.
func (m *RiskEngineMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, reasonOf(err)).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordVault updates the utilisation (in basis points of 10_000) and asset
// gauges of a vault.
func (m *RiskEngineMetrics) RecordVault(vault string, utilization uint64, totalAssets *big.Int) {
	if m == nil {
		return
	}
	label := labelVault(vault)
	m.utilization.WithLabelValues(label).Set(float64(utilization) / 10_000)
	m.totalAssets.WithLabelValues(label).Set(bigToFloat(totalAssets))
}

// RecordBonusMinted adds the diluted part of a liquidation bonus.
func (m *RiskEngineMetrics) RecordBonusMinted(vault string, assets *big.Int) {
	if m == nil || assets == nil || assets.Sign() <= 0 {
		return
	}
	m.bonusMinted.WithLabelValues(labelVault(vault)).Add(bigToFloat(assets))
}

// SetPause toggles the pause_engaged gauge.
func (m *RiskEngineMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

// reasonOf keeps the sentinel prefix of a wrapped error so the label set
// stays bounded.
func reasonOf(err error) string {
	reason := strings.TrimSpace(err.Error())
	if head, _, found := strings.Cut(reason, ":"); found {
		if next, _, ok := strings.Cut(strings.TrimPrefix(reason, head+":"), ":"); ok {
			reason = head + ":" + next
		}
	}
	if reason == "" {
		return "unknown"
	}
	return reason
}

func labelVault(vault string) string {
	trimmed := strings.TrimSpace(vault)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
