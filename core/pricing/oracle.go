package pricing

import (
	"fmt"
	"math/big"

	"vaultrisk/core/types"
)

// PriceStatus captures the health classification assigned to an oracle
// snapshot.
type PriceStatus string

const (
	// PriceStatusOK indicates the snapshot passed all configured guardrails.
	PriceStatusOK PriceStatus = "ok"
	// PriceStatusStale signals the observation is older than the freshness window.
	PriceStatusStale PriceStatus = "stale"
	// PriceStatusDeviant indicates the current tick deviates from the TWAP
	// beyond the configured threshold.
	PriceStatusDeviant PriceStatus = "deviant"
)

// Snapshot is the oracle input fixed at the start of a request.
type Snapshot struct {
	CurrentTick int32
	TWAPTick    int32
	// ObservedAt is the unix time of the TWAP observation.
	ObservedAt uint64
}

// Validate checks both ticks are inside the AMM range.
func (s Snapshot) Validate() error {
	for _, tick := range []int32{s.CurrentTick, s.TWAPTick} {
		if tick < types.MinTick || tick > types.MaxTick {
			return fmt.Errorf("pricing: tick %d out of range", tick)
		}
	}
	return nil
}

// Deviation is |current - twap| in ticks.
func (s Snapshot) Deviation() uint64 {
	d := int64(s.CurrentTick) - int64(s.TWAPTick)
	if d < 0 {
		d = -d
	}
	return uint64(d)
}

// Ticks returns the distinct ticks a conservative check must cover.
func (s Snapshot) Ticks() []int32 {
	if s.CurrentTick == s.TWAPTick {
		return []int32{s.CurrentTick}
	}
	return []int32{s.CurrentTick, s.TWAPTick}
}

// SqrtPrices returns the Q64.96 prices at the current and TWAP ticks.
func (s Snapshot) SqrtPrices() (*big.Int, *big.Int, error) {
	current, err := SqrtRatioAtTick(s.CurrentTick)
	if err != nil {
		return nil, nil, err
	}
	twap, err := SqrtRatioAtTick(s.TWAPTick)
	if err != nil {
		return nil, nil, err
	}
	return current, twap, nil
}

// Guard classifies snapshots against a deviation threshold and freshness
// window. A zero MaxAge disables the freshness check.
type Guard struct {
	MaxTickDelta uint64
	MaxAge       uint64
}

// Classify returns the status of the snapshot at time now.
func (g Guard) Classify(s Snapshot, now uint64) PriceStatus {
	if g.MaxAge > 0 && now > s.ObservedAt && now-s.ObservedAt > g.MaxAge {
		return PriceStatusStale
	}
	if s.Deviation() > g.MaxTickDelta {
		return PriceStatusDeviant
	}
	return PriceStatusOK
}
