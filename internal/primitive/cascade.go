package primitive

import (
	"math"

	"main/internal/schema"
)

// LiquidationProximity counts open positions whose liquidation price is
// within thresholdFrac of the reference price, split by direction.
// Absent when no position is at risk.
func LiquidationProximity(positions []schema.Position, price, thresholdFrac float64) (*ProximityFact, error) {
	if !finite(price, thresholdFrac) || price <= 0 || thresholdFrac <= 0 {
		return nil, ErrNotFinite
	}
	fact := &ProximityFact{NearestDist: math.Inf(1)}
	for _, p := range positions {
		if !finite(p.Size, p.LiqPrice) || p.LiqPrice <= 0 || p.Size == 0 {
			continue
		}
		dist := math.Abs(price-p.LiqPrice) / price
		if dist > thresholdFrac {
			continue
		}
		value := math.Abs(p.Size) * price
		if p.Size > 0 {
			fact.LongCount++
			fact.LongValue += value
		} else {
			fact.ShortCount++
			fact.ShortValue += value
		}
		fact.NearestDist = math.Min(fact.NearestDist, dist)
	}
	if fact.LongCount+fact.ShortCount == 0 {
		return nil, nil
	}
	return fact, nil
}

// CascadeObservation classifies the liquidation regime from confirmed
// liquidation timestamps and the at-risk position count. Confirmed
// events always outrank mere proximity:
//
//	>= 3 liquidations in 30s          -> CASCADING
//	any liquidation in 5s             -> LIQUIDATING
//	past liquidations, quiet, no risk -> EXHAUSTED
//	at-risk positions, nothing in 60s -> PROXIMITY
func CascadeObservation(liqTsMs []int64, nowMs int64, atRisk int) (*CascadeFact, error) {
	if atRisk < 0 {
		return nil, ErrInvalidInterval
	}
	fact := &CascadeFact{AtRisk: atRisk}
	for _, ts := range liqTsMs {
		if ts > nowMs {
			return nil, ErrInvalidInterval
		}
		age := nowMs - ts
		if age <= 5_000 {
			fact.Liq5s++
		}
		if age <= 30_000 {
			fact.Liq30s++
		}
		if age <= 60_000 {
			fact.Liq60s++
		}
	}
	switch {
	case fact.Liq30s >= 3:
		fact.Phase = PhaseCascading
	case fact.Liq5s >= 1:
		fact.Phase = PhaseLiquidating
	case len(liqTsMs) > 0 && fact.Liq60s == 0 && atRisk == 0:
		fact.Phase = PhaseExhausted
	case atRisk > 0 && fact.Liq60s == 0:
		fact.Phase = PhaseProximity
	default:
		fact.Phase = PhaseNone
	}
	return fact, nil
}
