package primitive

import (
	"sort"

	"main/internal/memstore"
)

// OrderBlockConfig tunes the order block and zone detectors.
type OrderBlockConfig struct {
	MinInteractions int
	MinStrength     float64
	MinBurstiness   float64
	MaxIdleMs       int64
}

// DefaultOrderBlockConfig returns the detection thresholds.
func DefaultOrderBlockConfig() OrderBlockConfig {
	return OrderBlockConfig{
		MinInteractions: 5,
		MinStrength:     0.3,
		MinBurstiness:   1.5,
		MaxIdleMs:       300_000,
	}
}

// OrderBlock picks the strongest node whose interaction pattern is
// concentrated enough to read as a resting order: enough touches, enough
// strength, a bursty touch rate and recent activity. Absent when no node
// qualifies.
func OrderBlock(nodes []memstore.Node, nowMs int64, cfg OrderBlockConfig) (*OrderBlockFact, error) {
	if nowMs < 0 {
		return nil, ErrNonPositiveTime
	}
	var best *memstore.Node
	bestBurst := 0.0
	for i := range nodes {
		n := &nodes[i]
		if n.State == memstore.StateArchived {
			continue
		}
		if n.InteractionCount < cfg.MinInteractions || n.Strength < cfg.MinStrength {
			continue
		}
		if nowMs-n.LastInteractionTsMs > cfg.MaxIdleMs {
			continue
		}
		burst := burstiness(n)
		if burst < cfg.MinBurstiness {
			continue
		}
		if best == nil || n.Strength > best.Strength {
			best, bestBurst = n, burst
		}
	}
	if best == nil {
		return nil, nil
	}
	return &OrderBlockFact{
		Center:       best.PriceCenter,
		Band:         best.PriceBand,
		Strength:     best.Strength,
		Interactions: best.InteractionCount,
		Burstiness:   bestBurst,
	}, nil
}

// burstiness is touches per active minute. A node touched many times in
// a short life reads as one aggressive participant rather than drift.
func burstiness(n *memstore.Node) float64 {
	activeMs := n.LastInteractionTsMs - n.FirstSeenTsMs
	if activeMs < 60_000 {
		activeMs = 60_000
	}
	return float64(n.InteractionCount) / (float64(activeMs) / 60_000)
}

// ZoneConfig tunes node clustering.
type ZoneConfig struct {
	MinNodes     int
	MaxGapFrac   float64
	MaxWidthFrac float64
}

// DefaultZoneConfig returns the clustering thresholds.
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{MinNodes: 3, MaxGapFrac: 0.002, MaxWidthFrac: 0.015}
}

// ZoneClusters groups adjacent nodes into price zones and returns the
// nearest qualifying cluster strictly above price (supply) and strictly
// below it (demand). Either side may be absent.
func ZoneClusters(nodes []memstore.Node, price float64, cfg ZoneConfig) (supply, demand *ZoneFact, err error) {
	if !finite(price) || price <= 0 {
		return nil, nil, ErrNotFinite
	}
	live := make([]memstore.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.State != memstore.StateArchived {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return nil, nil, nil
	}
	sort.Slice(live, func(i, j int) bool { return live[i].PriceCenter < live[j].PriceCenter })

	maxGap := cfg.MaxGapFrac * price
	maxWidth := cfg.MaxWidthFrac * price
	start := 0
	for i := 1; i <= len(live); i++ {
		if i < len(live) && live[i].PriceCenter-live[i-1].PriceCenter <= maxGap {
			continue
		}
		cluster := live[start:i]
		start = i
		if len(cluster) < cfg.MinNodes {
			continue
		}
		z := buildZone(cluster)
		if z.High-z.Low > maxWidth {
			continue
		}
		switch {
		case z.Low > price:
			z.Kind = ZoneSupply
			if supply == nil || z.Low < supply.Low {
				supply = z
			}
		case z.High < price:
			z.Kind = ZoneDemand
			if demand == nil || z.High > demand.High {
				demand = z
			}
		}
	}
	return supply, demand, nil
}

func buildZone(cluster []memstore.Node) *ZoneFact {
	z := &ZoneFact{
		Low:       cluster[0].PriceCenter - cluster[0].PriceBand,
		High:      cluster[0].PriceCenter + cluster[0].PriceBand,
		NodeCount: len(cluster),
	}
	for _, n := range cluster {
		if lo := n.PriceCenter - n.PriceBand; lo < z.Low {
			z.Low = lo
		}
		if hi := n.PriceCenter + n.PriceBand; hi > z.High {
			z.High = hi
		}
		z.TotalStrength += n.Strength
		// A node that went quiet and came back marks a retest.
		if len(n.Presence) >= 2 {
			z.Retested = true
		}
	}
	return z
}
