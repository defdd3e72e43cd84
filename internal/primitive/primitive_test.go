package primitive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/memstore"
	"main/internal/schema"
	"main/internal/window"
)

func TestPenetrationFromAbove(t *testing.T) {
	fact, err := PenetrationDepth([]float64{115, 108, 104, 112}, 100, 110)
	require.NoError(t, err)
	require.NotNil(t, fact)
	require.True(t, fact.FromAbove)
	require.InDelta(t, 6.0, fact.Depth, 1e-9)
	require.InDelta(t, 0.6, fact.Ratio, 1e-9)
}

func TestPenetrationNeverEntered(t *testing.T) {
	fact, err := PenetrationDepth([]float64{120, 118, 125}, 100, 110)
	require.NoError(t, err)
	require.Nil(t, fact)
}

func TestPenetrationInvalidZone(t *testing.T) {
	_, err := PenetrationDepth([]float64{105}, 110, 100)
	require.ErrorIs(t, err, ErrInvalidZone)
}

func TestVelocityRequiresForwardTime(t *testing.T) {
	_, err := Velocity(100, 101, 2000, 2000)
	require.ErrorIs(t, err, ErrNonPositiveTime)

	fact, err := Velocity(100, 102, 1000, 3000)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fact.PerSec, 1e-9)
}

func TestCompactness(t *testing.T) {
	fact, err := Compactness([]float64{100, 105, 103})
	require.NoError(t, err)
	require.InDelta(t, 3.0/7.0, fact.Ratio, 1e-9)

	flat, err := Compactness([]float64{100, 100, 100})
	require.NoError(t, err)
	require.Nil(t, flat)
}

func TestAcceptanceFullBody(t *testing.T) {
	fact, err := AcceptanceRatio(100, 110, 100, 110)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fact.Ratio, 1e-9)
}

func TestAcceptanceInconsistentBounds(t *testing.T) {
	_, err := AcceptanceRatio(100, 105, 95, 108)
	require.ErrorIs(t, err, ErrInvalidCandle)
}

func TestAcceptanceZeroRangeAbsent(t *testing.T) {
	fact, err := AcceptanceRatio(100, 100, 100, 100)
	require.NoError(t, err)
	require.Nil(t, fact)
}

func TestAbsenceMergesOverlap(t *testing.T) {
	spans := []Span{{1020, 1060}, {1040, 1080}}
	fact, err := AbsencePersistence(spans, 1000, 1100)
	require.NoError(t, err)
	require.InDelta(t, 60.0, fact.CoveredDur, 1e-9)
	require.InDelta(t, 40.0, fact.AbsenceDur, 1e-9)
	require.InDelta(t, 0.4, fact.AbsenceRatio, 1e-9)
	require.InDelta(t, 0.6, fact.Persistence, 1e-9)
}

func TestAbsenceRejectsOutOfWindow(t *testing.T) {
	_, err := AbsencePersistence([]Span{{900, 1050}}, 1000, 1100)
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = AbsencePersistence(nil, 1100, 1000)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestConsumptionAndRefill(t *testing.T) {
	cons, err := Consumption(10, 4)
	require.NoError(t, err)
	require.InDelta(t, 6.0, cons.Delta, 1e-9)

	none, err := Consumption(4, 10)
	require.NoError(t, err)
	require.Nil(t, none)

	ref, err := Refill(4, 10)
	require.NoError(t, err)
	require.InDelta(t, 6.0, ref.Delta, 1e-9)
}

func TestAbsorptionRequiresHeldPrice(t *testing.T) {
	held, err := Absorption(10, 2, 100.00, 100.01, 0.05)
	require.NoError(t, err)
	require.NotNil(t, held)
	require.InDelta(t, 8.0, held.Consumed, 1e-9)

	moved, err := Absorption(10, 2, 100.00, 100.50, 0.05)
	require.NoError(t, err)
	require.Nil(t, moved)
}

func TestCascadePriority(t *testing.T) {
	now := int64(100_000)

	fact, err := CascadeObservation([]int64{80_000, 85_000, 90_000}, now, 7)
	require.NoError(t, err)
	require.Equal(t, PhaseCascading, fact.Phase)
	require.Equal(t, 3, fact.Liq30s)

	fact, err = CascadeObservation([]int64{98_000}, now, 0)
	require.NoError(t, err)
	require.Equal(t, PhaseLiquidating, fact.Phase)

	fact, err = CascadeObservation([]int64{10_000}, now, 0)
	require.NoError(t, err)
	require.Equal(t, PhaseExhausted, fact.Phase)

	fact, err = CascadeObservation(nil, now, 2)
	require.NoError(t, err)
	require.Equal(t, PhaseProximity, fact.Phase)

	fact, err = CascadeObservation(nil, now, 0)
	require.NoError(t, err)
	require.Equal(t, PhaseNone, fact.Phase)
}

func TestLiquidationProximity(t *testing.T) {
	positions := []schema.Position{
		{Symbol: "BTCUSDT", Size: 2, LiqPrice: 99.5},
		{Symbol: "BTCUSDT", Size: -1, LiqPrice: 100.4},
		{Symbol: "BTCUSDT", Size: 5, LiqPrice: 80},
	}
	fact, err := LiquidationProximity(positions, 100, 0.01)
	require.NoError(t, err)
	require.Equal(t, 1, fact.LongCount)
	require.Equal(t, 1, fact.ShortCount)
	require.InDelta(t, 200.0, fact.LongValue, 1e-9)
	require.InDelta(t, 100.0, fact.ShortValue, 1e-9)

	none, err := LiquidationProximity(positions, 100, 0.0001)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestFlowImbalance(t *testing.T) {
	trades := []schema.Trade{
		{Value: 300, Side: schema.SideBuy},
		{Value: 100, Side: schema.SideSell},
	}
	fact, err := FlowImbalance(trades)
	require.NoError(t, err)
	require.InDelta(t, 0.5, fact.Imbalance, 1e-9)

	empty, err := FlowImbalance(nil)
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestTradeRateLookback(t *testing.T) {
	trades := []schema.Trade{
		{TsMs: 1000, Qty: 1},
		{TsMs: 5000, Qty: 2},
		{TsMs: 9000, Qty: 3},
	}
	fact, err := TradeRate(trades, 4000)
	require.NoError(t, err)
	require.Equal(t, 2, fact.Count)
	require.InDelta(t, 5.0, fact.Volume, 1e-9)
}

func TestLatestPromotionPicksNewest(t *testing.T) {
	promoted := []window.PromotedEvent{
		{TsMs: 1000, Price: 100, Qty: 30, Sigma: 2.1},
		{TsMs: 3000, Price: 102, Qty: 45, Sigma: 3.4},
	}
	fact, err := LatestPromotion(promoted)
	require.NoError(t, err)
	require.Equal(t, int64(3000), fact.TsMs)
	require.InDelta(t, 45.0, fact.Qty, 1e-9)
	require.InDelta(t, 3.4, fact.Sigma, 1e-9)

	cold, err := LatestPromotion(nil)
	require.NoError(t, err)
	require.Nil(t, cold)

	_, err = LatestPromotion([]window.PromotedEvent{{TsMs: 1, Price: math.Inf(1), Qty: 1, Sigma: 2}})
	require.ErrorIs(t, err, ErrNotFinite)
}

func TestOrderBlockQualification(t *testing.T) {
	nodes := []memstore.Node{
		{
			PriceCenter: 100, PriceBand: 0.1, Strength: 0.6,
			InteractionCount: 12, FirstSeenTsMs: 0, LastInteractionTsMs: 120_000,
		},
		{
			PriceCenter: 120, PriceBand: 0.1, Strength: 0.9,
			InteractionCount: 2, FirstSeenTsMs: 0, LastInteractionTsMs: 120_000,
		},
	}
	fact, err := OrderBlock(nodes, 130_000, DefaultOrderBlockConfig())
	require.NoError(t, err)
	require.NotNil(t, fact)
	require.InDelta(t, 100.0, fact.Center, 1e-9)
	require.InDelta(t, 6.0, fact.Burstiness, 1e-9)

	// Much later both nodes aged out of the idle window.
	later, err := OrderBlock(nodes, 10_000_000, DefaultOrderBlockConfig())
	require.NoError(t, err)
	require.Nil(t, later)
}

func TestZoneClusters(t *testing.T) {
	mk := func(center float64) memstore.Node {
		return memstore.Node{PriceCenter: center, PriceBand: 0.05, Strength: 0.4}
	}
	nodes := []memstore.Node{
		mk(101.00), mk(101.05), mk(101.10),
		mk(98.90), mk(98.95), mk(99.00),
		mk(95.00),
	}
	supply, demand, err := ZoneClusters(nodes, 100, DefaultZoneConfig())
	require.NoError(t, err)
	require.NotNil(t, supply)
	require.Equal(t, ZoneSupply, supply.Kind)
	require.Equal(t, 3, supply.NodeCount)
	require.InDelta(t, 100.95, supply.Low, 1e-9)
	require.NotNil(t, demand)
	require.Equal(t, ZoneDemand, demand.Kind)
	require.InDelta(t, 99.05, demand.High, 1e-9)
}

func TestZoneClustersIgnoresLoneNodes(t *testing.T) {
	nodes := []memstore.Node{
		{PriceCenter: 101, PriceBand: 0.05, Strength: 0.4},
	}
	supply, demand, err := ZoneClusters(nodes, 100, DefaultZoneConfig())
	require.NoError(t, err)
	require.Nil(t, supply)
	require.Nil(t, demand)
}
