package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/internal/primitive"
	"main/internal/schema"
)

func newTestGate(metrics *obs.Metrics, symbols ...string) *Gate {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	cfg := DefaultConfig()
	cfg.Whitelist = symbols
	return New(cfg, metrics)
}

func tradeEvent(tsMs int64, symbol string, price, qty float64) schema.RawEvent {
	return schema.RawEvent{
		TsMs:   tsMs,
		Symbol: symbol,
		Type:   schema.EventTrade,
		Payload: schema.TradePayload{
			Price: price, Qty: qty, IsBuyerMaker: false,
		},
	}
}

func TestIngestRejectsNothingSilently(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics)

	require.NoError(t, g.Ingest(tradeEvent(1000, "DOGEUSDT", 0.1, 100)))
	require.Equal(t, StatusUninitialized, g.Status())

	snap := metrics.Snapshot()
	require.Equal(t, uint64(1), snap.DropCounts[obs.DropNotWhitelisted])
}

func TestCausalityTolerances(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics)

	require.NoError(t, g.Ingest(tradeEvent(100_000, "BTCUSDT", 100, 1)))
	require.Equal(t, StatusUninitialized, g.Status())
	require.Equal(t, int64(100_000), g.ClockMs())

	// 31s behind the clock: stale.
	require.NoError(t, g.Ingest(tradeEvent(69_000, "BTCUSDT", 100, 1)))
	// 6s ahead of the clock: suspect.
	require.NoError(t, g.Ingest(tradeEvent(106_000, "BTCUSDT", 100, 1)))
	// Within tolerance both ways: accepted, clock unchanged.
	require.NoError(t, g.Ingest(tradeEvent(104_000, "BTCUSDT", 100, 1)))
	require.NoError(t, g.Ingest(tradeEvent(80_000, "BTCUSDT", 100, 1)))
	require.Equal(t, int64(100_000), g.ClockMs())

	snap := metrics.Snapshot()
	require.Equal(t, uint64(1), snap.DropCounts[obs.DropStale])
	require.Equal(t, uint64(1), snap.DropCounts[obs.DropAhead])
	require.Equal(t, uint64(3), snap.EventCounts[schema.EventTrade])
}

func TestTimeRegressionHaltsPermanently(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics)

	require.NoError(t, g.AdvanceTime(100_000))
	err := g.AdvanceTime(90_000)
	require.ErrorIs(t, err, ErrTimeRegression)
	require.Equal(t, StatusFailed, g.Status())
	require.ErrorIs(t, g.Failure(), ErrTimeRegression)

	require.ErrorIs(t, g.Ingest(tradeEvent(100_000, "BTCUSDT", 100, 1)), ErrHalted)
	_, err = g.Query()
	require.ErrorIs(t, err, ErrHalted)
	require.ErrorIs(t, g.AdvanceTime(200_000), ErrHalted)
}

func TestQueryBeforeAnyEvent(t *testing.T) {
	g := newTestGate(nil)
	_, err := g.Query()
	require.ErrorIs(t, err, ErrNotReady)
}

func TestMalformedPayloadDropped(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics)

	require.NoError(t, g.Ingest(schema.RawEvent{
		TsMs: 1000, Symbol: "BTCUSDT", Type: schema.EventTrade,
		Payload: "not a trade",
	}))
	require.Equal(t, uint64(1), metrics.Snapshot().DropCounts[obs.DropMalformed])
}

func feedSequence(g *Gate) {
	for i := int64(0); i < 50; i++ {
		ts := 1_000_000 + i*200
		g.Ingest(tradeEvent(ts, "ETHUSDT", 2000+float64(i), 1.5))
		g.Ingest(tradeEvent(ts, "BTCUSDT", 100+float64(i)*0.01, 2))
		if i%10 == 0 {
			g.Ingest(schema.RawEvent{
				TsMs: ts, Symbol: "BTCUSDT", Type: schema.EventLiquidation,
				Payload: schema.LiquidationPayload{Price: 100, Qty: 3, Side: schema.SideSell},
			})
		}
		g.AdvanceTime(ts)
	}
}

func TestSnapshotSortedAndDeterministic(t *testing.T) {
	a := newTestGate(nil)
	b := newTestGate(nil)
	feedSequence(a)
	feedSequence(b)

	snapA, err := a.Query()
	require.NoError(t, err)
	snapB, err := b.Query()
	require.NoError(t, err)

	require.Len(t, snapA.Bundles, 2)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, snapA.Symbols)
	require.Equal(t, "BTCUSDT", snapA.Bundles[0].Symbol)
	require.Equal(t, "ETHUSDT", snapA.Bundles[1].Symbol)
	require.Same(t, snapA.Bundles[1], snapA.Bundle("ETHUSDT"))
	require.Nil(t, snapA.Bundle("DOGEUSDT"))
	require.Equal(t, snapA.AppendJSON(nil), snapB.AppendJSON(nil))

	// Querying twice without new events changes only the sequence.
	again, err := a.Query()
	require.NoError(t, err)
	require.Equal(t, snapA.Seq+1, again.Seq)
}

func TestPrimitiveFaultIsolation(t *testing.T) {
	orig := computers
	defer func() { computers = orig }()

	replaced := make([]computer, len(orig))
	copy(replaced, orig)
	for i := range replaced {
		if replaced[i].name == "flow_imbalance" {
			replaced[i].fn = func(*Gate, string, *primitive.Bundle) error {
				panic("injected")
			}
		}
	}
	computers = replaced

	metrics := obs.NewMetrics()
	g := newTestGate(metrics)
	feedSequence(g)

	snap, err := g.Query()
	require.NoError(t, err)
	require.Equal(t, StatusUninitialized, g.Status())

	btc := snap.Bundles[0]
	require.Nil(t, btc.FlowImbalance)
	require.NotNil(t, btc.TradeRate)
	require.NotNil(t, btc.Candle)
	require.GreaterOrEqual(t, metrics.Snapshot().PrimitiveFaults, uint64(2))
}

func TestDecayRunsOnSchedule(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics)

	require.NoError(t, g.AdvanceTime(0))
	require.NoError(t, g.AdvanceTime(9_000))
	require.Equal(t, uint64(0), metrics.Snapshot().DecayTicks)
	require.NoError(t, g.AdvanceTime(10_000))
	require.Equal(t, uint64(1), metrics.Snapshot().DecayTicks)
	require.NoError(t, g.AdvanceTime(25_000))
	require.Equal(t, uint64(2), metrics.Snapshot().DecayTicks)
}

func TestLiquidationDrivesCascade(t *testing.T) {
	g := newTestGate(nil, "BTCUSDT")
	base := int64(1_000_000)
	g.Ingest(tradeEvent(base, "BTCUSDT", 100, 1))
	for i := int64(0); i < 3; i++ {
		require.NoError(t, g.Ingest(schema.RawEvent{
			TsMs: base + i*1000, Symbol: "BTCUSDT", Type: schema.EventLiquidation,
			Payload: schema.LiquidationPayload{Price: 100, Qty: 1, Side: schema.SideSell},
		}))
	}
	require.NoError(t, g.AdvanceTime(base+3_000))

	snap, err := g.Query()
	require.NoError(t, err)
	require.Len(t, snap.Bundles, 1)
	cascade := snap.Bundles[0].Cascade
	require.NotNil(t, cascade)
	require.Equal(t, primitive.PhaseCascading, cascade.Phase)
	require.Equal(t, 3, cascade.Liq30s)
}

func TestRecordLiquidationFeedsCascade(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics, "BTCUSDT")
	base := int64(1_000_000)
	require.NoError(t, g.Ingest(tradeEvent(base, "BTCUSDT", 100, 1)))

	for i := int64(0); i < 3; i++ {
		require.NoError(t, g.RecordLiquidation("BTCUSDT", base+i*1000, 2500))
	}
	// Unlisted symbol and invalid values are silent drops.
	require.NoError(t, g.RecordLiquidation("DOGEUSDT", base, 100))
	require.NoError(t, g.RecordLiquidation("BTCUSDT", base, math.NaN()))
	require.NoError(t, g.RecordLiquidation("BTCUSDT", base, -5))
	require.NoError(t, g.AdvanceTime(base+3_000))

	snap, err := g.Query()
	require.NoError(t, err)
	cascade := snap.Bundle("BTCUSDT").Cascade
	require.NotNil(t, cascade)
	require.Equal(t, 3, cascade.Liq30s)

	counts := metrics.Snapshot()
	require.Equal(t, uint64(1), counts.DropCounts[obs.DropNotWhitelisted])
	require.Equal(t, uint64(2), counts.DropCounts[obs.DropMalformed])
}

func TestOutlierComesFromPromotionHistory(t *testing.T) {
	g := newTestGate(nil, "BTCUSDT")
	base := int64(1_000_000)

	// One trade per second with alternating size warms the baseline
	// with a nonzero spread.
	for i := int64(0); i < 12; i++ {
		qty := 1.0
		if i%2 == 1 {
			qty = 3.0
		}
		require.NoError(t, g.Ingest(tradeEvent(base+i*1000, "BTCUSDT", 100, qty)))
		require.NoError(t, g.AdvanceTime(base+i*1000))
	}
	promotedAt := base + 12_000
	require.NoError(t, g.Ingest(tradeEvent(promotedAt, "BTCUSDT", 101, 50)))
	require.NoError(t, g.AdvanceTime(promotedAt))

	// Long after the trade left the observation window the promotion
	// is still the reported outlier.
	require.NoError(t, g.AdvanceTime(promotedAt+70_000))

	snap, err := g.Query()
	require.NoError(t, err)
	fact := snap.Bundle("BTCUSDT").OutlierTrade
	require.NotNil(t, fact)
	require.Equal(t, promotedAt, fact.TsMs)
	require.InDelta(t, 50.0, fact.Qty, 1e-9)
	require.Greater(t, fact.Sigma, 2.0)
}

func TestLateTradeDoesNotFaultVelocity(t *testing.T) {
	metrics := obs.NewMetrics()
	g := newTestGate(metrics, "BTCUSDT")

	require.NoError(t, g.Ingest(tradeEvent(100_000, "BTCUSDT", 100, 1)))
	require.NoError(t, g.Ingest(tradeEvent(100_500, "BTCUSDT", 101, 1)))
	// 20s behind the clock but inside tolerance: admitted out of order.
	require.NoError(t, g.Ingest(tradeEvent(80_000, "BTCUSDT", 99, 1)))

	snap, err := g.Query()
	require.NoError(t, err)
	require.Nil(t, snap.Bundle("BTCUSDT").PriceVelocity)
	require.Equal(t, uint64(0), metrics.Snapshot().PrimitiveFaults)
}

func TestAdvanceTimePanicFreezes(t *testing.T) {
	g := newTestGate(nil, "BTCUSDT")
	require.NoError(t, g.AdvanceTime(1_000))

	g.agg = nil
	err := g.AdvanceTime(2_000)
	require.ErrorIs(t, err, ErrInternal)
	require.Equal(t, StatusFailed, g.Status())

	require.ErrorIs(t, g.AdvanceTime(3_000), ErrHalted)
	require.ErrorIs(t, g.Ingest(tradeEvent(3_000, "BTCUSDT", 100, 1)), ErrHalted)
}

func TestTrackerEvictionDeterministicOnTies(t *testing.T) {
	for i := 0; i < 20; i++ {
		tr := newLiqTracker(TrackerConfig{WindowMs: 120_000, MaxSymbols: 2, MaxPerSym: 8})
		tr.Record("CCC", 1000)
		tr.Record("BBB", 1000)
		tr.Record("AAA", 1000)

		require.Nil(t, tr.Times("AAA"))
		require.Len(t, tr.Times("BBB"), 1)
		require.Len(t, tr.Times("CCC"), 1)
	}
}
