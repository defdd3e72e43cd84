package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/internal/schema"
)

func trade(tsMs int64, price, qty float64) schema.Trade {
	return schema.Trade{TsMs: tsMs, Symbol: "BTCUSDT", Price: price, Qty: qty, Side: schema.SideBuy}
}

func TestWindowRolloverClearsCountersOnly(t *testing.T) {
	a := New(Config{}, obs.NewMetrics())
	a.ApplyTrade(trade(1000, 100, 1))
	a.ApplyTrade(trade(1500, 102, 2))

	w, ok := a.CurrentWindow("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 2, w.Count)
	assert.Equal(t, 3.0, w.Volume)
	assert.Equal(t, 101.0, w.MeanPrice)

	a.ApplyTrade(trade(2100, 104, 1))
	w, ok = a.CurrentWindow("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(2000), w.StartTsMs)
	assert.Equal(t, 1, w.Count)

	// Candle survives the rollover.
	c, ok := a.Candle("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 104.0, c.High)
	assert.Equal(t, 104.0, c.Close)
	assert.Equal(t, 4.0, c.Volume)
}

func TestGapSnapsWindowPointerForward(t *testing.T) {
	metrics := obs.NewMetrics()
	a := New(Config{}, metrics)
	a.ApplyTrade(trade(1000, 100, 1))
	// 10 minutes later: a single close, then a snap, not 600 empty closes.
	a.ApplyTrade(trade(601_000, 100, 1))

	w, ok := a.CurrentWindow("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(601_000), w.StartTsMs)
	assert.Equal(t, uint64(1), metrics.Snapshot().WindowCloses)
}

func TestBaselineWarmupAndPromotion(t *testing.T) {
	a := New(Config{WarmWindows: 10, PromotionSigma: 2.0}, obs.NewMetrics())

	// 12 closed windows whose typical trade size drifts slightly, so the
	// baseline has a non-zero spread.
	ts := int64(0)
	for w := 0; w < 12; w++ {
		for i := 0; i < 5; i++ {
			a.ApplyTrade(trade(ts, 100, 1.0+0.05*float64(w)))
			ts += 100
		}
		ts = int64(w+1) * 1000
	}

	base := a.Baseline("BTCUSDT")
	require.True(t, base.Warm)
	require.Greater(t, base.StdTradeSize, 0.0)

	// A trade far above mean + 2 sigma must be promoted.
	a.ApplyTrade(trade(ts, 100, 50))
	promoted := a.Promoted("BTCUSDT", 0)
	require.Len(t, promoted, 1)
	assert.Equal(t, 50.0, promoted[0].Qty)
	assert.Greater(t, promoted[0].Sigma, 2.0)

	// A typical trade is not promoted.
	a.ApplyTrade(trade(ts+10, 100, 1))
	assert.Len(t, a.Promoted("BTCUSDT", 0), 1)
}

func TestNoPromotionBeforeWarm(t *testing.T) {
	a := New(Config{WarmWindows: 10}, obs.NewMetrics())
	a.ApplyTrade(trade(0, 100, 1))
	a.ApplyTrade(trade(1500, 100, 1000))
	assert.Empty(t, a.Promoted("BTCUSDT", 0))
}

func TestAdvanceToClosesDueWindows(t *testing.T) {
	metrics := obs.NewMetrics()
	a := New(Config{}, metrics)
	a.ApplyTrade(trade(500, 100, 1))
	a.AdvanceTo(3200)
	assert.Equal(t, uint64(3), metrics.Snapshot().WindowCloses)
	w, ok := a.CurrentWindow("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(3000), w.StartTsMs)
	assert.Equal(t, 0, w.Count)
}

func TestMergeKlineExtendsCandle(t *testing.T) {
	a := New(Config{}, obs.NewMetrics())
	a.ApplyTrade(trade(1000, 100, 1))
	a.MergeKline("BTCUSDT", schema.KlinePayload{Open: 100, High: 110, Low: 95, Close: 108, Volume: 10, CloseTsMs: 2000})
	c, ok := a.Candle("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 110.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 108.0, c.Close)
	assert.Equal(t, 100.0, c.Open)
}

func TestRecentPricesBounded(t *testing.T) {
	a := New(Config{RecentPriceCap: 10}, obs.NewMetrics())
	for i := 0; i < 100; i++ {
		a.ApplyTrade(trade(int64(i), float64(i), 1))
	}
	prices := a.RecentPrices("BTCUSDT", 0)
	require.Len(t, prices, 10)
	assert.Equal(t, 99.0, prices[9].Price)
}
