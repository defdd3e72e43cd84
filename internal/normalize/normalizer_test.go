package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/internal/schema"
)

func newTestNormalizer(cfg Config) (*Normalizer, *obs.Metrics) {
	metrics := obs.NewMetrics()
	return New(cfg, metrics), metrics
}

func TestTradeSideFromMakerFlag(t *testing.T) {
	n, _ := newTestNormalizer(Config{})

	trade, ok := n.ApplyTrade(1000, "BTCUSDT", schema.TradePayload{Price: 100, Qty: 1, IsBuyerMaker: true})
	require.True(t, ok)
	assert.Equal(t, schema.SideSell, trade.Side)
	assert.Equal(t, schema.SideUnvalidated, trade.Validation)

	trade, ok = n.ApplyTrade(1001, "BTCUSDT", schema.TradePayload{Price: 100, Qty: 1, IsBuyerMaker: false})
	require.True(t, ok)
	assert.Equal(t, schema.SideBuy, trade.Side)
}

func TestTradeSideValidatedAgainstBook(t *testing.T) {
	n, _ := newTestNormalizer(Config{})
	_, ok := n.ApplyDepth(999, "BTCUSDT", schema.DepthPayload{
		Bids: []schema.DepthLevel{{Price: 99, Size: 5}},
		Asks: []schema.DepthLevel{{Price: 101, Size: 5}},
	})
	require.True(t, ok)

	// At or above best ask with a taker-buy flag: validated.
	trade, ok := n.ApplyTrade(1000, "BTCUSDT", schema.TradePayload{Price: 101, Qty: 1, IsBuyerMaker: false})
	require.True(t, ok)
	assert.Equal(t, schema.SideBuy, trade.Side)
	assert.Equal(t, schema.SideValidated, trade.Validation)

	// At or below best bid but flagged as taker buy: the book overrides.
	trade, ok = n.ApplyTrade(1001, "BTCUSDT", schema.TradePayload{Price: 99, Qty: 1, IsBuyerMaker: false})
	require.True(t, ok)
	assert.Equal(t, schema.SideSell, trade.Side)
	assert.Equal(t, schema.SideMismatch, trade.Validation)

	// Inside the spread: flag kept, unvalidated.
	trade, ok = n.ApplyTrade(1002, "BTCUSDT", schema.TradePayload{Price: 100, Qty: 1, IsBuyerMaker: false})
	require.True(t, ok)
	assert.Equal(t, schema.SideBuy, trade.Side)
	assert.Equal(t, schema.SideUnvalidated, trade.Validation)
}

func TestMalformedTradeDroppedAndCounted(t *testing.T) {
	n, metrics := newTestNormalizer(Config{})

	cases := []schema.TradePayload{
		{Price: 0, Qty: 1},
		{Price: 100, Qty: -1},
		{Price: math.NaN(), Qty: 1},
		{Price: math.Inf(1), Qty: 1},
	}
	for _, p := range cases {
		_, ok := n.ApplyTrade(1000, "BTCUSDT", p)
		assert.False(t, ok)
	}
	assert.Equal(t, uint64(len(cases)), metrics.Snapshot().DropCounts[obs.DropMalformed])
	assert.Equal(t, 0, n.TradeCount("BTCUSDT"))
}

func TestDepthTopFiveAggregation(t *testing.T) {
	n, _ := newTestNormalizer(Config{})
	bids := make([]schema.DepthLevel, 8)
	asks := make([]schema.DepthLevel, 8)
	for i := range bids {
		bids[i] = schema.DepthLevel{Price: 100 - float64(i), Size: 1}
		asks[i] = schema.DepthLevel{Price: 101 + float64(i), Size: 2}
	}
	snap, ok := n.ApplyDepth(1000, "BTCUSDT", schema.DepthPayload{Bids: bids, Asks: asks})
	require.True(t, ok)
	assert.Equal(t, 100.0, snap.BestBid)
	assert.Equal(t, 101.0, snap.BestAsk)
	assert.Equal(t, 5.0, snap.BidSize)
	assert.Equal(t, 10.0, snap.AskSize)
}

func TestDepthPreviousGenerationRetained(t *testing.T) {
	n, _ := newTestNormalizer(Config{})
	_, ok := n.ApplyDepth(1000, "BTCUSDT", schema.DepthPayload{
		Bids: []schema.DepthLevel{{Price: 99, Size: 10}},
		Asks: []schema.DepthLevel{{Price: 101, Size: 10}},
	})
	require.True(t, ok)

	_, prevOK := n.PrevDepth("BTCUSDT")
	assert.False(t, prevOK, "single generation has no previous snapshot")

	_, ok = n.ApplyDepth(1001, "BTCUSDT", schema.DepthPayload{
		Bids: []schema.DepthLevel{{Price: 99, Size: 4}},
		Asks: []schema.DepthLevel{{Price: 101, Size: 12}},
	})
	require.True(t, ok)

	prev, prevOK := n.PrevDepth("BTCUSDT")
	require.True(t, prevOK)
	assert.Equal(t, 10.0, prev.BidSize)
	curr, currOK := n.Depth("BTCUSDT")
	require.True(t, currOK)
	assert.Equal(t, 4.0, curr.BidSize)
}

func TestCrossedBookDropped(t *testing.T) {
	n, metrics := newTestNormalizer(Config{})
	_, ok := n.ApplyDepth(1000, "BTCUSDT", schema.DepthPayload{
		Bids: []schema.DepthLevel{{Price: 102, Size: 1}},
		Asks: []schema.DepthLevel{{Price: 101, Size: 1}},
	})
	assert.False(t, ok)
	assert.Equal(t, uint64(1), metrics.Snapshot().DropCounts[obs.DropMalformed])
}

func TestTradeBufferBounded(t *testing.T) {
	n, _ := newTestNormalizer(Config{TradeCap: 500})
	for i := 0; i < 100000; i++ {
		_, ok := n.ApplyTrade(int64(i), "BTCUSDT", schema.TradePayload{Price: 100, Qty: 1})
		require.True(t, ok)
	}
	assert.Equal(t, 500, n.TradeCount("BTCUSDT"))
	trades := n.Trades("BTCUSDT", 0)
	require.Len(t, trades, 500)
	assert.Equal(t, int64(99999), trades[len(trades)-1].TsMs)
}

func TestLiquidationRequiresKnownSide(t *testing.T) {
	n, _ := newTestNormalizer(Config{})
	_, ok := n.ApplyLiquidation(1000, "BTCUSDT", schema.LiquidationPayload{Price: 100, Qty: 1})
	assert.False(t, ok)
	liq, ok := n.ApplyLiquidation(1001, "BTCUSDT", schema.LiquidationPayload{Price: 100, Qty: 2, Side: schema.SideSell})
	require.True(t, ok)
	assert.Equal(t, 200.0, liq.Value)
	assert.Len(t, n.Liquidations("BTCUSDT", 0), 1)
}

func TestPositionValidation(t *testing.T) {
	n, _ := newTestNormalizer(Config{})
	_, ok := n.ApplyPosition(1000, "BTCUSDT", schema.HLPositionPayload{User: "0xa", Size: 0, LiqPrice: 90})
	assert.False(t, ok)
	_, ok = n.ApplyPosition(1000, "BTCUSDT", schema.HLPositionPayload{User: "0xa", Size: 1.5, EntryPrice: 100, LiqPrice: 90})
	require.True(t, ok)
	assert.Len(t, n.Positions("BTCUSDT"), 1)
}

func TestOrderAndOpenInterestValidateOnly(t *testing.T) {
	n, metrics := newTestNormalizer(Config{})

	assert.False(t, n.ApplyOrder(1000, "BTCUSDT", schema.HLOrderPayload{Price: -1, Qty: 1, Side: schema.SideBuy}))
	assert.True(t, n.ApplyOrder(1001, "BTCUSDT", schema.HLOrderPayload{Price: 100, Qty: 1, Side: schema.SideBuy}))

	assert.False(t, n.ApplyOpenInterest("BTCUSDT", schema.OIPayload{OpenInterest: math.NaN()}))
	assert.True(t, n.ApplyOpenInterest("BTCUSDT", schema.OIPayload{OpenInterest: 12_500}))

	assert.Equal(t, uint64(2), metrics.Snapshot().DropCounts[obs.DropMalformed])
}
