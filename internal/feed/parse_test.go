package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestParseAggTrade(t *testing.T) {
	raw := `{"e":"aggTrade","E":1700000000123,"s":"BTCUSDT","p":"43210.50","q":"0.25","m":true}`
	var msg binanceAggTrade
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	got := parseAggTrade(msg)
	require.NoError(t, got.err)
	require.Equal(t, schema.RawEvent{
		TsMs:   1700000000123,
		Symbol: "BTCUSDT",
		Type:   schema.EventTrade,
		Payload: schema.TradePayload{
			Price: 43210.50, Qty: 0.25, IsBuyerMaker: true,
		},
	}, got.event)
}

func TestParseForceOrder(t *testing.T) {
	raw := `{"e":"forceOrder","E":1700000000500,"o":{"s":"BTCUSDT","S":"SELL","q":"0.014","ap":"9910","T":1700000000400}}`
	var msg binanceForceOrder
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	got := parseForceOrder(msg)
	require.NoError(t, got.err)
	require.Equal(t, int64(1700000000400), got.event.TsMs)
	require.Equal(t, schema.EventLiquidation, got.event.Type)
	payload, ok := got.event.Payload.(schema.LiquidationPayload)
	require.True(t, ok)
	require.Equal(t, schema.SideSell, payload.Side)
	require.InDelta(t, 9910.0, payload.Price, 1e-9)
}

func TestParseKline(t *testing.T) {
	raw := `{"e":"kline","E":1700000060000,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"o":"43000","h":"43100.5","l":"42950","c":"43050","v":"128.4"}}`
	var msg binanceKline
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	got := parseKline(msg)
	require.NoError(t, got.err)
	require.Equal(t, schema.EventKline, got.event.Type)
	payload, ok := got.event.Payload.(schema.KlinePayload)
	require.True(t, ok)
	require.Equal(t, int64(1700000059999), payload.CloseTsMs)
	require.InDelta(t, 43100.5, payload.High, 1e-9)
	require.InDelta(t, 128.4, payload.Volume, 1e-9)
}

func TestParsePartialDepth(t *testing.T) {
	raw := `{"e":"depthUpdate","E":1700000001000,"s":"BTCUSDT","b":[["43200.1","1.5"],["43200.0","2"]],"a":[["43201.0","0.7"]]}`
	var msg binancePartialDepth
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	got := parsePartialDepth("BTCUSDT", msg)
	require.NoError(t, got.err)
	payload, ok := got.event.Payload.(schema.DepthPayload)
	require.True(t, ok)
	require.Len(t, payload.Bids, 2)
	require.Len(t, payload.Asks, 1)
	require.InDelta(t, 43200.1, payload.Bids[0].Price, 1e-9)
	require.InDelta(t, 0.7, payload.Asks[0].Size, 1e-9)
}

func TestParseBadNumberSurfacesError(t *testing.T) {
	raw := `{"e":"aggTrade","E":1,"s":"BTCUSDT","p":"not-a-price","q":"1","m":false}`
	var msg binanceAggTrade
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	got := parseAggTrade(msg)
	require.ErrorIs(t, got.err, ErrBadField)
}

func TestParseAllMidsFiltersCoins(t *testing.T) {
	raw := `{"channel":"allMids","data":{"mids":{"BTC":"43000.5","ETH":"2300.25","DOGE":"0.1"}}}`
	var msg hlAllMids
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	coins := map[string]string{"BTC": "BTCUSDT"}
	events := parseAllMids(coins, 5_000, msg)
	require.Len(t, events, 1)
	require.NoError(t, events[0].err)
	require.Equal(t, "BTCUSDT", events[0].event.Symbol)
	require.Equal(t, schema.EventHLPrice, events[0].event.Type)
	payload := events[0].event.Payload.(schema.HLPricePayload)
	require.InDelta(t, 43000.5, payload.Price, 1e-9)
}

func TestParseUserFillsKeepsLiquidationsOnly(t *testing.T) {
	raw := `{"channel":"user","data":{"fills":[
		{"coin":"BTC","px":"43000","sz":"0.5","side":"A","time":9000},
		{"coin":"BTC","px":"42900","sz":"1.5","side":"A","time":9500,
		 "liquidation":{"liquidatedUser":"0xdead"}}
	]}}`
	var msg hlUserEvents
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	events := parseUserFills(map[string]string{"BTC": "BTCUSDT"}, msg)
	require.Len(t, events, 1)
	require.Equal(t, schema.EventHLLiquidation, events[0].event.Type)
	require.Equal(t, int64(9500), events[0].event.TsMs)
}

func TestParsePositions(t *testing.T) {
	raw := `{"channel":"webData2","data":{"clearinghouseState":{"assetPositions":[
		{"position":{"coin":"ETH","szi":"-2.5","entryPx":"2300","liquidationPx":"2650"}}
	]}}}`
	var msg hlWebData
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	events := parsePositions(map[string]string{"ETH": "ETHUSDT"}, "0xabc", 7_000, msg)
	require.Len(t, events, 1)
	payload := events[0].event.Payload.(schema.HLPositionPayload)
	require.Equal(t, "0xabc", payload.User)
	require.InDelta(t, -2.5, payload.Size, 1e-9)
	require.InDelta(t, 2650.0, payload.LiqPrice, 1e-9)
}
