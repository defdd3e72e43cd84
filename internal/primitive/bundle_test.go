package primitive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBundleJSONStable(t *testing.T) {
	b := &Bundle{
		Symbol:       "BTCUSDT",
		ComputedAtMs: 1_700_000_000_000,
		PriceVelocity: &VelocityFact{
			PerSec: 1.25,
		},
		Cascade: &CascadeFact{
			Phase: PhaseLiquidating, Liq5s: 1, Liq30s: 1, Liq60s: 2, AtRisk: 3,
		},
	}
	first := b.AppendJSON(nil)
	second := b.AppendJSON(nil)
	require.Equal(t, first, second)
	require.True(t, json.Valid(first))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))
	require.Equal(t, "BTCUSDT", decoded["symbol"])
	require.Nil(t, decoded["order_block"])
	cascade, ok := decoded["cascade"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "LIQUIDATING", cascade["phase"])
}

func TestBundleJSONEveryKeyPresent(t *testing.T) {
	empty := (&Bundle{Symbol: "ETHUSDT"}).AppendJSON(nil)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(empty, &decoded))
	for _, key := range []string{
		"zone_penetration", "displacement_origin", "price_velocity",
		"path_compactness", "acceptance", "central_deviation",
		"absence_persistence", "resting_bid", "resting_ask",
		"bid_consumption", "ask_consumption", "bid_absorption",
		"ask_absorption", "bid_refill", "ask_refill", "order_block",
		"supply_zone", "demand_zone", "liq_proximity", "cascade",
		"flow_imbalance", "trade_rate", "baseline_stats",
		"outlier_trade", "candle",
	} {
		require.Contains(t, decoded, key)
		require.Nil(t, decoded[key])
	}
}
