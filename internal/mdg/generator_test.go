package mdg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	cfg := DefaultConfig([]string{"BTCUSDT", "ETHUSDT"})
	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
	require.Equal(t, a.NowMs(), b.NowMs())
}

func TestGeneratorEmitsEveryKind(t *testing.T) {
	gen, err := New(DefaultConfig([]string{"BTCUSDT"}))
	require.NoError(t, err)

	kinds := make(map[schema.EventType]int)
	var lastTs int64
	for i := 0; i < 1200; i++ {
		for _, ev := range gen.Next() {
			require.GreaterOrEqual(t, ev.TsMs, lastTs)
			lastTs = ev.TsMs
			require.Equal(t, "BTCUSDT", ev.Symbol)
			kinds[ev.Type]++
		}
	}

	require.Equal(t, 1200, kinds[schema.EventTrade])
	require.Positive(t, kinds[schema.EventDepth])
	require.Positive(t, kinds[schema.EventKline])
	require.Positive(t, kinds[schema.EventLiquidation])
}

func TestGeneratorRequiresSymbols(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
