package recorder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testEvents() []schema.RawEvent {
	return []schema.RawEvent{
		{
			TsMs: 1_000, Symbol: "BTCUSDT", Type: schema.EventTrade,
			Payload: schema.TradePayload{Price: 100.5, Qty: 2, IsBuyerMaker: true},
		},
		{
			TsMs: 1_250, Symbol: "BTCUSDT", Type: schema.EventLiquidation,
			Payload: schema.LiquidationPayload{Price: 100.2, Qty: 5, Side: schema.SideSell},
		},
		{
			TsMs: 1_500, Symbol: "ETHUSDT", Type: schema.EventDepth,
			Payload: schema.DepthPayload{
				Bids: []schema.DepthLevel{{Price: 2000, Size: 3}},
				Asks: []schema.DepthLevel{{Price: 2001, Size: 4}},
			},
		},
		{
			TsMs: 2_000, Symbol: "ETHUSDT", Type: schema.EventHLPosition,
			Payload: schema.HLPositionPayload{User: "0xabc", Size: -1.5, EntryPrice: 2100, LiqPrice: 2600},
		},
	}
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	events := testEvents()
	for _, ev := range events {
		require.NoError(t, w.TryAppend(ev))
	}
	require.NoError(t, w.Close())

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)

	var got []schema.RawEvent
	require.NoError(t, pb.Run(context.Background(), func(ev schema.RawEvent) error {
		got = append(got, ev)
		return nil
	}))
	require.Equal(t, events, got)
}

func TestWriterRequiresStart(t *testing.T) {
	w, err := NewWriter(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.ErrorIs(t, w.TryAppend(schema.RawEvent{Symbol: "BTCUSDT"}), ErrNotStarted)
}

func TestPlaybackPacesByEventTime(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	for _, ev := range testEvents() {
		require.NoError(t, w.TryAppend(ev))
	}
	require.NoError(t, w.Close())

	pb, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 2})
	require.NoError(t, err)
	clock := &fakeClock{}
	pb.WithClock(clock)

	require.NoError(t, pb.Run(context.Background(), func(schema.RawEvent) error { return nil }))
	// Gaps are 250ms, 250ms, 500ms at double speed.
	require.Equal(t, []time.Duration{
		125 * time.Millisecond, 125 * time.Millisecond, 250 * time.Millisecond,
	}, clock.slept)
}

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestReaderDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.TryAppend(testEvents()[0]))
	require.NoError(t, w.Close())

	files, err := (&Playback{cfg: PlaybackConfig{Dir: dir, FilePrefix: defaultFilePrefix}}).collectFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)

	corruptLastByte(t, files[0])

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	err = pb.Run(context.Background(), func(schema.RawEvent) error { return nil })
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func corruptLastByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
