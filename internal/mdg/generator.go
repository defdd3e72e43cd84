// Package mdg creates deterministic synthetic market data. The same
// seed and config always produce the same event sequence, so generated
// streams can drive repeatable pipeline runs without a live feed.
package mdg

import (
	"fmt"
	"math/rand"

	"main/internal/schema"
)

// Config controls the shape of the synthetic stream.
type Config struct {
	Symbols []string
	Seed    int64

	StartMs   int64
	BasePrice float64
	// Per-trade price step as a fraction of the current price.
	StepFrac float64
	BaseQty  float64

	TradeEveryMs int64
	DepthEveryMs int64
	KlineEveryMs int64
	// Probability of a liquidation accompanying any given trade.
	LiquidationChance float64
}

// DefaultConfig returns a stream resembling a quiet perpetual market.
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:           symbols,
		Seed:              1,
		StartMs:           1_700_000_000_000,
		BasePrice:         30_000,
		StepFrac:          0.0002,
		BaseQty:           0.5,
		TradeEveryMs:      100,
		DepthEveryMs:      500,
		KlineEveryMs:      60_000,
		LiquidationChance: 0.01,
	}
}

type symbolState struct {
	name    string
	price   float64
	open    float64
	high    float64
	low     float64
	volume  float64
	lastBid float64
	lastAsk float64
}

// Generator emits raw events in timestamp order across all symbols.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	state []*symbolState

	nowMs       int64
	nextDepthMs int64
	nextKlineMs int64
}

// New creates a generator. The symbol list must be non-empty.
func New(cfg Config) (*Generator, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	def := DefaultConfig(cfg.Symbols)
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = def.BasePrice
	}
	if cfg.StepFrac <= 0 {
		cfg.StepFrac = def.StepFrac
	}
	if cfg.BaseQty <= 0 {
		cfg.BaseQty = def.BaseQty
	}
	if cfg.TradeEveryMs <= 0 {
		cfg.TradeEveryMs = def.TradeEveryMs
	}
	if cfg.DepthEveryMs <= 0 {
		cfg.DepthEveryMs = def.DepthEveryMs
	}
	if cfg.KlineEveryMs <= 0 {
		cfg.KlineEveryMs = def.KlineEveryMs
	}
	if cfg.StartMs <= 0 {
		cfg.StartMs = def.StartMs
	}

	g := &Generator{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		nowMs:       cfg.StartMs,
		nextDepthMs: cfg.StartMs,
		nextKlineMs: cfg.StartMs + cfg.KlineEveryMs,
	}
	for i, name := range cfg.Symbols {
		// Spread the symbols across distinct price levels so zones
		// and penetration never alias between symbols.
		price := cfg.BasePrice * (1 + 0.5*float64(i))
		g.state = append(g.state, &symbolState{
			name: name, price: price,
			open: price, high: price, low: price,
		})
	}
	return g, nil
}

// NowMs returns the timestamp of the most recently emitted batch.
func (g *Generator) NowMs() int64 {
	return g.nowMs
}

// Next advances one trade interval and returns the events it produced,
// in emission order. It never returns an empty batch.
func (g *Generator) Next() []schema.RawEvent {
	g.nowMs += g.cfg.TradeEveryMs
	var out []schema.RawEvent

	for _, st := range g.state {
		out = append(out, g.trade(st)...)
	}
	if g.nowMs >= g.nextDepthMs {
		g.nextDepthMs = g.nowMs + g.cfg.DepthEveryMs
		for _, st := range g.state {
			out = append(out, g.depth(st))
		}
	}
	if g.nowMs >= g.nextKlineMs {
		g.nextKlineMs = g.nowMs + g.cfg.KlineEveryMs
		for _, st := range g.state {
			out = append(out, g.kline(st))
		}
	}
	return out
}

func (g *Generator) trade(st *symbolState) []schema.RawEvent {
	step := st.price * g.cfg.StepFrac
	st.price += (g.rng.Float64()*2 - 1) * step
	if st.price > st.high {
		st.high = st.price
	}
	if st.price < st.low {
		st.low = st.price
	}

	qty := g.cfg.BaseQty * (0.5 + g.rng.Float64())
	// Occasional outsized prints so baselines have outliers to find.
	if g.rng.Float64() < 0.02 {
		qty *= 10
	}
	st.volume += qty

	events := []schema.RawEvent{{
		TsMs:   g.nowMs,
		Symbol: st.name,
		Type:   schema.EventTrade,
		Payload: schema.TradePayload{
			Price:        st.price,
			Qty:          qty,
			IsBuyerMaker: g.rng.Float64() < 0.5,
		},
	}}

	if g.rng.Float64() < g.cfg.LiquidationChance {
		side := schema.SideSell
		if g.rng.Float64() < 0.5 {
			side = schema.SideBuy
		}
		events = append(events, schema.RawEvent{
			TsMs:   g.nowMs,
			Symbol: st.name,
			Type:   schema.EventLiquidation,
			Payload: schema.LiquidationPayload{
				Price: st.price,
				Qty:   qty * 5,
				Side:  side,
			},
		})
	}
	return events
}

func (g *Generator) depth(st *symbolState) schema.RawEvent {
	half := st.price * g.cfg.StepFrac
	st.lastBid = st.price - half
	st.lastAsk = st.price + half
	size := g.cfg.BaseQty * 20 * (0.5 + g.rng.Float64())
	return schema.RawEvent{
		TsMs:   g.nowMs,
		Symbol: st.name,
		Type:   schema.EventDepth,
		Payload: schema.DepthPayload{
			Bids: []schema.DepthLevel{{Price: st.lastBid, Size: size}},
			Asks: []schema.DepthLevel{{Price: st.lastAsk, Size: size}},
		},
	}
}

func (g *Generator) kline(st *symbolState) schema.RawEvent {
	ev := schema.RawEvent{
		TsMs:   g.nowMs,
		Symbol: st.name,
		Type:   schema.EventKline,
		Payload: schema.KlinePayload{
			Open:      st.open,
			High:      st.high,
			Low:       st.low,
			Close:     st.price,
			Volume:    st.volume,
			CloseTsMs: g.nowMs,
		},
	}
	st.open = st.price
	st.high = st.price
	st.low = st.price
	st.volume = 0
	return ev
}
