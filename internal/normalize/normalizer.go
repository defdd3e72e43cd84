package normalize

import (
	"math"
	"sort"

	"main/internal/obs"
	"main/internal/ring"
	"main/internal/schema"
)

const depthLevelsPerSide = 5

// Config bounds the per-symbol history buffers.
type Config struct {
	TradeCap       int
	LiquidationCap int
	DepthCap       int
	PositionCap    int
}

// DefaultConfig returns the default buffer bounds.
func DefaultConfig() Config {
	return Config{
		TradeCap:       500,
		LiquidationCap: 200,
		DepthCap:       100,
		PositionCap:    50,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TradeCap <= 0 {
		c.TradeCap = def.TradeCap
	}
	if c.LiquidationCap <= 0 {
		c.LiquidationCap = def.LiquidationCap
	}
	if c.DepthCap <= 0 {
		c.DepthCap = def.DepthCap
	}
	if c.PositionCap <= 0 {
		c.PositionCap = def.PositionCap
	}
	return c
}

// Normalizer translates raw payloads into canonical records and keeps
// bounded rolling history per symbol. Malformed input is dropped and
// counted; nothing escapes this boundary.
type Normalizer struct {
	cfg     Config
	metrics *obs.Metrics

	trades       map[string]*ring.Buffer[schema.Trade]
	liquidations map[string]*ring.Buffer[schema.Liquidation]
	depths       map[string]*ring.Buffer[schema.DepthSnapshot]
	positions    map[string]*ring.Buffer[schema.Position]

	lastPrice map[string]float64
}

// New creates a normalizer with the given buffer bounds.
func New(cfg Config, metrics *obs.Metrics) *Normalizer {
	return &Normalizer{
		cfg:          cfg.withDefaults(),
		metrics:      metrics,
		trades:       make(map[string]*ring.Buffer[schema.Trade]),
		liquidations: make(map[string]*ring.Buffer[schema.Liquidation]),
		depths:       make(map[string]*ring.Buffer[schema.DepthSnapshot]),
		positions:    make(map[string]*ring.Buffer[schema.Position]),
		lastPrice:    make(map[string]float64),
	}
}

func validNumber(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (n *Normalizer) drop() {
	n.metrics.IncDrop(obs.DropMalformed)
}

// ApplyTrade normalizes a trade payload. The aggressor side comes from the
// maker flag and is cross-validated against the latest depth snapshot; the
// book wins on disagreement.
func (n *Normalizer) ApplyTrade(tsMs int64, symbol string, p schema.TradePayload) (schema.Trade, bool) {
	if !validNumber(p.Price, p.Qty) || p.Price <= 0 || p.Qty <= 0 {
		n.drop()
		return schema.Trade{}, false
	}

	side := schema.SideBuy
	if p.IsBuyerMaker {
		side = schema.SideSell
	}
	validation := schema.SideUnvalidated
	if depth, ok := n.Depth(symbol); ok && depth.BestBid > 0 && depth.BestAsk > 0 {
		switch {
		case p.Price >= depth.BestAsk:
			if side == schema.SideBuy {
				validation = schema.SideValidated
			} else {
				side = schema.SideBuy
				validation = schema.SideMismatch
			}
		case p.Price <= depth.BestBid:
			if side == schema.SideSell {
				validation = schema.SideValidated
			} else {
				side = schema.SideSell
				validation = schema.SideMismatch
			}
		}
	}

	trade := schema.Trade{
		TsMs:       tsMs,
		Symbol:     symbol,
		Price:      p.Price,
		Qty:        p.Qty,
		Value:      p.Price * p.Qty,
		Side:       side,
		Validation: validation,
	}
	n.tradeBuf(symbol).Append(trade)
	n.lastPrice[symbol] = p.Price
	return trade, true
}

// ApplyLiquidation normalizes a liquidation payload.
func (n *Normalizer) ApplyLiquidation(tsMs int64, symbol string, p schema.LiquidationPayload) (schema.Liquidation, bool) {
	if !validNumber(p.Price, p.Qty) || p.Price <= 0 || p.Qty <= 0 || p.Side == schema.SideUnknown {
		n.drop()
		return schema.Liquidation{}, false
	}
	liq := schema.Liquidation{
		TsMs:   tsMs,
		Symbol: symbol,
		Price:  p.Price,
		Qty:    p.Qty,
		Value:  p.Price * p.Qty,
		Side:   p.Side,
	}
	n.liquidationBuf(symbol).Append(liq)
	return liq, true
}

// ApplyDepth normalizes a depth payload, aggregating at most the top five
// levels per side. The previous snapshot stays reachable for diffing.
func (n *Normalizer) ApplyDepth(tsMs int64, symbol string, p schema.DepthPayload) (schema.DepthSnapshot, bool) {
	if len(p.Bids) == 0 && len(p.Asks) == 0 {
		n.drop()
		return schema.DepthSnapshot{}, false
	}
	bestBid, bidSize, ok := aggregateSide(p.Bids, true)
	if !ok {
		n.drop()
		return schema.DepthSnapshot{}, false
	}
	bestAsk, askSize, ok := aggregateSide(p.Asks, false)
	if !ok {
		n.drop()
		return schema.DepthSnapshot{}, false
	}
	if bestBid > 0 && bestAsk > 0 && bestBid >= bestAsk {
		n.drop()
		return schema.DepthSnapshot{}, false
	}
	snap := schema.DepthSnapshot{
		TsMs:    tsMs,
		Symbol:  symbol,
		BestBid: bestBid,
		BestAsk: bestAsk,
		BidSize: bidSize,
		AskSize: askSize,
	}
	n.depthBuf(symbol).Append(snap)
	return snap, true
}

func aggregateSide(levels []schema.DepthLevel, isBid bool) (best, size float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, true
	}
	sorted := make([]schema.DepthLevel, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool {
		if isBid {
			return sorted[i].Price > sorted[j].Price
		}
		return sorted[i].Price < sorted[j].Price
	})
	limit := len(sorted)
	if limit > depthLevelsPerSide {
		limit = depthLevelsPerSide
	}
	for i := 0; i < limit; i++ {
		lv := sorted[i]
		if !validNumber(lv.Price, lv.Size) || lv.Price <= 0 || lv.Size < 0 {
			return 0, 0, false
		}
		size += lv.Size
	}
	return sorted[0].Price, size, true
}

// ApplyPosition records a derivative-exchange position fact.
func (n *Normalizer) ApplyPosition(tsMs int64, symbol string, p schema.HLPositionPayload) (schema.Position, bool) {
	if !validNumber(p.Size, p.EntryPrice, p.LiqPrice) || p.Size == 0 || p.LiqPrice <= 0 {
		n.drop()
		return schema.Position{}, false
	}
	pos := schema.Position{
		TsMs:       tsMs,
		Symbol:     symbol,
		User:       p.User,
		Size:       p.Size,
		EntryPrice: p.EntryPrice,
		LiqPrice:   p.LiqPrice,
	}
	n.positionBuf(symbol).Append(pos)
	return pos, true
}

// ApplyOrder validates a derivative-exchange resting order fact. Orders
// only gate admission and feed the event counters; no history is kept.
func (n *Normalizer) ApplyOrder(tsMs int64, symbol string, p schema.HLOrderPayload) bool {
	if !validNumber(p.Price, p.Qty) || p.Price <= 0 || p.Qty <= 0 || p.Side == schema.SideUnknown {
		n.drop()
		return false
	}
	return true
}

// ApplyPrice records a bare price fact.
func (n *Normalizer) ApplyPrice(symbol string, p schema.HLPricePayload) bool {
	if !validNumber(p.Price) || p.Price <= 0 {
		n.drop()
		return false
	}
	n.lastPrice[symbol] = p.Price
	return true
}

// ApplyOpenInterest validates an open-interest update. Like orders it is
// admission-only; nothing downstream consumes the value yet.
func (n *Normalizer) ApplyOpenInterest(symbol string, p schema.OIPayload) bool {
	if !validNumber(p.OpenInterest) || p.OpenInterest < 0 {
		n.drop()
		return false
	}
	return true
}

// ValidateKline checks a kline payload without buffering it; candles are
// owned by the aggregator.
func (n *Normalizer) ValidateKline(p schema.KlinePayload) bool {
	if !validNumber(p.Open, p.High, p.Low, p.Close, p.Volume) ||
		p.Open <= 0 || p.High <= 0 || p.Low <= 0 || p.Close <= 0 || p.Volume < 0 ||
		p.High < p.Low {
		n.drop()
		return false
	}
	return true
}

// Trades copies out the most recent n trades for a symbol, oldest first.
func (n *Normalizer) Trades(symbol string, count int) []schema.Trade {
	return n.trades[symbol].Tail(count)
}

// Liquidations copies out the most recent n liquidations, oldest first.
func (n *Normalizer) Liquidations(symbol string, count int) []schema.Liquidation {
	return n.liquidations[symbol].Tail(count)
}

// Depth returns the latest depth snapshot.
func (n *Normalizer) Depth(symbol string) (schema.DepthSnapshot, bool) {
	return n.depths[symbol].Last()
}

// PrevDepth returns the generation before the latest depth snapshot.
func (n *Normalizer) PrevDepth(symbol string) (schema.DepthSnapshot, bool) {
	buf := n.depths[symbol]
	if buf.Len() < 2 {
		return schema.DepthSnapshot{}, false
	}
	return buf.At(buf.Len() - 2)
}

// Positions copies out the tracked positions for a symbol.
func (n *Normalizer) Positions(symbol string) []schema.Position {
	return n.positions[symbol].Tail(0)
}

// LastPrice returns the most recent observed price for a symbol.
func (n *Normalizer) LastPrice(symbol string) (float64, bool) {
	p, ok := n.lastPrice[symbol]
	return p, ok
}

// TradeCount returns the number of buffered trades for a symbol.
func (n *Normalizer) TradeCount(symbol string) int {
	return n.trades[symbol].Len()
}

func (n *Normalizer) tradeBuf(symbol string) *ring.Buffer[schema.Trade] {
	buf, ok := n.trades[symbol]
	if !ok {
		buf = ring.New[schema.Trade](n.cfg.TradeCap)
		n.trades[symbol] = buf
	}
	return buf
}

func (n *Normalizer) liquidationBuf(symbol string) *ring.Buffer[schema.Liquidation] {
	buf, ok := n.liquidations[symbol]
	if !ok {
		buf = ring.New[schema.Liquidation](n.cfg.LiquidationCap)
		n.liquidations[symbol] = buf
	}
	return buf
}

func (n *Normalizer) depthBuf(symbol string) *ring.Buffer[schema.DepthSnapshot] {
	buf, ok := n.depths[symbol]
	if !ok {
		buf = ring.New[schema.DepthSnapshot](n.cfg.DepthCap)
		n.depths[symbol] = buf
	}
	return buf
}

func (n *Normalizer) positionBuf(symbol string) *ring.Buffer[schema.Position] {
	buf, ok := n.positions[symbol]
	if !ok {
		buf = ring.New[schema.Position](n.cfg.PositionCap)
		n.positions[symbol] = buf
	}
	return buf
}
