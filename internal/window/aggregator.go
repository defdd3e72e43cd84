package window

import (
	"math"

	"main/internal/obs"
	"main/internal/ring"
	"main/internal/schema"
)

// Config controls window width and baseline behavior.
type Config struct {
	WindowMs        int64
	BaselineWindows int
	WarmWindows     int
	PromotionSigma  float64
	PromotedCap     int
	RecentPriceCap  int
	MaxGapMs        int64
}

// DefaultConfig returns the default aggregation parameters.
func DefaultConfig() Config {
	return Config{
		WindowMs:        1000,
		BaselineWindows: 60,
		WarmWindows:     10,
		PromotionSigma:  2.0,
		PromotedCap:     50,
		RecentPriceCap:  100,
		MaxGapMs:        60_000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WindowMs <= 0 {
		c.WindowMs = def.WindowMs
	}
	if c.BaselineWindows <= 0 {
		c.BaselineWindows = def.BaselineWindows
	}
	if c.WarmWindows <= 0 {
		c.WarmWindows = def.WarmWindows
	}
	if c.PromotionSigma <= 0 {
		c.PromotionSigma = def.PromotionSigma
	}
	if c.PromotedCap <= 0 {
		c.PromotedCap = def.PromotedCap
	}
	if c.RecentPriceCap <= 0 {
		c.RecentPriceCap = def.RecentPriceCap
	}
	if c.MaxGapMs <= 0 {
		c.MaxGapMs = def.MaxGapMs
	}
	return c
}

// WindowStats is one closed (or in-progress) aggregation window.
type WindowStats struct {
	StartTsMs int64
	Count     int
	Volume    float64
	MeanPrice float64
}

// PromotedEvent is a factual outlier notice: a trade whose quantity
// exceeded the warm baseline by the configured sigma distance.
type PromotedEvent struct {
	TsMs  int64
	Price float64
	Qty   float64
	Sigma float64
}

// PricePoint is one entry of the bounded recent-price history.
type PricePoint struct {
	TsMs  int64
	Price float64
}

// BaselineStats summarizes typical trade size over the baseline windows.
type BaselineStats struct {
	Windows       int
	MeanTradeSize float64
	StdTradeSize  float64
	MeanVolume    float64
	Warm          bool
}

type symbolState struct {
	windowStart int64
	count       int
	volume      float64
	priceSum    float64

	baseline *ring.Buffer[WindowStats]
	promoted *ring.Buffer[PromotedEvent]
	prices   *ring.Buffer[PricePoint]

	candle    schema.Candle
	hasCandle bool
}

// Aggregator maintains fixed-width trade windows, a rolling baseline and a
// persistent OHLC candle per symbol. Time moves forward only, driven by
// event timestamps or explicit advancement.
type Aggregator struct {
	cfg     Config
	metrics *obs.Metrics
	symbols map[string]*symbolState
}

// New creates an aggregator.
func New(cfg Config, metrics *obs.Metrics) *Aggregator {
	return &Aggregator{
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		symbols: make(map[string]*symbolState),
	}
}

func (a *Aggregator) state(symbol string) *symbolState {
	st, ok := a.symbols[symbol]
	if !ok {
		st = &symbolState{
			windowStart: -1,
			baseline:    ring.New[WindowStats](a.cfg.BaselineWindows),
			promoted:    ring.New[PromotedEvent](a.cfg.PromotedCap),
			prices:      ring.New[PricePoint](a.cfg.RecentPriceCap),
		}
		a.symbols[symbol] = st
	}
	return st
}

// ApplyTrade folds one normalized trade into the current window, the
// candle and the recent-price history, closing due windows first.
func (a *Aggregator) ApplyTrade(trade schema.Trade) {
	st := a.state(trade.Symbol)
	a.roll(st, trade.TsMs)

	if warm, mean, std := a.baselineTradeSize(st); warm && std > 0 {
		if trade.Qty > mean+a.cfg.PromotionSigma*std {
			st.promoted.Append(PromotedEvent{
				TsMs:  trade.TsMs,
				Price: trade.Price,
				Qty:   trade.Qty,
				Sigma: (trade.Qty - mean) / std,
			})
		}
	}

	st.count++
	st.volume += trade.Qty
	st.priceSum += trade.Price
	st.prices.Append(PricePoint{TsMs: trade.TsMs, Price: trade.Price})

	if !st.hasCandle {
		st.candle = schema.Candle{
			OpenTsMs: trade.TsMs,
			Open:     trade.Price,
			High:     trade.Price,
			Low:      trade.Price,
			Close:    trade.Price,
			Volume:   trade.Qty,
		}
		st.hasCandle = true
		return
	}
	if trade.Price > st.candle.High {
		st.candle.High = trade.Price
	}
	if trade.Price < st.candle.Low {
		st.candle.Low = trade.Price
	}
	st.candle.Close = trade.Price
	st.candle.Volume += trade.Qty
}

// MergeKline folds an exchange-provided candle into the persistent candle.
func (a *Aggregator) MergeKline(symbol string, p schema.KlinePayload) {
	st := a.state(symbol)
	if !st.hasCandle {
		st.candle = schema.Candle{
			OpenTsMs: p.CloseTsMs,
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			Volume:   p.Volume,
		}
		st.hasCandle = true
		return
	}
	if p.High > st.candle.High {
		st.candle.High = p.High
	}
	if p.Low < st.candle.Low {
		st.candle.Low = p.Low
	}
	st.candle.Close = p.Close
}

// AdvanceTo closes windows due at the given time for every symbol.
func (a *Aggregator) AdvanceTo(tsMs int64) {
	for _, st := range a.symbols {
		a.roll(st, tsMs)
	}
}

// roll closes every window that ends at or before ts. A gap beyond
// MaxGapMs snaps the pointer forward instead of looping empty windows.
func (a *Aggregator) roll(st *symbolState, tsMs int64) {
	w := a.cfg.WindowMs
	if st.windowStart < 0 {
		st.windowStart = (tsMs / w) * w
		return
	}
	if tsMs-st.windowStart > a.cfg.MaxGapMs {
		a.closeWindow(st)
		st.windowStart = (tsMs / w) * w
		return
	}
	for tsMs >= st.windowStart+w {
		a.closeWindow(st)
		st.windowStart += w
	}
}

func (a *Aggregator) closeWindow(st *symbolState) {
	stats := WindowStats{
		StartTsMs: st.windowStart,
		Count:     st.count,
		Volume:    st.volume,
	}
	if st.count > 0 {
		stats.MeanPrice = st.priceSum / float64(st.count)
	}
	st.baseline.Append(stats)
	st.count = 0
	st.volume = 0
	st.priceSum = 0
	a.metrics.IncWindowClose()
}

func (a *Aggregator) baselineTradeSize(st *symbolState) (warm bool, mean, std float64) {
	windows := st.baseline.Tail(0)
	if len(windows) < a.cfg.WarmWindows {
		return false, 0, 0
	}
	samples := make([]float64, 0, len(windows))
	for _, w := range windows {
		if w.Count > 0 {
			samples = append(samples, w.Volume/float64(w.Count))
		}
	}
	if len(samples) < 2 {
		return false, 0, 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	mean = sum / float64(len(samples))
	sq := 0.0
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(samples)-1))
	return true, mean, std
}

// Candle returns a copy of the persistent candle for a symbol.
func (a *Aggregator) Candle(symbol string) (schema.Candle, bool) {
	st, ok := a.symbols[symbol]
	if !ok || !st.hasCandle {
		return schema.Candle{}, false
	}
	return st.candle, true
}

// CurrentWindow returns the in-progress window for a symbol.
func (a *Aggregator) CurrentWindow(symbol string) (WindowStats, bool) {
	st, ok := a.symbols[symbol]
	if !ok || st.windowStart < 0 {
		return WindowStats{}, false
	}
	stats := WindowStats{
		StartTsMs: st.windowStart,
		Count:     st.count,
		Volume:    st.volume,
	}
	if st.count > 0 {
		stats.MeanPrice = st.priceSum / float64(st.count)
	}
	return stats, true
}

// Baseline returns the rolling baseline summary for a symbol.
func (a *Aggregator) Baseline(symbol string) BaselineStats {
	st, ok := a.symbols[symbol]
	if !ok {
		return BaselineStats{}
	}
	warm, mean, std := a.baselineTradeSize(st)
	windows := st.baseline.Tail(0)
	volSum := 0.0
	for _, w := range windows {
		volSum += w.Volume
	}
	stats := BaselineStats{
		Windows:       len(windows),
		MeanTradeSize: mean,
		StdTradeSize:  std,
		Warm:          warm,
	}
	if len(windows) > 0 {
		stats.MeanVolume = volSum / float64(len(windows))
	}
	return stats
}

// RecentPrices copies out the most recent n price points, oldest first.
func (a *Aggregator) RecentPrices(symbol string, n int) []PricePoint {
	st, ok := a.symbols[symbol]
	if !ok {
		return nil
	}
	return st.prices.Tail(n)
}

// Promoted copies out the most recent n promoted events, oldest first.
func (a *Aggregator) Promoted(symbol string, n int) []PromotedEvent {
	st, ok := a.symbols[symbol]
	if !ok {
		return nil
	}
	return st.promoted.Tail(n)
}
