package primitive

import "strconv"

// Bundle is one symbol's complete set of structural facts at a single
// observation time. A nil field means the fact was absent or its
// computation faulted; consumers must treat the two the same way.
type Bundle struct {
	Symbol       string
	ComputedAtMs int64

	ZonePenetration    *PenetrationFact
	DisplacementOrigin *DisplacementOriginFact
	PriceVelocity      *VelocityFact
	PathCompactness    *CompactnessFact
	Acceptance         *AcceptanceFact
	CentralDeviation   *DeviationFact
	AbsencePersistence *AbsenceFact

	RestingBid     *RestingFact
	RestingAsk     *RestingFact
	BidConsumption *ConsumptionFact
	AskConsumption *ConsumptionFact
	BidAbsorption  *AbsorptionFact
	AskAbsorption  *AbsorptionFact
	BidRefill      *RefillFact
	AskRefill      *RefillFact

	OrderBlock *OrderBlockFact
	SupplyZone *ZoneFact
	DemandZone *ZoneFact

	LiqProximity *ProximityFact
	Cascade      *CascadeFact

	FlowImbalance *FlowFact
	TradeRate     *TradeRateFact
	BaselineStats *BaselineFact
	OutlierTrade  *OutlierFact
	Candle        *CandleFact
}

// AppendJSON serializes the bundle field by field. The output is byte
// stable for equal bundles, which is what replay verification compares.
// Absent facts are serialized as null so every key is always present.
func (b *Bundle) AppendJSON(dst []byte) []byte {
	w := jsonWriter{buf: dst}
	w.open()
	w.str("symbol", b.Symbol)
	w.num("computed_at_ms", float64(b.ComputedAtMs))

	w.fact("zone_penetration", b.ZonePenetration != nil, func() {
		f := b.ZonePenetration
		w.num("depth", f.Depth)
		w.num("ratio", f.Ratio)
		w.boolean("from_above", f.FromAbove)
	})
	w.fact("displacement_origin", b.DisplacementOrigin != nil, func() {
		f := b.DisplacementOrigin
		w.num("low", f.Low)
		w.num("high", f.High)
		w.num("dwell_ms", float64(f.DwellMs))
	})
	w.fact("price_velocity", b.PriceVelocity != nil, func() {
		w.num("per_sec", b.PriceVelocity.PerSec)
	})
	w.fact("path_compactness", b.PathCompactness != nil, func() {
		w.num("ratio", b.PathCompactness.Ratio)
	})
	w.fact("acceptance", b.Acceptance != nil, func() {
		f := b.Acceptance
		w.num("ratio", f.Ratio)
		w.num("body_range", f.BodyRange)
		w.num("full_range", f.FullRange)
	})
	w.fact("central_deviation", b.CentralDeviation != nil, func() {
		w.num("deviation", b.CentralDeviation.Deviation)
	})
	w.fact("absence_persistence", b.AbsencePersistence != nil, func() {
		f := b.AbsencePersistence
		w.num("covered_dur", f.CoveredDur)
		w.num("absence_dur", f.AbsenceDur)
		w.num("persistence", f.Persistence)
		w.num("absence_ratio", f.AbsenceRatio)
	})
	w.fact("resting_bid", b.RestingBid != nil, func() {
		w.num("size", b.RestingBid.Size)
	})
	w.fact("resting_ask", b.RestingAsk != nil, func() {
		w.num("size", b.RestingAsk.Size)
	})
	w.fact("bid_consumption", b.BidConsumption != nil, func() {
		w.num("delta", b.BidConsumption.Delta)
	})
	w.fact("ask_consumption", b.AskConsumption != nil, func() {
		w.num("delta", b.AskConsumption.Delta)
	})
	w.fact("bid_absorption", b.BidAbsorption != nil, func() {
		w.num("consumed", b.BidAbsorption.Consumed)
		w.num("price_move", b.BidAbsorption.PriceMove)
	})
	w.fact("ask_absorption", b.AskAbsorption != nil, func() {
		w.num("consumed", b.AskAbsorption.Consumed)
		w.num("price_move", b.AskAbsorption.PriceMove)
	})
	w.fact("bid_refill", b.BidRefill != nil, func() {
		w.num("delta", b.BidRefill.Delta)
	})
	w.fact("ask_refill", b.AskRefill != nil, func() {
		w.num("delta", b.AskRefill.Delta)
	})
	w.fact("order_block", b.OrderBlock != nil, func() {
		f := b.OrderBlock
		w.num("center", f.Center)
		w.num("band", f.Band)
		w.num("strength", f.Strength)
		w.num("interactions", float64(f.Interactions))
		w.num("burstiness", f.Burstiness)
	})
	w.zone("supply_zone", b.SupplyZone)
	w.zone("demand_zone", b.DemandZone)
	w.fact("liq_proximity", b.LiqProximity != nil, func() {
		f := b.LiqProximity
		w.num("long_count", float64(f.LongCount))
		w.num("short_count", float64(f.ShortCount))
		w.num("long_value", f.LongValue)
		w.num("short_value", f.ShortValue)
		w.num("nearest_dist", f.NearestDist)
	})
	w.fact("cascade", b.Cascade != nil, func() {
		f := b.Cascade
		w.str("phase", f.Phase.String())
		w.num("liq_5s", float64(f.Liq5s))
		w.num("liq_30s", float64(f.Liq30s))
		w.num("liq_60s", float64(f.Liq60s))
		w.num("at_risk", float64(f.AtRisk))
	})
	w.fact("flow_imbalance", b.FlowImbalance != nil, func() {
		f := b.FlowImbalance
		w.num("buyer_value", f.BuyerValue)
		w.num("seller_value", f.SellerValue)
		w.num("imbalance", f.Imbalance)
	})
	w.fact("trade_rate", b.TradeRate != nil, func() {
		f := b.TradeRate
		w.num("count", float64(f.Count))
		w.num("volume", f.Volume)
	})
	w.fact("baseline_stats", b.BaselineStats != nil, func() {
		f := b.BaselineStats
		w.num("mean_trade_size", f.MeanTradeSize)
		w.num("std_trade_size", f.StdTradeSize)
		w.num("windows", float64(f.Windows))
	})
	w.fact("outlier_trade", b.OutlierTrade != nil, func() {
		f := b.OutlierTrade
		w.num("ts_ms", float64(f.TsMs))
		w.num("price", f.Price)
		w.num("qty", f.Qty)
		w.num("sigma", f.Sigma)
	})
	w.fact("candle", b.Candle != nil, func() {
		c := b.Candle.Candle
		w.num("open_ts_ms", float64(c.OpenTsMs))
		w.num("open", c.Open)
		w.num("high", c.High)
		w.num("low", c.Low)
		w.num("close", c.Close)
		w.num("volume", c.Volume)
	})
	w.close()
	return w.buf
}

// jsonWriter builds JSON objects by hand so the field order and number
// formatting never depend on reflection.
type jsonWriter struct {
	buf   []byte
	first bool
}

func (w *jsonWriter) open() {
	w.buf = append(w.buf, '{')
	w.first = true
}

func (w *jsonWriter) close() {
	w.buf = append(w.buf, '}')
	w.first = false
}

func (w *jsonWriter) key(name string) {
	if !w.first {
		w.buf = append(w.buf, ',')
	}
	w.first = false
	w.buf = strconv.AppendQuote(w.buf, name)
	w.buf = append(w.buf, ':')
}

func (w *jsonWriter) str(name, v string) {
	w.key(name)
	w.buf = strconv.AppendQuote(w.buf, v)
}

func (w *jsonWriter) num(name string, v float64) {
	w.key(name)
	w.buf = strconv.AppendFloat(w.buf, v, 'g', -1, 64)
}

func (w *jsonWriter) boolean(name string, v bool) {
	w.key(name)
	w.buf = strconv.AppendBool(w.buf, v)
}

func (w *jsonWriter) fact(name string, present bool, fields func()) {
	w.key(name)
	if !present {
		w.buf = append(w.buf, "null"...)
		return
	}
	w.open()
	fields()
	w.close()
}

func (w *jsonWriter) zone(name string, z *ZoneFact) {
	w.fact(name, z != nil, func() {
		w.str("kind", z.Kind.String())
		w.num("low", z.Low)
		w.num("high", z.High)
		w.num("node_count", float64(z.NodeCount))
		w.num("total_strength", z.TotalStrength)
		w.boolean("retested", z.Retested)
	})
}
