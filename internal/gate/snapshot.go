package gate

import (
	"sort"
	"time"

	"main/internal/memstore"
	"main/internal/obs"
	"main/internal/primitive"
	"main/internal/schema"

	"github.com/yanun0323/errors"
)

var ErrNotReady = errors.New("gate: no events observed yet")

// Snapshot is one complete, immutable observation of every symbol that
// has produced data. Symbols lists the active symbols in sorted order
// and Bundles holds their facts in that same order; the counters are a
// copy taken at query time. Bundles are freshly built per query and
// never shared with pipeline state.
type Snapshot struct {
	Status   Status
	TsMs     int64
	Seq      uint64
	Symbols  []string
	Counters obs.Snapshot
	Bundles  []*primitive.Bundle
}

// Bundle returns the facts for one symbol, nil when the symbol has
// produced no data.
func (s *Snapshot) Bundle(symbol string) *primitive.Bundle {
	for _, b := range s.Bundles {
		if b.Symbol == symbol {
			return b
		}
	}
	return nil
}

// AppendJSON serializes the snapshot with byte-stable output. Latency
// counters are omitted; every serialized field is a pure function of
// the ingested events.
func (s *Snapshot) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"status":"`...)
	dst = append(dst, s.Status.String()...)
	dst = append(dst, `","ts_ms":`...)
	dst = appendInt(dst, s.TsMs)
	dst = append(dst, `,"seq":`...)
	dst = appendUint(dst, s.Seq)
	dst = append(dst, `,"symbols":[`...)
	for i, sym := range s.Symbols {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '"')
		dst = append(dst, sym...)
		dst = append(dst, '"')
	}
	dst = append(dst, `],"counters":{"events":`...)
	dst = appendUint(dst, sumCounts(s.Counters.EventCounts))
	dst = append(dst, `,"drops":`...)
	dst = appendUint(dst, sumCounts(s.Counters.DropCounts))
	dst = append(dst, `,"primitive_faults":`...)
	dst = appendUint(dst, s.Counters.PrimitiveFaults)
	dst = append(dst, `},"bundles":[`...)
	for i, b := range s.Bundles {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = b.AppendJSON(dst)
	}
	return append(dst, "]}"...)
}

func sumCounts[K comparable](m map[K]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

func appendInt(dst []byte, v int64) []byte {
	if v < 0 {
		dst = append(dst, '-')
		v = -v
	}
	return appendUint(dst, uint64(v))
}

func appendUint(dst []byte, v uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// computer is one slot of the fact dispatch table.
type computer struct {
	name string
	fn   func(g *Gate, sym string, b *primitive.Bundle) error
}

// computers is the fixed fact evaluation order. Entries later in the
// table may read fields set by earlier ones (cascade reads proximity,
// penetration reads zones). The table is a package variable so faults
// can be injected in tests.
var computers = []computer{
	{"candle", computeCandle},
	{"acceptance", computeAcceptance},
	{"price_velocity", computeVelocity},
	{"path_compactness", computeCompactness},
	{"displacement_origin", computeDisplacement},
	{"central_deviation", computeDeviation},
	{"resting_bid", computeRestingBid},
	{"resting_ask", computeRestingAsk},
	{"bid_consumption", computeBidConsumption},
	{"ask_consumption", computeAskConsumption},
	{"bid_absorption", computeBidAbsorption},
	{"ask_absorption", computeAskAbsorption},
	{"bid_refill", computeBidRefill},
	{"ask_refill", computeAskRefill},
	{"zones", computeZones},
	{"zone_penetration", computePenetration},
	{"absence_persistence", computeAbsence},
	{"order_block", computeOrderBlock},
	{"liq_proximity", computeProximity},
	{"cascade", computeCascade},
	{"flow_imbalance", computeFlow},
	{"trade_rate", computeTradeRate},
	{"baseline_stats", computeBaseline},
	{"outlier_trade", computeOutlier},
}

// Query builds a snapshot of every observed symbol in sorted order.
// Each fact is computed exactly once; a fact that errors or panics is
// recorded as a fault and left absent without touching its neighbors.
func (g *Gate) Query() (*Snapshot, error) {
	if g.status == StatusFailed {
		return nil, ErrHalted
	}
	if g.clockMs < 0 {
		return nil, ErrNotReady
	}
	started := time.Now()
	g.snapshots++
	snap := &Snapshot{Status: g.status, TsMs: g.clockMs, Seq: g.snapshots}
	for _, sym := range g.symbols {
		if !g.seen[sym] {
			continue
		}
		b := &primitive.Bundle{Symbol: sym, ComputedAtMs: g.clockMs}
		for _, c := range computers {
			g.runComputer(c, sym, b)
		}
		snap.Symbols = append(snap.Symbols, sym)
		snap.Bundles = append(snap.Bundles, b)
	}
	g.metrics.IncSnapshot()
	g.metrics.ObserveQuery(time.Since(started))
	snap.Counters = g.metrics.Snapshot()
	return snap, nil
}

func (g *Gate) runComputer(c computer, sym string, b *primitive.Bundle) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.IncPrimitiveFault()
		}
	}()
	if err := c.fn(g, sym, b); err != nil {
		g.metrics.IncPrimitiveFault()
	}
}

func computeCandle(g *Gate, sym string, b *primitive.Bundle) error {
	c, ok := g.agg.Candle(sym)
	fact, err := primitive.CandleOf(c, ok)
	b.Candle = fact
	return err
}

func computeAcceptance(g *Gate, sym string, b *primitive.Bundle) error {
	c, ok := g.agg.Candle(sym)
	if !ok {
		return nil
	}
	fact, err := primitive.AcceptanceRatio(c.Open, c.High, c.Low, c.Close)
	b.Acceptance = fact
	return err
}

func computeVelocity(g *Gate, sym string, b *primitive.Bundle) error {
	// A late admitted trade puts an older timestamp at the tail of the
	// price history; velocity is undefined there, not a fault.
	pts := g.agg.RecentPrices(sym, 2)
	if len(pts) < 2 || pts[1].TsMs <= pts[0].TsMs {
		return nil
	}
	fact, err := primitive.Velocity(pts[0].Price, pts[1].Price, pts[0].TsMs, pts[1].TsMs)
	b.PriceVelocity = fact
	return err
}

func pricePath(g *Gate, sym string) []float64 {
	pts := g.agg.RecentPrices(sym, 0)
	if len(pts) == 0 {
		return nil
	}
	path := make([]float64, len(pts))
	for i, pt := range pts {
		path[i] = pt.Price
	}
	return path
}

func computeCompactness(g *Gate, sym string, b *primitive.Bundle) error {
	path := pricePath(g, sym)
	if len(path) < 2 {
		return nil
	}
	fact, err := primitive.Compactness(path)
	b.PathCompactness = fact
	return err
}

func computeDisplacement(g *Gate, sym string, b *primitive.Bundle) error {
	pts := g.agg.RecentPrices(sym, 0)
	if len(pts) == 0 {
		return nil
	}
	points := make([]primitive.Point, len(pts))
	for i, pt := range pts {
		points[i] = primitive.Point{TsMs: pt.TsMs, Price: pt.Price}
	}
	// Observation order can trail event time when a late trade was
	// admitted; dwell is measured over event time.
	sort.Slice(points, func(i, j int) bool { return points[i].TsMs < points[j].TsMs })
	fact, err := primitive.DisplacementOrigin(points)
	b.DisplacementOrigin = fact
	return err
}

func computeDeviation(g *Gate, sym string, b *primitive.Bundle) error {
	price, ok := g.norm.LastPrice(sym)
	if !ok {
		return nil
	}
	win, ok := g.agg.CurrentWindow(sym)
	if !ok || win.Count == 0 {
		return nil
	}
	fact, err := primitive.CentralDeviation(price, win.MeanPrice)
	b.CentralDeviation = fact
	return err
}

func computeRestingBid(g *Gate, sym string, b *primitive.Bundle) error {
	snap, ok := g.norm.Depth(sym)
	if !ok {
		return nil
	}
	fact, err := primitive.RestingSize(snap.BidSize)
	b.RestingBid = fact
	return err
}

func computeRestingAsk(g *Gate, sym string, b *primitive.Bundle) error {
	snap, ok := g.norm.Depth(sym)
	if !ok {
		return nil
	}
	fact, err := primitive.RestingSize(snap.AskSize)
	b.RestingAsk = fact
	return err
}

func computeBidConsumption(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Consumption(prev.BidSize, curr.BidSize)
	b.BidConsumption = fact
	return err
}

func computeAskConsumption(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Consumption(prev.AskSize, curr.AskSize)
	b.AskConsumption = fact
	return err
}

func computeBidAbsorption(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Absorption(prev.BidSize, curr.BidSize, prev.BestBid, curr.BestBid, holdTolerance(curr.BestBid))
	b.BidAbsorption = fact
	return err
}

func computeAskAbsorption(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Absorption(prev.AskSize, curr.AskSize, prev.BestAsk, curr.BestAsk, holdTolerance(curr.BestAsk))
	b.AskAbsorption = fact
	return err
}

func computeBidRefill(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Refill(prev.BidSize, curr.BidSize)
	b.BidRefill = fact
	return err
}

func computeAskRefill(g *Gate, sym string, b *primitive.Bundle) error {
	prev, curr, ok := depthPair(g, sym)
	if !ok {
		return nil
	}
	fact, err := primitive.Refill(prev.AskSize, curr.AskSize)
	b.AskRefill = fact
	return err
}

// holdTolerance is the price move still counted as "price held": one
// basis point of the touch.
func holdTolerance(price float64) float64 {
	return price * 1e-4
}

func depthPair(g *Gate, sym string) (prev, curr schema.DepthSnapshot, ok bool) {
	curr, ok = g.norm.Depth(sym)
	if !ok {
		return schema.DepthSnapshot{}, schema.DepthSnapshot{}, false
	}
	prev, ok = g.norm.PrevDepth(sym)
	if !ok {
		return schema.DepthSnapshot{}, schema.DepthSnapshot{}, false
	}
	return prev, curr, true
}

func computeZones(g *Gate, sym string, b *primitive.Bundle) error {
	price, ok := g.norm.LastPrice(sym)
	if !ok {
		return nil
	}
	nodes := g.store.ActiveNodes(sym)
	if len(nodes) == 0 {
		return nil
	}
	supply, demand, err := primitive.ZoneClusters(nodes, price, primitive.DefaultZoneConfig())
	b.SupplyZone, b.DemandZone = supply, demand
	return err
}

func computePenetration(g *Gate, sym string, b *primitive.Bundle) error {
	zone := b.DemandZone
	if zone == nil {
		zone = b.SupplyZone
	}
	if zone == nil {
		return nil
	}
	path := pricePath(g, sym)
	if len(path) == 0 {
		return nil
	}
	fact, err := primitive.PenetrationDepth(path, zone.Low, zone.High)
	b.ZonePenetration = fact
	return err
}

func computeAbsence(g *Gate, sym string, b *primitive.Bundle) error {
	node, ok := strongestNode(g, sym)
	if !ok {
		return nil
	}
	winStart := float64(g.clockMs - g.cfg.ObservationWindowMs)
	winEnd := float64(g.clockMs)
	spans := make([]primitive.Span, 0, len(node.Presence))
	for _, iv := range node.Presence {
		start := float64(iv.StartMs)
		end := winEnd
		if !iv.Open() {
			end = float64(iv.EndMs)
		}
		if end <= winStart || start >= winEnd {
			continue
		}
		if start < winStart {
			start = winStart
		}
		if end > winEnd {
			end = winEnd
		}
		if end > start {
			spans = append(spans, primitive.Span{Start: start, End: end})
		}
	}
	fact, err := primitive.AbsencePersistence(spans, winStart, winEnd)
	b.AbsencePersistence = fact
	return err
}

func strongestNode(g *Gate, sym string) (memstore.Node, bool) {
	nodes := g.store.ActiveNodes(sym)
	if len(nodes) == 0 {
		return memstore.Node{}, false
	}
	best := nodes[0]
	for _, n := range nodes[1:] {
		if n.Strength > best.Strength {
			best = n
		}
	}
	return best, true
}

func computeOrderBlock(g *Gate, sym string, b *primitive.Bundle) error {
	nodes := g.store.ActiveNodes(sym)
	if len(nodes) == 0 {
		return nil
	}
	fact, err := primitive.OrderBlock(nodes, g.clockMs, primitive.DefaultOrderBlockConfig())
	b.OrderBlock = fact
	return err
}

func computeProximity(g *Gate, sym string, b *primitive.Bundle) error {
	price, ok := g.norm.LastPrice(sym)
	if !ok {
		return nil
	}
	positions := g.norm.Positions(sym)
	if len(positions) == 0 {
		return nil
	}
	fact, err := primitive.LiquidationProximity(positions, price, g.cfg.ProximityFrac)
	b.LiqProximity = fact
	return err
}

func computeCascade(g *Gate, sym string, b *primitive.Bundle) error {
	atRisk := 0
	if b.LiqProximity != nil {
		atRisk = b.LiqProximity.LongCount + b.LiqProximity.ShortCount
	}
	fact, err := primitive.CascadeObservation(g.tracker.Times(sym), g.clockMs, atRisk)
	b.Cascade = fact
	return err
}

func recentTrades(g *Gate, sym string) []schema.Trade {
	cutoff := g.clockMs - g.cfg.ObservationWindowMs
	all := g.norm.Trades(sym, 0)
	out := all[:0]
	for _, t := range all {
		if t.TsMs >= cutoff {
			out = append(out, t)
		}
	}
	return out
}

func computeFlow(g *Gate, sym string, b *primitive.Bundle) error {
	fact, err := primitive.FlowImbalance(recentTrades(g, sym))
	b.FlowImbalance = fact
	return err
}

func computeTradeRate(g *Gate, sym string, b *primitive.Bundle) error {
	fact, err := primitive.TradeRate(g.norm.Trades(sym, 0), g.clockMs-g.cfg.ObservationWindowMs)
	b.TradeRate = fact
	return err
}

func computeBaseline(g *Gate, sym string, b *primitive.Bundle) error {
	bs := g.agg.Baseline(sym)
	if !bs.Warm {
		return nil
	}
	fact, err := primitive.BaselineStats(bs.MeanTradeSize, bs.StdTradeSize, bs.Windows)
	b.BaselineStats = fact
	return err
}

func computeOutlier(g *Gate, sym string, b *primitive.Bundle) error {
	fact, err := primitive.LatestPromotion(g.agg.Promoted(sym, 1))
	b.OutlierTrade = fact
	return err
}
