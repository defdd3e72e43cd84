package memstore

import (
	"fmt"
	"math"
	"sort"

	"main/internal/obs"
	"main/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrBandViolation     = errors.New("memstore: node price band must be positive")
	ErrStrengthRange     = errors.New("memstore: node strength out of [0,1]")
	ErrPresenceOverlap   = errors.New("memstore: presence intervals overlap")
	ErrTimeWentBackwards = errors.New("memstore: tick time regression")
)

// Config holds the decay and creation constants. Decay is linear:
// strength loses DecayRatePerSec per elapsed second, clamped at zero.
type Config struct {
	LargeTradeValue       float64
	LiquidationStrength   float64
	LargeTradeStrength    float64
	DecayRatePerSec       float64
	StrengthFloor         float64
	DormancyIdleMs        int64
	ArchiveDormantMs      int64
	PresenceGapMs         int64
	InteractionBoostLiq   float64
	InteractionBoostTrade float64
}

// DefaultConfig returns the default lifecycle constants.
func DefaultConfig() Config {
	return Config{
		LargeTradeValue:       1000,
		LiquidationStrength:   0.5,
		LargeTradeStrength:    0.3,
		DecayRatePerSec:       0.001,
		StrengthFloor:         0.05,
		DormancyIdleMs:        300_000,
		ArchiveDormantMs:      1_800_000,
		PresenceGapMs:         30_000,
		InteractionBoostLiq:   0.10,
		InteractionBoostTrade: 0.05,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LargeTradeValue <= 0 {
		c.LargeTradeValue = def.LargeTradeValue
	}
	if c.LiquidationStrength <= 0 {
		c.LiquidationStrength = def.LiquidationStrength
	}
	if c.LargeTradeStrength <= 0 {
		c.LargeTradeStrength = def.LargeTradeStrength
	}
	if c.DecayRatePerSec <= 0 {
		c.DecayRatePerSec = def.DecayRatePerSec
	}
	if c.StrengthFloor <= 0 {
		c.StrengthFloor = def.StrengthFloor
	}
	if c.DormancyIdleMs <= 0 {
		c.DormancyIdleMs = def.DormancyIdleMs
	}
	if c.ArchiveDormantMs <= 0 {
		c.ArchiveDormantMs = def.ArchiveDormantMs
	}
	if c.PresenceGapMs <= 0 {
		c.PresenceGapMs = def.PresenceGapMs
	}
	if c.InteractionBoostLiq <= 0 {
		c.InteractionBoostLiq = def.InteractionBoostLiq
	}
	if c.InteractionBoostTrade <= 0 {
		c.InteractionBoostTrade = def.InteractionBoostTrade
	}
	return c
}

// Store owns every liquidity memory node. Single-threaded; callers get
// copies only.
type Store struct {
	cfg     Config
	metrics *obs.Metrics

	nodes    map[NodeID]*Node
	bySymbol map[string][]NodeID

	// Bucket width is fixed from the first price seen per symbol so
	// precision cannot shift at decade boundaries mid-stream.
	bucketWidth map[string]float64

	lastTickMs int64
	ticked     bool
}

// New creates an empty store.
func New(cfg Config, metrics *obs.Metrics) *Store {
	return &Store{
		cfg:         cfg.withDefaults(),
		metrics:     metrics,
		nodes:       make(map[NodeID]*Node),
		bySymbol:    make(map[string][]NodeID),
		bucketWidth: make(map[string]float64),
	}
}

// BucketWidth returns the fixed bucket width for a symbol, establishing it
// from the given price on first use.
func (s *Store) BucketWidth(symbol string, price float64) float64 {
	if w, ok := s.bucketWidth[symbol]; ok {
		return w
	}
	w := math.Pow(10, math.Floor(math.Log10(price))-3)
	s.bucketWidth[symbol] = w
	return w
}

// Bucket maps a price to its bucket index for a symbol.
func (s *Store) Bucket(symbol string, price float64) int64 {
	return int64(math.Round(price / s.BucketWidth(symbol, price)))
}

// ApplyTrade updates the node owning the trade's price band, or creates
// one when the bucket is empty and the trade is large enough evidence.
func (s *Store) ApplyTrade(trade schema.Trade) {
	if trade.Side == schema.SideUnknown {
		return
	}
	width := s.BucketWidth(trade.Symbol, trade.Price)
	bucket := int64(math.Round(trade.Price / width))
	if node := s.findByBand(trade.Symbol, trade.Side, bucket, trade.Price); node != nil {
		s.touch(node, trade.TsMs, trade.Side, trade.Value, false)
		return
	}
	if trade.Value < s.cfg.LargeTradeValue {
		return
	}
	node := s.create(NodeID{Symbol: trade.Symbol, Side: trade.Side, Bucket: bucket},
		trade.Price, width, trade.TsMs, s.cfg.LargeTradeStrength, ReasonLargeTrade)
	s.touchVolumes(node, trade.Side, trade.Value)
	node.TradeCount++
}

// ApplyLiquidation updates or creates a node for a liquidation print.
func (s *Store) ApplyLiquidation(liq schema.Liquidation) {
	if liq.Side == schema.SideUnknown {
		return
	}
	width := s.BucketWidth(liq.Symbol, liq.Price)
	bucket := int64(math.Round(liq.Price / width))
	if node := s.findByBand(liq.Symbol, liq.Side, bucket, liq.Price); node != nil {
		s.touch(node, liq.TsMs, liq.Side, liq.Value, true)
		return
	}
	node := s.create(NodeID{Symbol: liq.Symbol, Side: liq.Side, Bucket: bucket},
		liq.Price, width, liq.TsMs, s.cfg.LiquidationStrength, ReasonLiquidation)
	s.touchVolumes(node, liq.Side, liq.Value)
	node.LiquidationCount++
}

// UpdateDepth refreshes resting sizes on every node whose band overlaps
// the best bid or ask. Depth is not an interaction: it does not reopen
// presence or reset idleness.
func (s *Store) UpdateDepth(snap schema.DepthSnapshot) {
	for _, id := range s.bySymbol[snap.Symbol] {
		node := s.nodes[id]
		if snap.BestBid > 0 && math.Abs(snap.BestBid-node.PriceCenter) <= node.PriceBand {
			node.RestingBidSize = snap.BidSize
		}
		if snap.BestAsk > 0 && math.Abs(snap.BestAsk-node.PriceCenter) <= node.PriceBand {
			node.RestingAskSize = snap.AskSize
		}
	}
}

func (s *Store) findByBand(symbol string, side schema.Side, bucket int64, price float64) *Node {
	for _, b := range [3]int64{bucket, bucket - 1, bucket + 1} {
		id := NodeID{Symbol: symbol, Side: side, Bucket: b}
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		if math.Abs(price-node.PriceCenter) <= node.PriceBand {
			return node
		}
	}
	return nil
}

func (s *Store) create(id NodeID, price, width float64, tsMs int64, strength float64, reason CreationReason) *Node {
	node := &Node{
		ID:                  id,
		PriceCenter:         price,
		PriceBand:           width,
		Side:                id.Side,
		InteractionCount:    1,
		FirstSeenTsMs:       tsMs,
		LastInteractionTsMs: tsMs,
		Strength:            strength,
		Confidence:          confidence(1),
		DecayRate:           s.cfg.DecayRatePerSec,
		Presence:            []Interval{{StartMs: tsMs, EndMs: -1}},
		State:               StateActive,
		Reason:              reason,
	}
	s.nodes[id] = node
	s.bySymbol[id.Symbol] = append(s.bySymbol[id.Symbol], id)
	return node
}

func (s *Store) touch(node *Node, tsMs int64, side schema.Side, value float64, isLiquidation bool) {
	node.InteractionCount++
	if isLiquidation {
		node.LiquidationCount++
		node.Strength = math.Min(1, node.Strength+s.cfg.InteractionBoostLiq)
	} else {
		node.TradeCount++
		node.Strength = math.Min(1, node.Strength+s.cfg.InteractionBoostTrade)
	}
	s.touchVolumes(node, side, value)
	node.LastInteractionTsMs = tsMs
	node.Confidence = confidence(node.InteractionCount)

	// Reopen presence if the node had gone fully quiet.
	if len(node.Presence) == 0 || !node.Presence[len(node.Presence)-1].Open() {
		node.Presence = append(node.Presence, Interval{StartMs: tsMs, EndMs: -1})
	}
}

func (s *Store) touchVolumes(node *Node, side schema.Side, value float64) {
	if side == schema.SideBuy {
		node.BuyerVolume += value
	} else {
		node.SellerVolume += value
	}
}

func confidence(interactions int) float64 {
	c := float64(interactions) / 20
	if c > 1 {
		return 1
	}
	return c
}

// Tick advances the decay clock, closes stale presence intervals and runs
// the lifecycle transitions. Any invariant violation is returned as an
// error; the caller freezes the pipeline on it.
func (s *Store) Tick(nowMs int64) error {
	if s.ticked && nowMs < s.lastTickMs {
		return ErrTimeWentBackwards
	}
	elapsedSec := float64(nowMs-s.lastTickMs) / 1000
	first := !s.ticked
	s.ticked = true
	s.lastTickMs = nowMs

	for id, node := range s.nodes {
		if node.State == StateArchived {
			continue
		}
		if !first {
			node.Strength = math.Max(0, node.Strength-elapsedSec*node.DecayRate)
		}

		idle := nowMs - node.LastInteractionTsMs
		if idle >= s.cfg.PresenceGapMs && len(node.Presence) > 0 {
			last := &node.Presence[len(node.Presence)-1]
			if last.Open() {
				last.EndMs = node.LastInteractionTsMs
			}
		}

		switch node.State {
		case StateActive:
			if node.Strength < s.cfg.StrengthFloor && idle > s.cfg.DormancyIdleMs {
				node.State = StateDormant
				node.DormantSinceMs = nowMs
			}
		case StateDormant:
			if node.Strength >= s.cfg.StrengthFloor || idle <= s.cfg.DormancyIdleMs {
				node.State = StateActive
				node.DormantSinceMs = 0
			} else if nowMs-node.DormantSinceMs > s.cfg.ArchiveDormantMs {
				node.State = StateArchived
			}
		}

		if err := s.checkInvariants(id, node); err != nil {
			return err
		}
	}
	s.metrics.IncDecayTick()
	return nil
}

func (s *Store) checkInvariants(id NodeID, node *Node) error {
	if node.PriceBand <= 0 {
		return fmt.Errorf("%w: %v", ErrBandViolation, id)
	}
	if node.Strength < 0 || node.Strength > 1 {
		return fmt.Errorf("%w: %v strength=%v", ErrStrengthRange, id, node.Strength)
	}
	for i := 1; i < len(node.Presence); i++ {
		prev := node.Presence[i-1]
		if prev.Open() || node.Presence[i].StartMs < prev.EndMs {
			return fmt.Errorf("%w: %v", ErrPresenceOverlap, id)
		}
	}
	return nil
}

// ActiveNodes copies out every active node for a symbol in deterministic
// order (side, then bucket). Dormant and archived nodes are memory, not
// observation input.
func (s *Store) ActiveNodes(symbol string) []Node {
	ids := s.bySymbol[symbol]
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		node := s.nodes[id]
		if node.State != StateActive {
			continue
		}
		out = append(out, node.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Side != out[j].ID.Side {
			return out[i].ID.Side < out[j].ID.Side
		}
		return out[i].ID.Bucket < out[j].ID.Bucket
	})
	return out
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id NodeID) (Node, bool) {
	node, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return node.clone(), true
}

// NodeCount returns the total number of nodes, archived included.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// Occupied reports whether a bucket already has a node.
func (s *Store) Occupied(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}
