package memstore

import "main/internal/schema"

// State tracks the lifecycle of a liquidity memory node.
type State uint16

const (
	StateActive State = iota
	StateDormant
	StateArchived
)

func (s State) String() string {
	switch s {
	case StateDormant:
		return "DORMANT"
	case StateArchived:
		return "ARCHIVED"
	default:
		return "ACTIVE"
	}
}

// CreationReason records the evidence that created a node.
type CreationReason uint16

const (
	ReasonLiquidation CreationReason = iota
	ReasonLargeTrade
)

func (r CreationReason) String() string {
	if r == ReasonLargeTrade {
		return "LARGE_TRADE"
	}
	return "LIQUIDATION"
}

// NodeID addresses a node by symbol, side and price bucket.
type NodeID struct {
	Symbol string
	Side   schema.Side
	Bucket int64
}

// Interval is a presence range in milliseconds. EndMs < 0 means the
// interval is still open.
type Interval struct {
	StartMs int64
	EndMs   int64
}

// Open reports whether the interval has not been closed yet.
func (iv Interval) Open() bool {
	return iv.EndMs < 0
}

// Node is the persisted record of price-level activity. It is the only
// long-lived entity in the pipeline; it is updated in place and never
// deleted.
type Node struct {
	ID          NodeID
	PriceCenter float64
	PriceBand   float64
	Side        schema.Side

	InteractionCount int
	TradeCount       int
	LiquidationCount int
	BuyerVolume      float64
	SellerVolume     float64
	RestingBidSize   float64
	RestingAskSize   float64

	FirstSeenTsMs       int64
	LastInteractionTsMs int64
	DormantSinceMs      int64

	Strength   float64
	Confidence float64
	DecayRate  float64

	Presence []Interval
	State    State
	Reason   CreationReason
}

// clone returns a deep copy safe to hand out.
func (n *Node) clone() Node {
	cp := *n
	cp.Presence = make([]Interval, len(n.Presence))
	copy(cp.Presence, n.Presence)
	return cp
}
