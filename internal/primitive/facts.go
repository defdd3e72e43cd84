package primitive

import "main/internal/schema"

// CascadePhase classifies the liquidation regime of a symbol.
type CascadePhase uint16

const (
	PhaseNone CascadePhase = iota
	PhaseProximity
	PhaseLiquidating
	PhaseCascading
	PhaseExhausted
)

func (p CascadePhase) String() string {
	switch p {
	case PhaseNone:
		return "NONE"
	case PhaseProximity:
		return "PROXIMITY"
	case PhaseLiquidating:
		return "LIQUIDATING"
	case PhaseCascading:
		return "CASCADING"
	case PhaseExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// ZoneKind tells which side of the current price a zone cluster sits on.
type ZoneKind uint16

const (
	ZoneSupply ZoneKind = iota
	ZoneDemand
)

func (k ZoneKind) String() string {
	if k == ZoneDemand {
		return "DEMAND"
	}
	return "SUPPLY"
}

// PenetrationFact reports how deep a price path drove into a zone.
type PenetrationFact struct {
	Depth     float64
	Ratio     float64
	FromAbove bool
}

// DisplacementOriginFact is the price band a path occupied before it left,
// with the dwell time spent inside it.
type DisplacementOriginFact struct {
	Low     float64
	High    float64
	DwellMs int64
}

// VelocityFact is signed price change per second.
type VelocityFact struct {
	PerSec float64
}

// CompactnessFact is net displacement over total traveled distance.
type CompactnessFact struct {
	Ratio float64
}

// AcceptanceFact is candle body range over full range.
type AcceptanceFact struct {
	Ratio     float64
	BodyRange float64
	FullRange float64
}

// DeviationFact is the signed distance of a price from a reference.
type DeviationFact struct {
	Deviation float64
}

// AbsenceFact summarizes presence coverage inside an observation window.
type AbsenceFact struct {
	CoveredDur   float64
	AbsenceDur   float64
	Persistence  float64
	AbsenceRatio float64
}

// RestingFact is the passive size resting at a book level.
type RestingFact struct {
	Size float64
}

// ConsumptionFact is the size removed from one book side between snapshots.
type ConsumptionFact struct {
	Delta float64
}

// AbsorptionFact is consumption that failed to move price.
type AbsorptionFact struct {
	Consumed  float64
	PriceMove float64
}

// RefillFact is the size restored to one book side between snapshots.
type RefillFact struct {
	Delta float64
}

// OrderBlockFact marks a liquidity node whose interaction pattern is
// bursty enough to read as a resting institutional order.
type OrderBlockFact struct {
	Center       float64
	Band         float64
	Strength     float64
	Interactions int
	Burstiness   float64
}

// ZoneFact is a cluster of adjacent liquidity nodes on one side of price.
type ZoneFact struct {
	Kind          ZoneKind
	Low           float64
	High          float64
	NodeCount     int
	TotalStrength float64
	Retested      bool
}

// ProximityFact counts open positions whose liquidation price sits near
// the reference price.
type ProximityFact struct {
	LongCount   int
	ShortCount  int
	LongValue   float64
	ShortValue  float64
	NearestDist float64
}

// CascadeFact is the liquidation regime with its supporting counts.
type CascadeFact struct {
	Phase  CascadePhase
	Liq5s  int
	Liq30s int
	Liq60s int
	AtRisk int
}

// FlowFact splits executed value by aggressor side.
type FlowFact struct {
	BuyerValue  float64
	SellerValue float64
	Imbalance   float64
}

// TradeRateFact counts executions and volume over the sampled tail.
type TradeRateFact struct {
	Count  int
	Volume float64
}

// BaselineFact is the warm per-window trade size distribution.
type BaselineFact struct {
	MeanTradeSize float64
	StdTradeSize  float64
	Windows       int
}

// OutlierFact is the most recent statistically outsized trade.
type OutlierFact struct {
	TsMs  int64
	Price float64
	Qty   float64
	Sigma float64
}

// CandleFact wraps the in-progress aggregation candle.
type CandleFact struct {
	Candle schema.Candle
}
