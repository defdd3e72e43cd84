package schema

// Trade is the canonical trade record produced by the normalizer.
type Trade struct {
	TsMs       int64
	Symbol     string
	Price      float64
	Qty        float64
	Value      float64
	Side       Side
	Validation SideValidation
}

// Liquidation is the canonical liquidation record.
type Liquidation struct {
	TsMs   int64
	Symbol string
	Price  float64
	Qty    float64
	Value  float64
	Side   Side
}

// DepthSnapshot is the canonical order book summary: best quotes plus the
// aggregated size of at most the top five levels per side.
type DepthSnapshot struct {
	TsMs    int64
	Symbol  string
	BestBid float64
	BestAsk float64
	BidSize float64
	AskSize float64
}

// Candle is a persistent per-symbol OHLC record.
type Candle struct {
	OpenTsMs int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Position is a derivative-exchange position fact.
type Position struct {
	TsMs       int64
	Symbol     string
	User       string
	Size       float64
	EntryPrice float64
	LiqPrice   float64
}
