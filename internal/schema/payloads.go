package schema

// TradePayload is the payload for EventTrade.
type TradePayload struct {
	Price        float64
	Qty          float64
	IsBuyerMaker bool
}

// LiquidationPayload is the payload for EventLiquidation.
type LiquidationPayload struct {
	Price float64
	Qty   float64
	Side  Side
}

// DepthLevel is one price level of an order book payload.
type DepthLevel struct {
	Price float64
	Size  float64
}

// DepthPayload is the payload for EventDepth. A single-level slice on both
// sides is the best-quote shape; longer slices are leveled books.
type DepthPayload struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// KlinePayload is the payload for EventKline.
type KlinePayload struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTsMs int64
}

// OIPayload is the payload for EventOpenInterest.
type OIPayload struct {
	OpenInterest float64
}

// HLPricePayload is the payload for EventHLPrice.
type HLPricePayload struct {
	Price float64
}

// HLLiquidationPayload is the payload for EventHLLiquidation.
type HLLiquidationPayload struct {
	Price float64
	Qty   float64
	Side  Side
}

// HLPositionPayload is the payload for EventHLPosition.
type HLPositionPayload struct {
	User       string
	Size       float64
	EntryPrice float64
	LiqPrice   float64
}

// HLOrderPayload is the payload for EventHLOrder.
type HLOrderPayload struct {
	Price     float64
	Qty       float64
	Side      Side
	IsTrigger bool
}
