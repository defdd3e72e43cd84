package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType is the closed set of inbound event categories.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTrade
	EventLiquidation
	EventKline
	EventOpenInterest
	EventDepth
	EventHLPrice
	EventHLLiquidation
	EventHLPosition
	EventHLOrder
)

// IsAvailable reports whether the event type is a known member of the set.
func (t EventType) IsAvailable() bool {
	return t > EventUnknown && t <= EventHLOrder
}

func (t EventType) String() string {
	switch t {
	case EventTrade:
		return "TRADE"
	case EventLiquidation:
		return "LIQUIDATION"
	case EventKline:
		return "KLINE"
	case EventOpenInterest:
		return "OI"
	case EventDepth:
		return "DEPTH"
	case EventHLPrice:
		return "HL_PRICE"
	case EventHLLiquidation:
		return "HL_LIQUIDATION"
	case EventHLPosition:
		return "HL_POSITION"
	case EventHLOrder:
		return "HL_ORDER"
	default:
		return "UNKNOWN"
	}
}

// Side describes trade or position direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// SideValidation records the outcome of cross-checking a trade side
// against the order book.
type SideValidation uint16

const (
	SideUnvalidated SideValidation = iota
	SideValidated
	SideMismatch
)

func (v SideValidation) String() string {
	switch v {
	case SideValidated:
		return "VALIDATED"
	case SideMismatch:
		return "MISMATCH"
	default:
		return "UNVALIDATED"
	}
}

// RawEvent is the transient inbound unit handed to the gate.
// Payload holds one of the payload structs matching Type.
type RawEvent struct {
	TsMs    int64
	Symbol  string
	Type    EventType
	Payload any
}
