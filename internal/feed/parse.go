package feed

import (
	"strconv"

	"main/internal/schema"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

var ErrBadField = errors.New("feed: unparsable numeric field")

// parsedEvent pairs a translated event with its translation error so
// handlers stay single-return.
type parsedEvent struct {
	event schema.RawEvent
	err   error
}

// f64 converts a wire decimal. The raw content is untrusted until it
// passes decimal.New; String on an unvalidated Decimal panics.
func f64(d decimal.Decimal) (float64, error) {
	clean, err := decimal.New(string(d))
	if err != nil {
		return 0, errors.Wrap(ErrBadField, err.Error())
	}
	v, err := strconv.ParseFloat(clean.String(), 64)
	if err != nil {
		return 0, errors.Wrap(ErrBadField, err.Error())
	}
	return v, nil
}

type binanceAggTrade struct {
	EventType    string          `json:"e"`
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	Price        decimal.Decimal `json:"p"`
	Qty          decimal.Decimal `json:"q"`
	IsBuyerMaker bool            `json:"m"`
}

func parseAggTrade(msg binanceAggTrade) parsedEvent {
	price, err := f64(msg.Price)
	if err != nil {
		return parsedEvent{err: err}
	}
	qty, err := f64(msg.Qty)
	if err != nil {
		return parsedEvent{err: err}
	}
	return parsedEvent{event: schema.RawEvent{
		TsMs:   msg.EventTime,
		Symbol: msg.Symbol,
		Type:   schema.EventTrade,
		Payload: schema.TradePayload{
			Price:        price,
			Qty:          qty,
			IsBuyerMaker: msg.IsBuyerMaker,
		},
	}}
}

type binanceForceOrder struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol    string          `json:"s"`
		Side      string          `json:"S"`
		Qty       decimal.Decimal `json:"q"`
		AvgPrice  decimal.Decimal `json:"ap"`
		TradeTime int64           `json:"T"`
	} `json:"o"`
}

func parseForceOrder(msg binanceForceOrder) parsedEvent {
	price, err := f64(msg.Order.AvgPrice)
	if err != nil {
		return parsedEvent{err: err}
	}
	qty, err := f64(msg.Order.Qty)
	if err != nil {
		return parsedEvent{err: err}
	}
	// The forced side is what the liquidated position was forced to do.
	side := schema.SideBuy
	if msg.Order.Side == "SELL" {
		side = schema.SideSell
	}
	ts := msg.Order.TradeTime
	if ts == 0 {
		ts = msg.EventTime
	}
	return parsedEvent{event: schema.RawEvent{
		TsMs:   ts,
		Symbol: msg.Order.Symbol,
		Type:   schema.EventLiquidation,
		Payload: schema.LiquidationPayload{
			Price: price,
			Qty:   qty,
			Side:  side,
		},
	}}
}

type binanceKline struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64           `json:"t"`
		CloseTime int64           `json:"T"`
		Open      decimal.Decimal `json:"o"`
		High      decimal.Decimal `json:"h"`
		Low       decimal.Decimal `json:"l"`
		Close     decimal.Decimal `json:"c"`
		Volume    decimal.Decimal `json:"v"`
	} `json:"k"`
}

func parseKline(msg binanceKline) parsedEvent {
	fields := [5]decimal.Decimal{
		msg.Kline.Open, msg.Kline.High, msg.Kline.Low, msg.Kline.Close, msg.Kline.Volume,
	}
	var vals [5]float64
	for i, d := range fields {
		v, err := f64(d)
		if err != nil {
			return parsedEvent{err: err}
		}
		vals[i] = v
	}
	return parsedEvent{event: schema.RawEvent{
		TsMs:   msg.EventTime,
		Symbol: msg.Symbol,
		Type:   schema.EventKline,
		Payload: schema.KlinePayload{
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			CloseTsMs: msg.Kline.CloseTime,
		},
	}}
}

type binancePartialDepth struct {
	EventType string               `json:"e"`
	EventTime int64                `json:"E"`
	Symbol    string               `json:"s"`
	Bids      [][2]decimal.Decimal `json:"b"`
	Asks      [][2]decimal.Decimal `json:"a"`
}

func parsePartialDepth(symbol string, msg binancePartialDepth) parsedEvent {
	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return parsedEvent{err: err}
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return parsedEvent{err: err}
	}
	return parsedEvent{event: schema.RawEvent{
		TsMs:   msg.EventTime,
		Symbol: symbol,
		Type:   schema.EventDepth,
		Payload: schema.DepthPayload{
			Bids: bids,
			Asks: asks,
		},
	}}
}

func parseLevels(raw [][2]decimal.Decimal) ([]schema.DepthLevel, error) {
	levels := make([]schema.DepthLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := f64(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := f64(pair[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, schema.DepthLevel{Price: price, Size: qty})
	}
	return levels, nil
}
