package feed

import (
	"main/internal/schema"

	"github.com/yanun0323/decimal"
)

type hlAllMids struct {
	Data struct {
		Mids map[string]decimal.Decimal `json:"mids"`
	} `json:"data"`
}

func parseAllMids(coins map[string]string, nowMs int64, msg hlAllMids) []parsedEvent {
	var out []parsedEvent
	for coin, symbol := range coins {
		mid, ok := msg.Data.Mids[coin]
		if !ok {
			continue
		}
		price, err := f64(mid)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		out = append(out, parsedEvent{event: schema.RawEvent{
			TsMs:    nowMs,
			Symbol:  symbol,
			Type:    schema.EventHLPrice,
			Payload: schema.HLPricePayload{Price: price},
		}})
	}
	return out
}

type hlAssetCtx struct {
	Data struct {
		Coin string `json:"coin"`
		Ctx  struct {
			MarkPx       decimal.Decimal `json:"markPx"`
			OpenInterest decimal.Decimal `json:"openInterest"`
		} `json:"ctx"`
	} `json:"data"`
}

func parseAssetCtx(coins map[string]string, nowMs int64, msg hlAssetCtx) []parsedEvent {
	symbol, ok := coins[msg.Data.Coin]
	if !ok {
		return nil
	}
	oi, err := f64(msg.Data.Ctx.OpenInterest)
	if err != nil {
		return []parsedEvent{{err: err}}
	}
	return []parsedEvent{{event: schema.RawEvent{
		TsMs:    nowMs,
		Symbol:  symbol,
		Type:    schema.EventOpenInterest,
		Payload: schema.OIPayload{OpenInterest: oi},
	}}}
}

type hlOrderUpdates struct {
	Data []struct {
		Order struct {
			Coin    string          `json:"coin"`
			Side    string          `json:"side"`
			LimitPx decimal.Decimal `json:"limitPx"`
			Sz      decimal.Decimal `json:"sz"`
		} `json:"order"`
		Status          string `json:"status"`
		StatusTimestamp int64  `json:"statusTimestamp"`
	} `json:"data"`
}

func parseOrderUpdates(coins map[string]string, msg hlOrderUpdates) []parsedEvent {
	var out []parsedEvent
	for _, u := range msg.Data {
		symbol, ok := coins[u.Order.Coin]
		if !ok || u.Status != "open" {
			continue
		}
		price, err := f64(u.Order.LimitPx)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		qty, err := f64(u.Order.Sz)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		side := schema.SideSell
		if u.Order.Side == "B" {
			side = schema.SideBuy
		}
		out = append(out, parsedEvent{event: schema.RawEvent{
			TsMs:   u.StatusTimestamp,
			Symbol: symbol,
			Type:   schema.EventHLOrder,
			Payload: schema.HLOrderPayload{
				Price: price,
				Qty:   qty,
				Side:  side,
			},
		}})
	}
	return out
}

type hlUserEvents struct {
	Data struct {
		Fills []struct {
			Coin        string          `json:"coin"`
			Px          decimal.Decimal `json:"px"`
			Sz          decimal.Decimal `json:"sz"`
			Side        string          `json:"side"`
			Time        int64           `json:"time"`
			Liquidation *struct {
				LiquidatedUser string `json:"liquidatedUser"`
			} `json:"liquidation"`
		} `json:"fills"`
	} `json:"data"`
}

// parseUserFills keeps only liquidation fills; plain fills are order
// flow the public trade stream already covers.
func parseUserFills(coins map[string]string, msg hlUserEvents) []parsedEvent {
	var out []parsedEvent
	for _, fill := range msg.Data.Fills {
		symbol, ok := coins[fill.Coin]
		if !ok || fill.Liquidation == nil {
			continue
		}
		price, err := f64(fill.Px)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		qty, err := f64(fill.Sz)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		side := schema.SideSell
		if fill.Side == "B" {
			side = schema.SideBuy
		}
		out = append(out, parsedEvent{event: schema.RawEvent{
			TsMs:   fill.Time,
			Symbol: symbol,
			Type:   schema.EventHLLiquidation,
			Payload: schema.HLLiquidationPayload{
				Price: price,
				Qty:   qty,
				Side:  side,
			},
		}})
	}
	return out
}

type hlWebData struct {
	Data struct {
		ClearinghouseState struct {
			AssetPositions []struct {
				Position struct {
					Coin          string          `json:"coin"`
					Szi           decimal.Decimal `json:"szi"`
					EntryPx       decimal.Decimal `json:"entryPx"`
					LiquidationPx decimal.Decimal `json:"liquidationPx"`
				} `json:"position"`
			} `json:"assetPositions"`
		} `json:"clearinghouseState"`
	} `json:"data"`
}

func parsePositions(coins map[string]string, user string, nowMs int64, msg hlWebData) []parsedEvent {
	var out []parsedEvent
	for _, ap := range msg.Data.ClearinghouseState.AssetPositions {
		symbol, ok := coins[ap.Position.Coin]
		if !ok {
			continue
		}
		size, err := f64(ap.Position.Szi)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		entry, err := f64(ap.Position.EntryPx)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		liq, err := f64(ap.Position.LiquidationPx)
		if err != nil {
			out = append(out, parsedEvent{err: err})
			continue
		}
		out = append(out, parsedEvent{event: schema.RawEvent{
			TsMs:   nowMs,
			Symbol: symbol,
			Type:   schema.EventHLPosition,
			Payload: schema.HLPositionPayload{
				User:       user,
				Size:       size,
				EntryPrice: entry,
				LiqPrice:   liq,
			},
		}})
	}
	return out
}
