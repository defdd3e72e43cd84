package primitive

import (
	"math"

	"main/internal/schema"
	"main/internal/window"
)

// FlowImbalance splits executed value by aggressor side over the given
// trades. Imbalance is (buy-sell)/(buy+sell) in [-1, 1]. Absent when
// there is no executed value.
func FlowImbalance(trades []schema.Trade) (*FlowFact, error) {
	fact := &FlowFact{}
	for _, t := range trades {
		if !finite(t.Value) || t.Value < 0 {
			return nil, ErrNotFinite
		}
		switch t.Side {
		case schema.SideBuy:
			fact.BuyerValue += t.Value
		case schema.SideSell:
			fact.SellerValue += t.Value
		}
	}
	total := fact.BuyerValue + fact.SellerValue
	if total == 0 {
		return nil, nil
	}
	fact.Imbalance = (fact.BuyerValue - fact.SellerValue) / total
	return fact, nil
}

// TradeRate counts executions and volume over trades newer than sinceMs.
// Absent when nothing traded inside the lookback.
func TradeRate(trades []schema.Trade, sinceMs int64) (*TradeRateFact, error) {
	fact := &TradeRateFact{}
	for _, t := range trades {
		if t.TsMs < sinceMs {
			continue
		}
		if !finite(t.Qty) || t.Qty < 0 {
			return nil, ErrNotFinite
		}
		fact.Count++
		fact.Volume += t.Qty
	}
	if fact.Count == 0 {
		return nil, nil
	}
	return fact, nil
}

// BaselineStats exposes a warm trade size baseline. Absent until the
// baseline has enough closed windows to be meaningful.
func BaselineStats(mean, std float64, windows int) (*BaselineFact, error) {
	if !finite(mean, std) || std < 0 {
		return nil, ErrNotFinite
	}
	if windows <= 0 {
		return nil, nil
	}
	return &BaselineFact{MeanTradeSize: mean, StdTradeSize: std, Windows: windows}, nil
}

// LatestPromotion exposes the newest promoted trade with the sigma
// distance recorded at promotion time. Absent while nothing has been
// promoted.
func LatestPromotion(promoted []window.PromotedEvent) (*OutlierFact, error) {
	if len(promoted) == 0 {
		return nil, nil
	}
	p := promoted[len(promoted)-1]
	if !finite(p.Price, p.Qty, p.Sigma) {
		return nil, ErrNotFinite
	}
	return &OutlierFact{
		TsMs:  p.TsMs,
		Price: p.Price,
		Qty:   p.Qty,
		Sigma: p.Sigma,
	}, nil
}

// CandleOf wraps the in-progress candle, validating its bounds. Absent
// for the zero candle.
func CandleOf(c schema.Candle, ok bool) (*CandleFact, error) {
	if !ok {
		return nil, nil
	}
	if !finite(c.Open, c.High, c.Low, c.Close, c.Volume) {
		return nil, ErrNotFinite
	}
	if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return nil, ErrInvalidCandle
	}
	return &CandleFact{Candle: c}, nil
}
