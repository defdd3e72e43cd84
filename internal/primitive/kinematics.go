package primitive

import "math"

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PenetrationDepth measures how far a price path drove into [low, high].
// The entry side is taken from the first sample; absent when the path
// never touches the zone. Depth is clamped to the zone height.
func PenetrationDepth(path []float64, low, high float64) (*PenetrationFact, error) {
	if !finite(low, high) || low >= high {
		return nil, ErrInvalidZone
	}
	if len(path) == 0 {
		return nil, ErrEmptyInput
	}
	entered := false
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range path {
		if !finite(p) {
			return nil, ErrNotFinite
		}
		if p >= low && p <= high {
			entered = true
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	if !entered {
		return nil, nil
	}
	height := high - low
	fromAbove := path[0] >= high
	var depth float64
	switch {
	case fromAbove:
		depth = high - lo
	case path[0] <= low:
		depth = hi - low
	default:
		// Path starts inside the zone: report the deeper reach.
		depth = math.Max(high-lo, hi-low)
	}
	depth = math.Min(math.Max(depth, 0), height)
	return &PenetrationFact{Depth: depth, Ratio: depth / height, FromAbove: fromAbove}, nil
}

// DisplacementOrigin is the [min, max] band a path occupied, with the
// dwell time between the first and last sample.
func DisplacementOrigin(points []Point) (*DisplacementOriginFact, error) {
	if len(points) == 0 {
		return nil, ErrEmptyInput
	}
	lo, hi := points[0].Price, points[0].Price
	for _, pt := range points {
		if !finite(pt.Price) {
			return nil, ErrNotFinite
		}
		lo = math.Min(lo, pt.Price)
		hi = math.Max(hi, pt.Price)
	}
	dwell := points[len(points)-1].TsMs - points[0].TsMs
	if dwell < 0 {
		return nil, ErrNonPositiveTime
	}
	return &DisplacementOriginFact{Low: lo, High: hi, DwellMs: dwell}, nil
}

// Velocity is signed price change per second between two samples.
func Velocity(p0, p1 float64, t0, t1 int64) (*VelocityFact, error) {
	if !finite(p0, p1) {
		return nil, ErrNotFinite
	}
	if t1 <= t0 {
		return nil, ErrNonPositiveTime
	}
	secs := float64(t1-t0) / 1000
	return &VelocityFact{PerSec: (p1 - p0) / secs}, nil
}

// Compactness is net displacement over total traveled distance, in (0, 1].
// A path that never moves has no traveled distance and is absent.
func Compactness(path []float64) (*CompactnessFact, error) {
	if len(path) < 2 {
		return nil, ErrEmptyInput
	}
	total := 0.0
	for i := 1; i < len(path); i++ {
		if !finite(path[i-1], path[i]) {
			return nil, ErrNotFinite
		}
		total += math.Abs(path[i] - path[i-1])
	}
	if total == 0 {
		return nil, nil
	}
	net := math.Abs(path[len(path)-1] - path[0])
	return &CompactnessFact{Ratio: net / total}, nil
}

// AcceptanceRatio is candle body over full range. A zero-range candle
// carries no acceptance information and is absent.
func AcceptanceRatio(open, high, low, close float64) (*AcceptanceFact, error) {
	if !finite(open, high, low, close) {
		return nil, ErrNotFinite
	}
	if high < math.Max(open, close) || low > math.Min(open, close) {
		return nil, ErrInvalidCandle
	}
	full := high - low
	if full == 0 {
		return nil, nil
	}
	body := math.Abs(close - open)
	return &AcceptanceFact{Ratio: body / full, BodyRange: body, FullRange: full}, nil
}

// CentralDeviation is the signed distance of price from a reference level.
func CentralDeviation(price, ref float64) (*DeviationFact, error) {
	if !finite(price, ref) {
		return nil, ErrNotFinite
	}
	return &DeviationFact{Deviation: price - ref}, nil
}
