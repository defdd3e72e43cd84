package primitive

import "math"

// RestingSize reports the passive size resting on one book side. An
// empty or missing side is absent, not zero.
func RestingSize(size float64) (*RestingFact, error) {
	if !finite(size) {
		return nil, ErrNotFinite
	}
	if size <= 0 {
		return nil, nil
	}
	return &RestingFact{Size: size}, nil
}

// Consumption is the size removed from one book side between two
// snapshots. Absent unless the side strictly shrank.
func Consumption(prev, curr float64) (*ConsumptionFact, error) {
	if !finite(prev, curr) {
		return nil, ErrNotFinite
	}
	if prev < 0 || curr < 0 {
		return nil, ErrInvalidInterval
	}
	if curr >= prev {
		return nil, nil
	}
	return &ConsumptionFact{Delta: prev - curr}, nil
}

// Absorption is consumption that failed to move the touch price beyond
// tolerance: size was eaten but price held. Absent when nothing was
// consumed or price gave way.
func Absorption(prevSize, currSize, prevPx, currPx, tolerance float64) (*AbsorptionFact, error) {
	if !finite(prevSize, currSize, prevPx, currPx, tolerance) {
		return nil, ErrNotFinite
	}
	if tolerance < 0 {
		return nil, ErrInvalidInterval
	}
	cons, err := Consumption(prevSize, currSize)
	if err != nil || cons == nil {
		return nil, err
	}
	move := math.Abs(currPx - prevPx)
	if move > tolerance {
		return nil, nil
	}
	return &AbsorptionFact{Consumed: cons.Delta, PriceMove: move}, nil
}

// Refill is the size restored to one book side between two snapshots.
// Absent unless the side strictly grew.
func Refill(prev, curr float64) (*RefillFact, error) {
	if !finite(prev, curr) {
		return nil, ErrNotFinite
	}
	if prev < 0 || curr < 0 {
		return nil, ErrInvalidInterval
	}
	if curr <= prev {
		return nil, nil
	}
	return &RefillFact{Delta: curr - prev}, nil
}
