// Package primitive holds the structural observation library: pure
// functions that turn normalized market records into facts. Every
// function is deterministic, holds no state, and reports in one of
// three ways: a fact, an absent observation (nil, nil), or a sentinel
// error for structurally invalid input.
package primitive

import "github.com/yanun0323/errors"

var (
	ErrEmptyInput      = errors.New("primitive: empty input")
	ErrInvalidZone     = errors.New("primitive: zone low must be below high")
	ErrInvalidCandle   = errors.New("primitive: candle bounds are inconsistent")
	ErrInvalidWindow   = errors.New("primitive: window end must be after start")
	ErrInvalidInterval = errors.New("primitive: interval outside window or inverted")
	ErrNonPositiveTime = errors.New("primitive: elapsed time must be positive")
	ErrNotFinite       = errors.New("primitive: input must be finite")
)

// Point is a timestamped price sample.
type Point struct {
	TsMs  int64
	Price float64
}

// Span is a closed presence interval on an arbitrary time axis.
type Span struct {
	Start float64
	End   float64
}
