package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// DropReason classifies why an inbound event was discarded.
type DropReason uint16

const (
	DropNone DropReason = iota
	DropMalformed
	DropStale
	DropAhead
	DropNotWhitelisted
	DropUnknownType
	DropHalted
)

func (r DropReason) String() string {
	switch r {
	case DropMalformed:
		return "malformed"
	case DropStale:
		return "stale"
	case DropAhead:
		return "ahead"
	case DropNotWhitelisted:
		return "not_whitelisted"
	case DropUnknownType:
		return "unknown_type"
	case DropHalted:
		return "halted"
	default:
		return "none"
	}
}

const (
	maxEventType  = int(schema.EventHLOrder)
	maxDropReason = int(DropHalted)
)

// Metrics collects lightweight counters and latency stats for the pipeline.
type Metrics struct {
	eventCounts [maxEventType + 1]uint64
	dropCounts  [maxDropReason + 1]uint64

	primitiveFaults uint64
	snapshots       uint64
	decayTicks      uint64
	windowCloses    uint64

	queryLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[schema.EventType]uint64
	DropCounts      map[DropReason]uint64
	PrimitiveFaults uint64
	Snapshots       uint64
	DecayTicks      uint64
	WindowCloses    uint64
	QueryLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncEvent counts an accepted event by type.
func (m *Metrics) IncEvent(t schema.EventType) {
	if m == nil {
		return
	}
	idx := int(t)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncDrop counts a dropped event by reason.
func (m *Metrics) IncDrop(r DropReason) {
	if m == nil {
		return
	}
	idx := int(r)
	if idx >= 0 && idx < len(m.dropCounts) {
		atomic.AddUint64(&m.dropCounts[idx], 1)
	}
}

// IncPrimitiveFault records one degraded primitive field.
func (m *Metrics) IncPrimitiveFault() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.primitiveFaults, 1)
}

// IncSnapshot records one completed snapshot query.
func (m *Metrics) IncSnapshot() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.snapshots, 1)
}

// IncDecayTick records one store decay tick.
func (m *Metrics) IncDecayTick() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decayTicks, 1)
}

// IncWindowClose records one aggregation window closure.
func (m *Metrics) IncWindowClose() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.windowCloses, 1)
}

// ObserveQuery measures one snapshot query duration.
func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.queryLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	dropCounts := make(map[DropReason]uint64)
	for i := range m.dropCounts {
		if v := atomic.LoadUint64(&m.dropCounts[i]); v > 0 {
			dropCounts[DropReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		DropCounts:      dropCounts,
		PrimitiveFaults: atomic.LoadUint64(&m.primitiveFaults),
		Snapshots:       atomic.LoadUint64(&m.snapshots),
		DecayTicks:      atomic.LoadUint64(&m.decayTicks),
		WindowCloses:    atomic.LoadUint64(&m.windowCloses),
		QueryLatency:    m.queryLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
