// Package gate is the governance boundary of the observation pipeline.
// Every event enters through it, every snapshot leaves through it, and
// any internal inconsistency halts it permanently rather than letting a
// corrupted clock or store keep producing output.
package gate

import (
	"fmt"
	"math"
	"sort"

	"main/internal/memstore"
	"main/internal/normalize"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/window"

	"github.com/yanun0323/errors"
)

var (
	ErrHalted         = errors.New("gate: halted after failure")
	ErrTimeRegression = errors.New("gate: time regression")
	ErrInternal       = errors.New("gate: internal panic")
)

// Status is the gate lifecycle. Uninitialized is the normal operating
// state; there is no separate ready state because readiness lives in the
// per-primitive availability of each snapshot field. Failed is terminal.
type Status uint16

const (
	StatusUninitialized Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusFailed {
		return "FAILED"
	}
	return "UNINITIALIZED"
}

// Config controls admission and clock policy.
type Config struct {
	Whitelist []string

	// Events this far behind the clock are stale and dropped.
	BehindToleranceMs int64
	// Events this far ahead of the clock are suspect and dropped.
	AheadToleranceMs int64
	// Memory decay runs once per this much observed time.
	DecayEveryMs int64
	// Lookback for flow, trade rate and presence observations.
	ObservationWindowMs int64
	// Liquidation proximity threshold as a price fraction.
	ProximityFrac float64
	// Sigma distance for outlier trade detection.
	OutlierSigma float64

	Normalize normalize.Config
	Window    window.Config
	Memstore  memstore.Config
	Tracker   TrackerConfig
}

// DefaultConfig returns the admission defaults.
func DefaultConfig() Config {
	return Config{
		BehindToleranceMs:   30_000,
		AheadToleranceMs:    5_000,
		DecayEveryMs:        10_000,
		ObservationWindowMs: 60_000,
		ProximityFrac:       0.01,
		OutlierSigma:        2.0,
		Tracker:             DefaultTrackerConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BehindToleranceMs <= 0 {
		c.BehindToleranceMs = def.BehindToleranceMs
	}
	if c.AheadToleranceMs <= 0 {
		c.AheadToleranceMs = def.AheadToleranceMs
	}
	if c.DecayEveryMs <= 0 {
		c.DecayEveryMs = def.DecayEveryMs
	}
	if c.ObservationWindowMs <= 0 {
		c.ObservationWindowMs = def.ObservationWindowMs
	}
	if c.ProximityFrac <= 0 {
		c.ProximityFrac = def.ProximityFrac
	}
	if c.OutlierSigma <= 0 {
		c.OutlierSigma = def.OutlierSigma
	}
	// Promotion is where the outlier threshold is applied.
	if c.Window.PromotionSigma <= 0 {
		c.Window.PromotionSigma = c.OutlierSigma
	}
	c.Tracker = c.Tracker.withDefaults()
	return c
}

// Gate owns the full pipeline state behind a single-goroutine surface.
// Callers serialize access; the gate itself takes no locks.
type Gate struct {
	cfg     Config
	metrics *obs.Metrics

	norm    *normalize.Normalizer
	agg     *window.Aggregator
	store   *memstore.Store
	tracker *liqTracker

	whitelist map[string]struct{}
	symbols   []string // sorted whitelist, the snapshot iteration order
	seen      map[string]bool

	status      Status
	failure     error
	clockMs     int64
	lastDecayMs int64
	snapshots   uint64
}

// New wires the pipeline behind a gate. The whitelist is fixed at
// construction; events for other symbols are dropped silently.
func New(cfg Config, metrics *obs.Metrics) *Gate {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	g := &Gate{
		cfg:       cfg,
		metrics:   metrics,
		norm:      normalize.New(cfg.Normalize, metrics),
		agg:       window.New(cfg.Window, metrics),
		store:     memstore.New(cfg.Memstore, metrics),
		tracker:   newLiqTracker(cfg.Tracker),
		whitelist: make(map[string]struct{}, len(cfg.Whitelist)),
		seen:      make(map[string]bool, len(cfg.Whitelist)),
		clockMs:   -1,
	}
	for _, s := range cfg.Whitelist {
		if _, dup := g.whitelist[s]; dup {
			continue
		}
		g.whitelist[s] = struct{}{}
		g.symbols = append(g.symbols, s)
	}
	sort.Strings(g.symbols)
	return g
}

// Status returns the gate lifecycle state.
func (g *Gate) Status() Status {
	return g.status
}

// Failure returns the error that halted the gate, if any.
func (g *Gate) Failure() error {
	return g.failure
}

// ClockMs returns the internal observation clock, -1 before the first
// event or advancement.
func (g *Gate) ClockMs() int64 {
	return g.clockMs
}

func (g *Gate) fail(err error) error {
	g.status = StatusFailed
	g.failure = err
	return err
}

// Ingest admits one raw event. Admission failures (unlisted symbol,
// stale or ahead timestamps, malformed payloads) drop the event and
// return nil; only a halted gate or an internal panic returns an error.
func (g *Gate) Ingest(ev schema.RawEvent) (err error) {
	if g.status == StatusFailed {
		g.metrics.IncDrop(obs.DropHalted)
		return ErrHalted
	}
	defer func() {
		if r := recover(); r != nil {
			err = g.fail(fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	if _, ok := g.whitelist[ev.Symbol]; !ok {
		g.metrics.IncDrop(obs.DropNotWhitelisted)
		return nil
	}
	if !ev.Type.IsAvailable() {
		g.metrics.IncDrop(obs.DropUnknownType)
		return nil
	}
	if g.clockMs >= 0 {
		if ev.TsMs < g.clockMs-g.cfg.BehindToleranceMs {
			g.metrics.IncDrop(obs.DropStale)
			return nil
		}
		if ev.TsMs > g.clockMs+g.cfg.AheadToleranceMs {
			g.metrics.IncDrop(obs.DropAhead)
			return nil
		}
	} else {
		// The first admitted event seeds the observation clock.
		g.clockMs = ev.TsMs
		g.lastDecayMs = ev.TsMs
	}

	if g.apply(ev) {
		g.metrics.IncEvent(ev.Type)
		g.seen[ev.Symbol] = true
	}
	return nil
}

// apply dispatches one admitted event. The switch is exhaustive over
// IsAvailable types; a payload of the wrong shape is a malformed drop.
func (g *Gate) apply(ev schema.RawEvent) bool {
	switch ev.Type {
	case schema.EventTrade:
		p, ok := ev.Payload.(schema.TradePayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		trade, ok := g.norm.ApplyTrade(ev.TsMs, ev.Symbol, p)
		if !ok {
			return false
		}
		g.agg.ApplyTrade(trade)
		g.store.ApplyTrade(trade)
		return true

	case schema.EventLiquidation:
		p, ok := ev.Payload.(schema.LiquidationPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		liq, ok := g.norm.ApplyLiquidation(ev.TsMs, ev.Symbol, p)
		if !ok {
			return false
		}
		g.store.ApplyLiquidation(liq)
		g.tracker.Record(ev.Symbol, ev.TsMs)
		return true

	case schema.EventKline:
		p, ok := ev.Payload.(schema.KlinePayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		if !g.norm.ValidateKline(p) {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		g.agg.MergeKline(ev.Symbol, p)
		return true

	case schema.EventOpenInterest:
		p, ok := ev.Payload.(schema.OIPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		return g.norm.ApplyOpenInterest(ev.Symbol, p)

	case schema.EventDepth:
		p, ok := ev.Payload.(schema.DepthPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		snap, ok := g.norm.ApplyDepth(ev.TsMs, ev.Symbol, p)
		if !ok {
			return false
		}
		g.store.UpdateDepth(snap)
		return true

	case schema.EventHLPrice:
		p, ok := ev.Payload.(schema.HLPricePayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		return g.norm.ApplyPrice(ev.Symbol, p)

	case schema.EventHLLiquidation:
		p, ok := ev.Payload.(schema.HLLiquidationPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		liq, ok := g.norm.ApplyLiquidation(ev.TsMs, ev.Symbol, schema.LiquidationPayload{
			Price: p.Price,
			Qty:   p.Qty,
			Side:  p.Side,
		})
		if !ok {
			return false
		}
		g.store.ApplyLiquidation(liq)
		g.tracker.Record(ev.Symbol, ev.TsMs)
		return true

	case schema.EventHLPosition:
		p, ok := ev.Payload.(schema.HLPositionPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		_, applied := g.norm.ApplyPosition(ev.TsMs, ev.Symbol, p)
		return applied

	case schema.EventHLOrder:
		p, ok := ev.Payload.(schema.HLOrderPayload)
		if !ok {
			g.metrics.IncDrop(obs.DropMalformed)
			return false
		}
		return g.norm.ApplyOrder(ev.TsMs, ev.Symbol, p)

	default:
		g.metrics.IncDrop(obs.DropUnknownType)
		return false
	}
}

// RecordLiquidation feeds one externally confirmed liquidation into the
// cascade bookkeeping. Position trackers and other collaborators that
// observe liquidations outside the event stream report them here; the
// history is bounded the same way as stream-fed liquidations. Unlisted
// symbols and non-finite or non-positive values are dropped silently.
func (g *Gate) RecordLiquidation(symbol string, tsMs int64, value float64) error {
	if g.status == StatusFailed {
		g.metrics.IncDrop(obs.DropHalted)
		return ErrHalted
	}
	if _, ok := g.whitelist[symbol]; !ok {
		g.metrics.IncDrop(obs.DropNotWhitelisted)
		return nil
	}
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		g.metrics.IncDrop(obs.DropMalformed)
		return nil
	}
	g.tracker.Record(symbol, tsMs)
	return nil
}

// AdvanceTime moves the observation clock forward, closes elapsed
// aggregation windows and runs memory decay on schedule. Moving the
// clock backward is unrecoverable and halts the gate.
func (g *Gate) AdvanceTime(nowMs int64) (err error) {
	if g.status == StatusFailed {
		return ErrHalted
	}
	defer func() {
		if r := recover(); r != nil {
			err = g.fail(fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	if g.clockMs >= 0 && nowMs < g.clockMs {
		return g.fail(fmt.Errorf("%w: clock %d, advance to %d", ErrTimeRegression, g.clockMs, nowMs))
	}
	if g.clockMs < 0 {
		g.lastDecayMs = nowMs
	}
	g.clockMs = nowMs
	g.agg.AdvanceTo(nowMs)
	g.tracker.Prune(nowMs)
	if nowMs-g.lastDecayMs >= g.cfg.DecayEveryMs {
		g.lastDecayMs = nowMs
		if err := g.store.Tick(nowMs); err != nil {
			return g.fail(err)
		}
	}
	return nil
}
