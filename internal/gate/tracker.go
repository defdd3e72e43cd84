package gate

// TrackerConfig bounds the liquidation history kept for cascade
// classification.
type TrackerConfig struct {
	WindowMs   int64
	MaxSymbols int
	MaxPerSym  int
}

// DefaultTrackerConfig returns the tracker bounds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{WindowMs: 120_000, MaxSymbols: 50, MaxPerSym: 256}
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	def := DefaultTrackerConfig()
	if c.WindowMs <= 0 {
		c.WindowMs = def.WindowMs
	}
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = def.MaxSymbols
	}
	if c.MaxPerSym <= 0 {
		c.MaxPerSym = def.MaxPerSym
	}
	return c
}

// liqTracker keeps recent liquidation timestamps per symbol. Memory is
// bounded two ways: timestamps age out of the window, and when too many
// symbols accumulate the least recently hit one is evicted.
type liqTracker struct {
	cfg     TrackerConfig
	times   map[string][]int64
	lastHit map[string]int64
}

func newLiqTracker(cfg TrackerConfig) *liqTracker {
	return &liqTracker{
		cfg:     cfg,
		times:   make(map[string][]int64),
		lastHit: make(map[string]int64),
	}
}

// Record appends one liquidation timestamp.
func (t *liqTracker) Record(symbol string, tsMs int64) {
	buf := append(t.times[symbol], tsMs)
	if len(buf) > t.cfg.MaxPerSym {
		buf = buf[len(buf)-t.cfg.MaxPerSym:]
	}
	t.times[symbol] = buf
	t.lastHit[symbol] = tsMs
	t.evict()
}

// Prune drops timestamps older than the window, and whole symbols when
// nothing of theirs survives.
func (t *liqTracker) Prune(nowMs int64) {
	cutoff := nowMs - t.cfg.WindowMs
	for sym, buf := range t.times {
		i := 0
		for i < len(buf) && buf[i] < cutoff {
			i++
		}
		if i == len(buf) {
			delete(t.times, sym)
			delete(t.lastHit, sym)
			continue
		}
		if i > 0 {
			t.times[sym] = append(buf[:0], buf[i:]...)
		}
	}
}

func (t *liqTracker) evict() {
	for len(t.times) > t.cfg.MaxSymbols {
		victim := ""
		oldest := int64(0)
		for sym, hit := range t.lastHit {
			// Ties break on symbol name so eviction never depends on
			// map iteration order.
			if victim == "" || hit < oldest || (hit == oldest && sym < victim) {
				victim, oldest = sym, hit
			}
		}
		delete(t.times, victim)
		delete(t.lastHit, victim)
	}
}

// Times copies out the tracked timestamps for a symbol.
func (t *liqTracker) Times(symbol string) []int64 {
	buf := t.times[symbol]
	if len(buf) == 0 {
		return nil
	}
	out := make([]int64, len(buf))
	copy(out, buf)
	return out
}
