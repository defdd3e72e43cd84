// Package ops loads and resolves the runtime configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/archive"
	"main/internal/gate"
	"main/internal/recorder"
)

const (
	defaultQueueSize       = 8192
	defaultSnapshotEveryMs = 1_000
	defaultAdvanceEveryMs  = 250
	defaultProfilerApp     = "observer"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Symbols  []SymbolConfig `json:"symbols"`
	Gate     GateConfig     `json:"gate"`
	Feeds    FeedsConfig    `json:"feeds"`
	Recorder RecorderConfig `json:"recorder"`
	Archive  ArchiveConfig  `json:"archive"`
	Profiler ProfilerConfig `json:"profiler"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// SymbolConfig describes one whitelisted symbol. HLCoin maps the
// Hyperliquid coin name onto the canonical symbol when set.
type SymbolConfig struct {
	Name   string `json:"name"`
	HLCoin string `json:"hlCoin"`
}

// GateConfig exposes the admission and observation knobs. Zero values
// fall back to the gate defaults.
type GateConfig struct {
	BehindToleranceMs   int64   `json:"behindToleranceMs"`
	AheadToleranceMs    int64   `json:"aheadToleranceMs"`
	DecayEveryMs        int64   `json:"decayEveryMs"`
	ObservationWindowMs int64   `json:"observationWindowMs"`
	ProximityFrac       float64 `json:"proximityFrac"`
	OutlierSigma        float64 `json:"outlierSigma"`
}

// FeedsConfig selects the live market data sources.
type FeedsConfig struct {
	Binance     BinanceFeedConfig     `json:"binance"`
	Hyperliquid HyperliquidFeedConfig `json:"hyperliquid"`
}

// BinanceFeedConfig describes the Binance futures connection.
type BinanceFeedConfig struct {
	Enabled  *bool  `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// HyperliquidFeedConfig describes the Hyperliquid connection. User is
// the wallet address for the private position and order streams.
type HyperliquidFeedConfig struct {
	Enabled  *bool  `json:"enabled"`
	Endpoint string `json:"endpoint"`
	User     string `json:"user"`
}

// RecorderConfig describes the event journal.
type RecorderConfig struct {
	Enabled           *bool  `json:"enabled"`
	Dir               string `json:"dir"`
	SegmentMaxBytes   int64  `json:"segmentMaxBytes"`
	SegmentMaxMinutes int    `json:"segmentMaxMinutes"`
}

// ArchiveConfig describes the snapshot database.
type ArchiveConfig struct {
	Enabled      *bool  `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Database     string `json:"database"`
	SSLMode      string `json:"sslMode"`
	ConnString   string `json:"connString"`
	BatchSize    int    `json:"batchSize"`
	FlushEveryMs int64  `json:"flushEveryMs"`
}

// ProfilerConfig describes the pyroscope profiler.
type ProfilerConfig struct {
	Enabled         *bool  `json:"enabled"`
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// RuntimeConfig captures the main loop intervals and queue depth.
type RuntimeConfig struct {
	QueueSize       int   `json:"queueSize"`
	SnapshotEveryMs int64 `json:"snapshotEveryMs"`
	AdvanceEveryMs  int64 `json:"advanceEveryMs"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Symbols     []string
	Gate        gate.Config
	Binance     BinanceSpec
	Hyperliquid HyperliquidSpec
	Recorder    RecorderSpec
	Archive     ArchiveSpec
	Profiler    ProfilerSpec

	QueueSize       int
	SnapshotEveryMs int64
	AdvanceEveryMs  int64
}

// BinanceSpec is the resolved Binance feed definition.
type BinanceSpec struct {
	Enabled  bool
	Endpoint string
	Symbols  []string
}

// HyperliquidSpec is the resolved Hyperliquid feed definition.
type HyperliquidSpec struct {
	Enabled  bool
	Endpoint string
	User     string
	Coins    map[string]string
}

// RecorderSpec is the resolved journal definition.
type RecorderSpec struct {
	Enabled bool
	Config  recorder.Config
}

// ArchiveSpec is the resolved snapshot database definition.
type ArchiveSpec struct {
	Enabled bool
	Config  archive.Config
}

// ProfilerSpec is the resolved profiler definition.
type ProfilerSpec struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load reads a JSON config file and resolves every section.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	symbols, coins, err := resolveSymbols(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}

	hl, err := resolveHyperliquid(cfg.Feeds.Hyperliquid, coins)
	if err != nil {
		return Loaded{}, err
	}

	ar, err := resolveArchive(cfg.Archive)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Symbols: symbols,
		Gate: gate.Config{
			Whitelist:           symbols,
			BehindToleranceMs:   cfg.Gate.BehindToleranceMs,
			AheadToleranceMs:    cfg.Gate.AheadToleranceMs,
			DecayEveryMs:        cfg.Gate.DecayEveryMs,
			ObservationWindowMs: cfg.Gate.ObservationWindowMs,
			ProximityFrac:       cfg.Gate.ProximityFrac,
			OutlierSigma:        cfg.Gate.OutlierSigma,
		},
		Binance: BinanceSpec{
			Enabled:  boolOr(cfg.Feeds.Binance.Enabled, true),
			Endpoint: cfg.Feeds.Binance.Endpoint,
			Symbols:  symbols,
		},
		Hyperliquid:     hl,
		Recorder:        resolveRecorder(cfg.Recorder),
		Archive:         ar,
		Profiler:        resolveProfiler(cfg.Profiler),
		QueueSize:       cfg.Runtime.QueueSize,
		SnapshotEveryMs: cfg.Runtime.SnapshotEveryMs,
		AdvanceEveryMs:  cfg.Runtime.AdvanceEveryMs,
	}
	if loaded.QueueSize <= 0 {
		loaded.QueueSize = defaultQueueSize
	}
	if loaded.SnapshotEveryMs <= 0 {
		loaded.SnapshotEveryMs = defaultSnapshotEveryMs
	}
	if loaded.AdvanceEveryMs <= 0 {
		loaded.AdvanceEveryMs = defaultAdvanceEveryMs
	}
	return loaded, nil
}

func resolveSymbols(cfgs []SymbolConfig) ([]string, map[string]string, error) {
	if len(cfgs) == 0 {
		return nil, nil, fmt.Errorf("no symbols configured")
	}
	symbols := make([]string, 0, len(cfgs))
	coins := make(map[string]string)
	dup := make(map[string]struct{}, len(cfgs))
	for _, sym := range cfgs {
		if sym.Name == "" {
			return nil, nil, fmt.Errorf("symbol name is empty")
		}
		if _, ok := dup[sym.Name]; ok {
			return nil, nil, fmt.Errorf("duplicate symbol: %s", sym.Name)
		}
		dup[sym.Name] = struct{}{}
		symbols = append(symbols, sym.Name)
		if sym.HLCoin != "" {
			if prev, ok := coins[sym.HLCoin]; ok {
				return nil, nil, fmt.Errorf("hlCoin %s mapped to both %s and %s", sym.HLCoin, prev, sym.Name)
			}
			coins[sym.HLCoin] = sym.Name
		}
	}
	return symbols, coins, nil
}

func resolveHyperliquid(cfg HyperliquidFeedConfig, coins map[string]string) (HyperliquidSpec, error) {
	spec := HyperliquidSpec{
		Enabled:  boolOr(cfg.Enabled, false),
		Endpoint: cfg.Endpoint,
		User:     cfg.User,
		Coins:    coins,
	}
	if spec.Enabled && len(coins) == 0 {
		return HyperliquidSpec{}, fmt.Errorf("hyperliquid enabled but no symbol has an hlCoin mapping")
	}
	return spec, nil
}

func resolveRecorder(cfg RecorderConfig) RecorderSpec {
	spec := RecorderSpec{
		Enabled: boolOr(cfg.Enabled, false),
		Config:  recorder.DefaultConfig(cfg.Dir),
	}
	if cfg.SegmentMaxBytes > 0 {
		spec.Config.SegmentMaxBytes = cfg.SegmentMaxBytes
	}
	if cfg.SegmentMaxMinutes > 0 {
		spec.Config.SegmentMaxDuration = time.Duration(cfg.SegmentMaxMinutes) * time.Minute
	}
	return spec
}

func resolveArchive(cfg ArchiveConfig) (ArchiveSpec, error) {
	spec := ArchiveSpec{
		Enabled: boolOr(cfg.Enabled, false),
		Config: archive.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			User:         cfg.User,
			Password:     cfg.Password,
			Database:     cfg.Database,
			SSLMode:      cfg.SSLMode,
			ConnString:   cfg.ConnString,
			BatchSize:    cfg.BatchSize,
			FlushEveryMs: cfg.FlushEveryMs,
		},
	}
	if spec.Enabled && cfg.Database == "" && cfg.ConnString == "" {
		return ArchiveSpec{}, fmt.Errorf("archive enabled but no database or connString set")
	}
	return spec, nil
}

func resolveProfiler(cfg ProfilerConfig) ProfilerSpec {
	spec := ProfilerSpec{
		Enabled:         boolOr(cfg.Enabled, false),
		ServerAddress:   cfg.ServerAddress,
		ApplicationName: cfg.ApplicationName,
	}
	if spec.ApplicationName == "" {
		spec.ApplicationName = defaultProfilerApp
	}
	return spec
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
