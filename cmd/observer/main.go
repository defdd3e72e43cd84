package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/archive"
	"main/internal/bus"
	"main/internal/feed"
	"main/internal/gate"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	if err := run(); err != nil {
		log.Printf("observer: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()

	if *configPath == "" {
		return errors.New("missing config; use -config")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if loaded.Profiler.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profiler.ApplicationName,
			ServerAddress:   loaded.Profiler.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	g := gate.New(loaded.Gate, metrics)
	queue := bus.NewQueue(loaded.QueueSize)

	var journal *recorder.Writer
	if loaded.Recorder.Enabled {
		journal, err = recorder.NewWriter(loaded.Recorder.Config)
		if err != nil {
			return err
		}
		if err := journal.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logs.Errorf("close journal, err: %+v", err)
			}
		}()
	}

	var arch *archive.Archiver
	if loaded.Archive.Enabled {
		arch, err = archive.New(loaded.Archive.Config)
		if err != nil {
			return err
		}
		go arch.Run(ctx)
		defer func() {
			if err := arch.Close(); err != nil {
				logs.Errorf("close archiver, err: %+v", err)
			}
		}()
	}

	// The gate is single-threaded; the mutex serializes the queue
	// consumer against the clock and snapshot tickers.
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(ev schema.RawEvent) {
			if journal != nil {
				if err := journal.TryAppend(ev); err != nil {
					logs.Errorf("journal append, err: %+v", err)
				}
			}
			mu.Lock()
			err := g.Ingest(ev)
			mu.Unlock()
			if err != nil && !errors.Is(err, gate.ErrHalted) {
				logs.Errorf("ingest %s %s, err: %+v", ev.Symbol, ev.Type, err)
			}
			if g.Status() == gate.StatusFailed {
				logs.Errorf("pipeline halted, reason: %+v", g.Failure())
				cancel()
			}
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runClock(ctx, cancel, g, arch, &mu, loaded)
	}()

	startFeeds(ctx, cancel, &wg, queue, loaded)

	<-ctx.Done()
	queue.Close()
	wg.Wait()

	snap := metrics.Snapshot()
	logs.Infof("shutdown: events=%v drops=%v snapshots=%d faults=%d query_latency=%+v",
		snap.EventCounts, snap.DropCounts, snap.Snapshots, snap.PrimitiveFaults, snap.QueryLatency)
	return nil
}

// runClock owns observed time. Wall clock drives AdvanceTime because
// live feeds stamp events with exchange wall time.
func runClock(ctx context.Context, cancel context.CancelFunc, g *gate.Gate, arch *archive.Archiver, mu *sync.Mutex, loaded ops.Loaded) {
	advance := time.NewTicker(time.Duration(loaded.AdvanceEveryMs) * time.Millisecond)
	defer advance.Stop()
	snapshot := time.NewTicker(time.Duration(loaded.SnapshotEveryMs) * time.Millisecond)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-advance.C:
			mu.Lock()
			err := g.AdvanceTime(time.Now().UnixMilli())
			mu.Unlock()
			if err != nil {
				logs.Errorf("advance time, err: %+v", err)
				cancel()
				return
			}
		case <-snapshot.C:
			mu.Lock()
			snap, err := g.Query()
			mu.Unlock()
			if errors.Is(err, gate.ErrNotReady) {
				continue
			}
			if err != nil {
				logs.Errorf("query, err: %+v", err)
				cancel()
				return
			}
			logs.Infof("snapshot seq=%d ts=%d symbols=%d", snap.Seq, snap.TsMs, len(snap.Bundles))
			if arch != nil {
				if err := arch.Append(snap); err != nil {
					logs.Errorf("archive append, err: %+v", err)
				}
			}
		}
	}
}

func startFeeds(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, queue *bus.Queue, loaded ops.Loaded) {
	if loaded.Binance.Enabled {
		for _, sym := range loaded.Binance.Symbols {
			f := feed.NewBinanceFeed(ctx, feed.BinanceConfig{
				Endpoint: loaded.Binance.Endpoint,
				Symbol:   sym,
			}, queue)
			wg.Add(1)
			go func(sym string) {
				defer wg.Done()
				defer f.Close()
				if err := f.Start(ctx); err != nil {
					logs.Errorf("binance feed %s, err: %+v", sym, err)
					cancel()
				}
			}(sym)
		}
	}

	if loaded.Hyperliquid.Enabled {
		f := feed.NewHyperliquidFeed(ctx, feed.HyperliquidConfig{
			Endpoint: loaded.Hyperliquid.Endpoint,
			Coins:    loaded.Hyperliquid.Coins,
			User:     loaded.Hyperliquid.User,
		}, queue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer f.Close()
			if err := f.Start(ctx); err != nil {
				logs.Errorf("hyperliquid feed, err: %+v", err)
				cancel()
			}
		}()
	}
}
