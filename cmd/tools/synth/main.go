// Synth writes a deterministic synthetic journal. The same seed and
// flags always produce the same segment bytes, which gives replay and
// archive comparisons a stable fixture without touching an exchange.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"sync"

	"main/internal/bus"
	"main/internal/mdg"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "Journal output directory")
	symbols := flag.String("symbols", "BTCUSDT", "Comma-separated symbol list")
	seed := flag.Int64("seed", 1, "Generator seed")
	batches := flag.Int("batches", 600, "Number of trade intervals to generate")
	basePrice := flag.Float64("base-price", 30_000, "Base price for the first symbol")
	baseQty := flag.Float64("base-qty", 0.5, "Base trade quantity")
	liqChance := flag.Float64("liq-chance", 0.01, "Liquidation probability per trade")
	flag.Parse()

	if *batches <= 0 {
		log.Fatalf("batches must be > 0")
	}

	cfg := mdg.DefaultConfig(splitSymbols(*symbols))
	cfg.Seed = *seed
	cfg.BasePrice = *basePrice
	cfg.BaseQty = *baseQty
	cfg.LiquidationChance = *liqChance

	generator, err := mdg.New(cfg)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ctx := context.Background()
	writer, err := recorder.NewWriter(recorder.DefaultConfig(*dir))
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("journal start failed: %v", err)
	}

	queue := bus.NewQueue(4096)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(ev schema.RawEvent) {
			if err := writer.TryAppend(ev); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		})
	}()

	total := 0
	for i := 0; i < *batches; i++ {
		for _, ev := range generator.Next() {
			if err := queue.TryPublish(ev); err != nil {
				if errors.Is(err, bus.ErrQueueFull) {
					log.Fatalf("queue overflow at batch %d", i)
				}
				log.Fatalf("publish failed: %v", err)
			}
			total++
		}
	}

	queue.Close()
	wg.Wait()

	var appendErr error
	select {
	case appendErr = <-errCh:
	default:
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("journal close failed: %v", err)
	}
	if appendErr != nil {
		log.Fatalf("journal append failed: %v", appendErr)
	}
	log.Printf("wrote %d events through %d ms of synthetic time", total, generator.NowMs())
}

func splitSymbols(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
