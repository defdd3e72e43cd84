// Replay feeds a recorded journal through a fresh pipeline and prints
// one snapshot JSON line per snapshot interval of observed time. Two
// runs over the same journal produce byte-identical output, so replays
// can be diffed against archived snapshots or against each other; the
// -verify flag performs that double run and compare in one invocation.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"main/internal/gate"
	"main/internal/obs"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: obs)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	symbols := flag.String("symbols", "", "Comma-separated whitelist (default: every symbol in the journal)")
	snapshotMs := flag.Int64("snapshot-ms", 1_000, "Snapshot interval in observed milliseconds")
	out := flag.String("out", "", "Snapshot output file (default: stdout)")
	verify := flag.Bool("verify", false, "Run the journal twice through independent pipelines and byte-compare")
	flag.Parse()

	cfg := recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}

	whitelist := splitSymbols(*symbols)
	if len(whitelist) == 0 {
		var err error
		whitelist, err = scanSymbols(cfg)
		if err != nil {
			log.Fatalf("scan symbols failed: %v", err)
		}
	}
	if len(whitelist) == 0 {
		log.Fatalf("journal has no events")
	}

	if *verify {
		cfg.Speed = 0
		if err := verifyDeterminism(cfg, whitelist, *snapshotMs); err != nil {
			fmt.Println("FAIL")
			log.Fatalf("verify failed: %v", err)
		}
		fmt.Println("PASS")
		return
	}

	sink := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output failed: %v", err)
		}
		defer f.Close()
		sink = f
	}
	w := bufio.NewWriter(sink)
	defer w.Flush()

	if err := replay(cfg, whitelist, *snapshotMs, w); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func replay(cfg recorder.PlaybackConfig, whitelist []string, snapshotMs int64, w *bufio.Writer) error {
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		return err
	}

	g := gate.New(gate.Config{Whitelist: whitelist}, obs.NewMetrics())
	var (
		buf        []byte
		nextSnapMs int64 = -1
		total      int
	)

	flush := func(upToMs int64) error {
		for nextSnapMs >= 0 && nextSnapMs <= upToMs {
			if err := g.AdvanceTime(nextSnapMs); err != nil {
				return err
			}
			snap, err := g.Query()
			if err != nil {
				return err
			}
			buf = snap.AppendJSON(buf[:0])
			buf = append(buf, '\n')
			if _, err := w.Write(buf); err != nil {
				return err
			}
			nextSnapMs += snapshotMs
		}
		return nil
	}

	err = pb.Run(context.Background(), func(ev schema.RawEvent) error {
		if nextSnapMs < 0 {
			nextSnapMs = ev.TsMs + snapshotMs
		}
		if err := flush(ev.TsMs); err != nil {
			return err
		}
		if ev.TsMs > g.ClockMs() {
			if err := g.AdvanceTime(ev.TsMs); err != nil {
				return err
			}
		}
		if err := g.Ingest(ev); err != nil {
			return err
		}
		total++
		return nil
	})
	if err != nil {
		return err
	}
	// Final snapshot at the clock so short journals still emit one.
	if err := flush(g.ClockMs() + snapshotMs); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "replay completed: events=%d clock=%d status=%s\n", total, g.ClockMs(), g.Status())
	return nil
}

// verifyDeterminism replays the journal through two fresh pipelines and
// requires their serialized snapshot streams to match byte for byte.
func verifyDeterminism(cfg recorder.PlaybackConfig, whitelist []string, snapshotMs int64) error {
	run := func() ([]byte, error) {
		var out bytes.Buffer
		w := bufio.NewWriter(&out)
		if err := replay(cfg, whitelist, snapshotMs, w); err != nil {
			return nil, err
		}
		if err := w.Flush(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}

	first, err := run()
	if err != nil {
		return err
	}
	second, err := run()
	if err != nil {
		return err
	}
	if !bytes.Equal(first, second) {
		return fmt.Errorf("snapshot streams diverge: %d bytes vs %d bytes", len(first), len(second))
	}
	return nil
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

// scanSymbols reads the journal once to discover the symbol universe.
func scanSymbols(cfg recorder.PlaybackConfig) ([]string, error) {
	scan := cfg
	scan.Speed = 0
	pb, err := recorder.NewPlayback(scan)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	err = pb.Run(context.Background(), func(ev schema.RawEvent) error {
		seen[ev.Symbol] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}
