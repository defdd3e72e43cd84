// Package feed connects exchange websockets to the event bus. Each
// connection handles one symbol; translation to raw events is pure and
// kept separate from transport so it can be tested without a socket.
package feed

import (
	"context"
	"fmt"
	"strings"

	"main/internal/bus"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const defaultBinanceWsURL = "wss://fstream.binance.com/ws"

// BinanceConfig controls one Binance futures connection.
type BinanceConfig struct {
	Endpoint string
	Symbol   string
}

// BinanceFeed streams one symbol's public market data into the bus.
type BinanceFeed struct {
	cfg   BinanceConfig
	wss   *ws.WebSocket
	queue *bus.Queue
}

// NewBinanceFeed prepares a feed for one symbol.
func NewBinanceFeed(ctx context.Context, cfg BinanceConfig, queue *bus.Queue) *BinanceFeed {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultBinanceWsURL
	}
	return &BinanceFeed{
		cfg:   cfg,
		wss:   ws.New(ctx, cfg.Endpoint),
		queue: queue,
	}
}

// Close tears down the connection.
func (f *BinanceFeed) Close() {
	f.wss.Close()
}

// Start opens the socket, subscribes the streams and pumps messages
// into the bus until the context ends.
func (f *BinanceFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	if err := f.subscribe(ctx); err != nil {
		return err
	}
	f.observe(ctx)
	return nil
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (f *BinanceFeed) subscribe(ctx context.Context) error {
	lower := strings.ToLower(f.cfg.Symbol)
	params := []string{
		fmt.Sprintf("%s@aggTrade", lower),
		fmt.Sprintf("%s@forceOrder", lower),
		fmt.Sprintf("%s@kline_1m", lower),
		fmt.Sprintf("%s@depth20@100ms", lower),
	}

	appendIntoRegister := true
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := binanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: params,
				ID:     1,
			}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp binanceSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

func (f *BinanceFeed) observe(ctx context.Context) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				f.handle(m)
			}
		}
	}()
}

func (f *BinanceFeed) handle(m ws.Message) {
	env, ok := ws.ReadMessage[binanceEnvelope](m)
	if !ok {
		return
	}

	var err error
	switch env.EventType {
	case "aggTrade":
		var msg binanceAggTrade
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		err = f.publish(parseAggTrade(msg))
	case "forceOrder":
		var msg binanceForceOrder
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		err = f.publish(parseForceOrder(msg))
	case "kline":
		var msg binanceKline
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		err = f.publish(parseKline(msg))
	case "depthUpdate":
		var msg binancePartialDepth
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		err = f.publish(parsePartialDepth(f.cfg.Symbol, msg))
	default:
		return
	}
	if err != nil {
		logs.Errorf("handle %s message, err: %+v", f.cfg.Symbol, err)
	}
}

func (f *BinanceFeed) publish(ev parsedEvent) error {
	if ev.err != nil {
		return ev.err
	}
	if err := f.queue.TryPublish(ev.event); err != nil && err != bus.ErrQueueFull {
		return err
	}
	return nil
}

type binanceEnvelope struct {
	EventType string `json:"e"`
}
