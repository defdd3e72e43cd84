package feed

import (
	"context"
	"time"

	"main/internal/bus"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const defaultHyperliquidWsURL = "wss://api.hyperliquid.xyz/ws"

// HyperliquidConfig controls the Hyperliquid connection. Coins maps the
// venue's coin names to canonical symbols; User enables the private
// position and order streams when set.
type HyperliquidConfig struct {
	Endpoint string
	Coins    map[string]string
	User     string
}

// HyperliquidFeed streams mark prices, open interest, positions and
// order flow into the bus.
type HyperliquidFeed struct {
	cfg   HyperliquidConfig
	wss   *ws.WebSocket
	queue *bus.Queue
	nowMs func() int64
}

// NewHyperliquidFeed prepares the connection.
func NewHyperliquidFeed(ctx context.Context, cfg HyperliquidConfig, queue *bus.Queue) *HyperliquidFeed {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultHyperliquidWsURL
	}
	return &HyperliquidFeed{
		cfg:   cfg,
		wss:   ws.New(ctx, cfg.Endpoint),
		queue: queue,
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}
}

// Close tears down the connection.
func (f *HyperliquidFeed) Close() {
	f.wss.Close()
}

type hlSubscribeRequest struct {
	Method       string         `json:"method"`
	Subscription hlSubscription `json:"subscription"`
}

type hlSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
}

// Start opens the socket, subscribes the streams and pumps messages
// into the bus until the context ends.
func (f *HyperliquidFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	subs := []hlSubscription{{Type: "allMids"}}
	for coin := range f.cfg.Coins {
		subs = append(subs, hlSubscription{Type: "activeAssetCtx", Coin: coin})
	}
	if f.cfg.User != "" {
		subs = append(subs,
			hlSubscription{Type: "orderUpdates", User: f.cfg.User},
			hlSubscription{Type: "userEvents", User: f.cfg.User},
			hlSubscription{Type: "webData2", User: f.cfg.User},
		)
	}
	for _, sub := range subs {
		if err := f.wss.WriteJSON(hlSubscribeRequest{Method: "subscribe", Subscription: sub}); err != nil {
			return errors.Wrap(err, "write subscribe payload").With("subscription", sub)
		}
	}

	f.observe(ctx)
	return nil
}

func (f *HyperliquidFeed) observe(ctx context.Context) {
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

func (f *HyperliquidFeed) handle(m ws.Message) {
	env, ok := ws.ReadMessage[hlEnvelope](m)
	if !ok {
		return
	}

	var (
		events []parsedEvent
		err    error
	)
	switch env.Channel {
	case "allMids":
		var msg hlAllMids
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		events = parseAllMids(f.cfg.Coins, f.nowMs(), msg)
	case "activeAssetCtx":
		var msg hlAssetCtx
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		events = parseAssetCtx(f.cfg.Coins, f.nowMs(), msg)
	case "orderUpdates":
		var msg hlOrderUpdates
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		events = parseOrderUpdates(f.cfg.Coins, msg)
	case "user":
		var msg hlUserEvents
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		events = parseUserFills(f.cfg.Coins, msg)
	case "webData2":
		var msg hlWebData
		if e := m.Unmarshal(&msg); e != nil {
			err = e
			break
		}
		events = parsePositions(f.cfg.Coins, f.cfg.User, f.nowMs(), msg)
	default:
		return
	}
	if err != nil {
		logs.Errorf("handle hyperliquid %s message, err: %+v", env.Channel, err)
		return
	}

	for _, ev := range events {
		if ev.err != nil {
			logs.Errorf("translate hyperliquid %s message, err: %+v", env.Channel, ev.err)
			continue
		}
		if e := f.queue.TryPublish(ev.event); e != nil && e != bus.ErrQueueFull {
			logs.Errorf("publish hyperliquid event, err: %+v", e)
		}
	}
}

type hlEnvelope struct {
	Channel string `json:"channel"`
}
