// Package bitfinex is a concrete collector module: a persistent websocket
// session against the Bitfinex public v2 stream, aggregating trades into
// candles and order-book updates into top-K snapshots (spec.md §4.5(a)
// "a persistent streaming session" and §4.6 "aggregation modules").
package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/aggregate"
	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/collector"
	"github.com/jhacksman/feedeater/internal/idempotency"
	"github.com/jhacksman/feedeater/internal/module"
	"github.com/jhacksman/feedeater/internal/normalize"
	"github.com/jhacksman/feedeater/internal/schema"
	"github.com/jhacksman/feedeater/internal/store"
)

const moduleName = "bitfinex"

// ValuesFunc resolves the module's current settings.
type ValuesFunc func(ctx context.Context) (module.Values, error)

// Collector runs one websocket session per invocation, re-subscribing to
// every configured symbol's trades and book channels on each (re)connect.
type Collector struct {
	schema *schema.Manager
	store  *store.Store
	broker *broker.Broker
	values ValuesFunc
	log    *zap.Logger

	extraTablesOnce sync.Once
	extraTablesErr  error

	mu       sync.Mutex
	channels map[float64]channelBinding // bitfinex chanId -> symbol/kind
}

type channelBinding struct {
	symbol string
	kind   string // "trades" | "book"
}

// New constructs the bitfinex collector. sch is the module's schema
// manager, already bound by the module host at registration time.
func New(st *store.Store, brk *broker.Broker, sch *schema.Manager, log *zap.Logger, values ValuesFunc) *Collector {
	return &Collector{
		schema:   sch,
		store:    st,
		broker:   brk,
		values:   values,
		log:      log,
		channels: make(map[float64]channelBinding),
	}
}

// EnsureSchema bootstraps the bitfinex namespace plus its candle and
// order-book-snapshot tables.
func (c *Collector) EnsureSchema(ctx context.Context) error {
	if err := c.schema.EnsureSchema(ctx, 1); err != nil {
		return err
	}
	return c.ensureExtraTables(ctx)
}

func (c *Collector) ensureExtraTables(ctx context.Context) error {
	c.extraTablesOnce.Do(func() {
		ns := c.schema.Namespace()
		candlesDDL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.%s_candles (
				symbol TEXT NOT NULL,
				start_time BIGINT NOT NULL,
				open DOUBLE PRECISION NOT NULL,
				high DOUBLE PRECISION NOT NULL,
				low DOUBLE PRECISION NOT NULL,
				close DOUBLE PRECISION NOT NULL,
				volume DOUBLE PRECISION NOT NULL,
				trade_count BIGINT NOT NULL,
				PRIMARY KEY (symbol, start_time)
			)`, ns, moduleName)
		if c.extraTablesErr = c.store.Exec(ctx, candlesDDL); c.extraTablesErr != nil {
			return
		}

		obDDL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.%s_orderbook_snapshots (
				id BIGSERIAL PRIMARY KEY,
				symbol TEXT NOT NULL,
				taken_at TIMESTAMPTZ NOT NULL,
				bids JSONB NOT NULL,
				asks JSONB NOT NULL
			)`, ns, moduleName)
		c.extraTablesErr = c.store.Exec(ctx, obDDL)
	})
	return c.extraTablesErr
}

// RunSweep drives one websocket session for the invocation's lifetime
// (governed by ctx's deadline), subscribing to every configured symbol's
// trades and book channels and aggregating into candles/order-book
// snapshots as frames arrive.
func (c *Collector) RunSweep(ctx context.Context) (map[string]any, error) {
	vals, err := c.values(ctx)
	if err != nil {
		return collector.Metrics{}, fmt.Errorf("bitfinex: load settings: %w", err)
	}

	wsURL := vals.String("ws_url", "wss://api-pub.bitfinex.com/ws/2")
	symbolsCSV, err := vals.RequireString(moduleName, "symbols")
	if err != nil {
		return collector.Metrics{}, err
	}
	symbols := splitSymbols(symbolsCSV)
	if len(symbols) == 0 {
		return collector.Metrics{}, fmt.Errorf("bitfinex: setting %q has no usable symbols", "symbols")
	}

	candleIntervalMs, err := vals.PositiveInt(moduleName, "candle_interval_ms", 60000)
	if err != nil {
		return collector.Metrics{}, err
	}
	topK, err := vals.PositiveInt(moduleName, "orderbook_top_k", 25)
	if err != nil {
		return collector.Metrics{}, err
	}
	snapshotIntervalSec, err := vals.PositiveInt(moduleName, "orderbook_snapshot_interval_seconds", 60)
	if err != nil {
		return collector.Metrics{}, err
	}

	namespace := c.schema.Namespace()
	candles := aggregate.NewCandleAggregator(int64(candleIntervalMs))
	books := make(map[string]*aggregate.OrderBook, len(symbols))
	for _, sym := range symbols {
		books[sym] = aggregate.NewOrderBook(sym, topK)
	}

	c.mu.Lock()
	c.channels = make(map[float64]channelBinding)
	c.mu.Unlock()

	pipeline := &collector.Pipeline{Module: moduleName, Store: c.store, Broker: c.broker, Log: c.log}

	session := &collector.Session{
		Module: moduleName,
		URL:    wsURL,
		Broker: c.broker,
		Log:    c.log,
		OnOpen: func(conn *websocket.Conn) error {
			for _, sym := range symbols {
				if err := conn.WriteJSON(map[string]any{"event": "subscribe", "channel": "trades", "symbol": sym}); err != nil {
					return err
				}
				if err := conn.WriteJSON(map[string]any{"event": "subscribe", "channel": "book", "symbol": sym, "prec": "P0", "len": topK}); err != nil {
					return err
				}
			}
			return nil
		},
		Handle: func(ctx context.Context, frame []byte) error {
			return c.handleFrame(ctx, frame, namespace, candles, books, snapshotIntervalSec, pipeline)
		},
	}

	metrics := session.Run(ctx)

	for _, flushed := range candles.Flush() {
		if err := aggregate.Upsert(ctx, c.store, namespace, moduleName, flushed); err != nil {
			c.log.Error("bitfinex: candle flush upsert failed", zap.String("symbol", flushed.Symbol), zap.Error(err))
		}
	}

	return metrics, nil
}

// RefreshContexts is a no-op for bitfinex: trade/order-book rows are
// consumed directly as aggregated series, with no per-module
// context/summary loop declared in its manifest.
func (c *Collector) RefreshContexts(ctx context.Context, lookback time.Duration) (map[string]any, error) {
	return collector.Metrics{}, nil
}

// handleFrame decodes one Bitfinex v2 frame: either a JSON object (an
// "event" message, e.g. a subscription ack) or a JSON array (a channel
// data message). A single malformed frame is logged and skipped, never
// ending the session (spec.md §4.5(c)).
func (c *Collector) handleFrame(ctx context.Context, frame []byte, namespace string, candles *aggregate.CandleAggregator, books map[string]*aggregate.OrderBook, snapshotIntervalSec int, pipeline *collector.Pipeline) error {
	trimmed := strings.TrimSpace(string(frame))
	if trimmed == "" {
		return nil
	}

	if trimmed[0] == '{' {
		return c.handleEvent(frame)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return fmt.Errorf("bitfinex: decode channel frame: %w", err)
	}
	if len(raw) < 2 {
		return nil
	}

	var chanID float64
	if err := json.Unmarshal(raw[0], &chanID); err != nil {
		return fmt.Errorf("bitfinex: decode channel id: %w", err)
	}

	c.mu.Lock()
	binding, known := c.channels[chanID]
	c.mu.Unlock()
	if !known {
		return nil // heartbeat or a channel we did not subscribe
	}

	switch binding.kind {
	case "trades":
		return c.handleTradePayload(ctx, raw[1:], namespace, binding.symbol, candles, pipeline)
	case "book":
		return c.handleBookPayload(raw[1:], binding.symbol, books, snapshotIntervalSec, namespace, pipeline)
	}
	return nil
}

type subscribedEvent struct {
	Event   string  `json:"event"`
	Channel string  `json:"channel"`
	ChanID  float64 `json:"chanId"`
	Symbol  string  `json:"symbol"`
}

func (c *Collector) handleEvent(frame []byte) error {
	var ev subscribedEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return fmt.Errorf("bitfinex: decode event frame: %w", err)
	}
	if ev.Event != "subscribed" {
		return nil
	}
	c.mu.Lock()
	c.channels[ev.ChanID] = channelBinding{symbol: ev.Symbol, kind: ev.Channel}
	c.mu.Unlock()
	return nil
}

// tradeTuple is [ID, MTS, AMOUNT, PRICE] per the Bitfinex v2 trades channel.
type tradeTuple [4]float64

func (c *Collector) handleTradePayload(ctx context.Context, rest []json.RawMessage, namespace, symbol string, candles *aggregate.CandleAggregator, pipeline *collector.Pipeline) error {
	if len(rest) == 0 {
		return nil
	}

	// A snapshot payload nests an array of tuples directly: [chanId, [[...], [...]]].
	// An update payload is tagged: [chanId, "te"|"tu", [...]] — the tuple is
	// rest[1], not rest[0].
	var tag string
	if err := json.Unmarshal(rest[0], &tag); err == nil {
		if tag != "te" && tag != "tu" {
			return nil // "hb" or some other non-trade tag
		}
		if len(rest) < 2 {
			return nil
		}
		var single tradeTuple
		if err := json.Unmarshal(rest[1], &single); err != nil {
			return nil
		}
		return c.aggregateTrades(ctx, []tradeTuple{single}, namespace, symbol, candles, pipeline)
	}

	var tuples []tradeTuple
	if err := json.Unmarshal(rest[0], &tuples); err != nil {
		return nil // unrecognized shape
	}
	return c.aggregateTrades(ctx, tuples, namespace, symbol, candles, pipeline)
}

func (c *Collector) aggregateTrades(ctx context.Context, tuples []tradeTuple, namespace, symbol string, candles *aggregate.CandleAggregator, pipeline *collector.Pipeline) error {
	for _, t := range tuples {
		id, tsMillis, amount, price := t[0], t[1], t[2], t[3]
		size := amount
		if size < 0 {
			size = -size
		}

		if flushed := candles.Trade(symbol, int64(tsMillis), price, size); flushed != nil {
			if err := aggregate.Upsert(ctx, pipeline.Store, namespace, moduleName, flushed); err != nil {
				c.log.Error("bitfinex: candle upsert failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}

		sourceID := idempotency.SourceID(moduleName, "trade", symbol, fmt.Sprintf("%.0f", id))
		msg := normalize.Message{
			ID:        idempotency.MessageID(moduleName, sourceID),
			CreatedAt: time.UnixMilli(int64(tsMillis)).UTC(),
			Source:    normalize.Source{Module: moduleName, Stream: symbol},
			Realtime:  true,
			Message:   fmt.Sprintf("%s trade: %.8f @ %.8f", symbol, amount, price),
			ContextRef: &normalize.ContextRef{
				OwnerModule: moduleName,
				SourceKey:   symbol,
			},
		}
		pipeline.Ingest(ctx, namespace, sourceID, t, msg, collector.PublishOnInsert, nil)
	}
	return nil
}

func (c *Collector) handleBookPayload(rest []json.RawMessage, symbol string, books map[string]*aggregate.OrderBook, snapshotIntervalSec int, namespace string, pipeline *collector.Pipeline) error {
	ob, ok := books[symbol]
	if !ok {
		return nil
	}
	if len(rest) == 0 {
		return nil
	}

	applyLevel := func(price, count, amount float64) {
		side := "bid"
		size := amount
		if amount < 0 {
			side = "ask"
			size = -amount
		}
		if count == 0 {
			ob.Apply(side, price, 0)
			return
		}
		ob.Apply(side, price, size)
	}

	var single [3]float64
	if err := json.Unmarshal(rest[0], &single); err == nil {
		applyLevel(single[0], single[1], single[2])
	} else {
		var levels [][3]float64
		if err := json.Unmarshal(rest[0], &levels); err != nil {
			return nil
		}
		for _, l := range levels {
			applyLevel(l[0], l[1], l[2])
		}
	}

	now := time.Now().UTC()
	if ob.ShouldSnapshot(now, time.Duration(snapshotIntervalSec)*time.Second) {
		if err := aggregate.Snapshot(context.Background(), pipeline.Store, namespace, moduleName, ob, now); err != nil {
			c.log.Error("bitfinex: orderbook snapshot failed", zap.String("symbol", symbol), zap.Error(err))
		} else {
			ob.MarkSnapshotted(now)
		}
	}
	return nil
}

func splitSymbols(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
