package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Level is one price level in an order book side.
type Level struct {
	Price float64
	Size  float64
}

// OrderBook maintains top-K bid/ask levels for one symbol, sorted
// best-first, with a minimum snapshot interval (spec.md §4.6).
type OrderBook struct {
	Symbol string
	TopK   int

	bids map[float64]float64
	asks map[float64]float64

	lastSnapshot time.Time
}

// NewOrderBook constructs an empty order book keeping the topK best
// levels per side.
func NewOrderBook(symbol string, topK int) *OrderBook {
	return &OrderBook{Symbol: symbol, TopK: topK, bids: make(map[float64]float64), asks: make(map[float64]float64)}
}

// Apply updates one price level. A size of 0 removes the level
// (spec.md §4.6, §8 property 7).
func (ob *OrderBook) Apply(side string, price, size float64) {
	m := ob.bids
	if side == "ask" {
		m = ob.asks
	}
	if size == 0 {
		delete(m, price)
		return
	}
	m[price] = size
}

// Bids returns the top-K bid levels, best (highest price) first.
func (ob *OrderBook) Bids() []Level { return topLevels(ob.bids, ob.TopK, true) }

// Asks returns the top-K ask levels, best (lowest price) first.
func (ob *OrderBook) Asks() []Level { return topLevels(ob.asks, ob.TopK, false) }

func topLevels(m map[float64]float64, topK int, descending bool) []Level {
	levels := make([]Level, 0, len(m))
	for price, size := range m {
		levels = append(levels, Level{Price: price, Size: size})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	if len(levels) > topK {
		levels = levels[:topK]
	}
	return levels
}

// ShouldSnapshot reports whether minInterval has elapsed since the last
// snapshot, defaulting to a 60s minimum interval (spec.md §4.6 "e.g., 60s").
func (ob *OrderBook) ShouldSnapshot(now time.Time, minInterval time.Duration) bool {
	if minInterval <= 0 {
		minInterval = 60 * time.Second
	}
	return now.Sub(ob.lastSnapshot) >= minInterval
}

// MarkSnapshotted records now as the last snapshot time.
func (ob *OrderBook) MarkSnapshotted(now time.Time) { ob.lastSnapshot = now }

// Snapshotter persists order book snapshots.
type Snapshotter interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// Snapshot persists the current top-K bids/asks for ob as a single row.
func Snapshot(ctx context.Context, st Snapshotter, namespace, module string, ob *OrderBook, at time.Time) error {
	bidsJSON, err := levelsJSON(ob.Bids())
	if err != nil {
		return err
	}
	asksJSON, err := levelsJSON(ob.Asks())
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s.%s_orderbook_snapshots (symbol, taken_at, bids, asks)
		VALUES ($1, $2, $3::jsonb, $4::jsonb)
	`, namespace, module)
	return st.Exec(ctx, sql, ob.Symbol, at, bidsJSON, asksJSON)
}
