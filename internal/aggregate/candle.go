// Package aggregate implements the in-memory candle and order-book
// aggregation pattern trading modules maintain, keyed by symbol
// (spec.md §4.6). Safety from concurrent mutation relies on the
// scheduler's single-flight guarantee per (module, job) — no locking is
// performed here.
package aggregate

import (
	"context"
	"fmt"

	"github.com/jhacksman/feedeater/internal/store"
)

// Candle is one OHLCV bucket for a symbol.
type Candle struct {
	Symbol     string
	StartTime  int64 // bucket start, epoch millis, floor(ts/intervalMs)*intervalMs
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
}

// CandleAggregator buckets a per-symbol trade stream into candles at a
// fixed interval, flushing (upserting) the prior bucket whenever a trade
// lands in a new one.
type CandleAggregator struct {
	intervalMs int64
	current    map[string]*Candle
}

// NewCandleAggregator builds an aggregator bucketing at intervalMs.
func NewCandleAggregator(intervalMs int64) *CandleAggregator {
	return &CandleAggregator{intervalMs: intervalMs, current: make(map[string]*Candle)}
}

// Trade applies one trade (symbol, tsMillis, price, size) to the
// aggregator, returning the candle that was flushed (nil if the trade
// landed in the still-open bucket).
func (a *CandleAggregator) Trade(symbol string, tsMillis int64, price, size float64) *Candle {
	bucketStart := (tsMillis / a.intervalMs) * a.intervalMs

	cur, ok := a.current[symbol]
	if !ok {
		a.current[symbol] = &Candle{
			Symbol: symbol, StartTime: bucketStart,
			Open: price, High: price, Low: price, Close: price,
			Volume: size, TradeCount: 1,
		}
		return nil
	}

	if bucketStart != cur.StartTime {
		flushed := cur
		a.current[symbol] = &Candle{
			Symbol: symbol, StartTime: bucketStart,
			Open: price, High: price, Low: price, Close: price,
			Volume: size, TradeCount: 1,
		}
		return flushed
	}

	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
	cur.Volume += size
	cur.TradeCount++
	return nil
}

// Flush force-closes every symbol's current candle, e.g. at sweep end.
func (a *CandleAggregator) Flush() []*Candle {
	out := make([]*Candle, 0, len(a.current))
	for _, c := range a.current {
		out = append(out, c)
	}
	a.current = make(map[string]*Candle)
	return out
}

// Upsert persists c under namespace.<module>_candles, updating
// high = GREATEST, low = LEAST, close/volume/count = new on conflict
// (spec.md §4.6).
func Upsert(ctx context.Context, st *store.Store, namespace, module string, c *Candle) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s.%s_candles (symbol, start_time, open, high, low, close, volume, trade_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, start_time) DO UPDATE SET
			high = GREATEST(%s.%s_candles.high, EXCLUDED.high),
			low = LEAST(%s.%s_candles.low, EXCLUDED.low),
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count
	`, namespace, module, namespace, module)

	return st.Exec(ctx, sql, c.Symbol, c.StartTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount)
}
