// Package collector implements the shared collector runtime pattern every
// ingestion module embeds: reconnect/backoff, circuit breaking, bounded
// sweeps, the per-event persistence pipeline, and the log stream
// (spec.md §4.5, the "hard part").
package collector

import (
	"context"
	"time"
)

// Collector is the strategy interface every module implements. FeedEater
// never subclasses a base collector — it shares the reconnect/backoff/
// circuit-breaker/log-publish helpers as a library instead (spec.md §9
// "share ... as a reusable library, not inheritance").
type Collector interface {
	// EnsureSchema bootstraps the module's namespace; safe to call on
	// every boot.
	EnsureSchema(ctx context.Context) error

	// RunSweep executes one bounded invocation — streaming or polling —
	// within the wall-clock budget implied by ctx's deadline, and returns
	// a free-form metrics map.
	RunSweep(ctx context.Context) (map[string]any, error)

	// RefreshContexts runs the module's context/summary engine pass over
	// records collected within lookback.
	RefreshContexts(ctx context.Context, lookback time.Duration) (map[string]any, error)
}

// Metrics is a convenience builder for the scalar metrics maps RunSweep
// and RefreshContexts return.
type Metrics map[string]any

// Inc adds delta to the named counter, initializing it at 0 if absent.
func (m Metrics) Inc(name string, delta int) {
	cur, _ := m[name].(int)
	m[name] = cur + delta
}

// Set assigns an arbitrary scalar value.
func (m Metrics) Set(name string, value any) { m[name] = value }
