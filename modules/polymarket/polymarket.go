// Package polymarket is a concrete collector module: a bounded polling
// sweep over a configured set of Polymarket markets (spec.md §4.5(d)),
// paired with a per-market AI summarization loop run on its own schedule
// (spec.md §8 S5 "50 markets, contextTopK=20").
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/aiclient"
	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/collector"
	"github.com/jhacksman/feedeater/internal/contextengine"
	"github.com/jhacksman/feedeater/internal/idempotency"
	"github.com/jhacksman/feedeater/internal/module"
	"github.com/jhacksman/feedeater/internal/normalize"
	"github.com/jhacksman/feedeater/internal/schema"
	"github.com/jhacksman/feedeater/internal/store"
)

const moduleName = "polymarket"

// ValuesFunc resolves the module's current settings.
type ValuesFunc func(ctx context.Context) (module.Values, error)

// Collector polls a fixed set of markets and runs the shared context
// engine over whichever markets saw activity.
type Collector struct {
	schema   *schema.Manager
	pipeline *collector.Pipeline
	http     *collector.PollClient
	ai       aiclient.Client
	store    *store.Store
	brk      *broker.Broker
	values   ValuesFunc
	log      *zap.Logger
}

// New constructs the polymarket collector. sch is the module's schema
// manager, already bound by the module host at registration time.
func New(st *store.Store, brk *broker.Broker, ai aiclient.Client, sch *schema.Manager, log *zap.Logger, values ValuesFunc) *Collector {
	return &Collector{
		schema:   sch,
		pipeline: &collector.Pipeline{Module: moduleName, Store: st, Broker: brk, Log: log},
		http:     collector.NewPollClient(log),
		ai:       ai,
		store:    st,
		brk:      brk,
		values:   values,
		log:      log,
	}
}

// EnsureSchema bootstraps the polymarket namespace.
func (c *Collector) EnsureSchema(ctx context.Context) error {
	return c.schema.EnsureSchema(ctx, 1536)
}

type marketResponse struct {
	ConditionID string `json:"condition_id"`
	Question    string `json:"question"`
	LastTrade   struct {
		Price float64 `json:"price"`
		Size  float64 `json:"size"`
	} `json:"last_trade_price"`
	Volume24h float64 `json:"volume_24h"`
}

// RunSweep polls each configured market's current state once and ingests
// a Message per market through the shared pipeline, keyed by market slug
// as the context group (spec.md §8 S5).
func (c *Collector) RunSweep(ctx context.Context) (map[string]any, error) {
	metrics := collector.Metrics{}

	vals, err := c.values(ctx)
	if err != nil {
		return metrics, fmt.Errorf("polymarket: load settings: %w", err)
	}
	baseURL := vals.String("api_base_url", "https://clob.polymarket.com")
	slugsCSV, err := vals.RequireString(moduleName, "market_slugs")
	if err != nil {
		return metrics, err
	}
	maxMarkets, err := vals.PositiveInt(moduleName, "max_markets", 50)
	if err != nil {
		return metrics, err
	}

	slugs := splitSlugs(slugsCSV)
	if len(slugs) > maxMarkets {
		metrics.Set("markets_skipped", len(slugs)-maxMarkets)
		slugs = slugs[:maxMarkets]
	}

	namespace := c.schema.Namespace()
	for _, slug := range slugs {
		if err := c.pollOne(ctx, namespace, baseURL, slug); err != nil {
			c.log.Warn("polymarket: poll failed for market", zap.String("slug", slug), zap.Error(err))
			metrics.Inc("markets_failed", 1)
			continue
		}
		metrics.Inc("markets_polled", 1)
	}

	return metrics, nil
}

func (c *Collector) pollOne(ctx context.Context, namespace, baseURL, slug string) error {
	url := fmt.Sprintf("%s/markets/%s", strings.TrimRight(baseURL, "/"), slug)
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}
	defer resp.Body.Close()

	var market marketResponse
	if err := json.NewDecoder(resp.Body).Decode(&market); err != nil {
		return fmt.Errorf("decode market response: %w", err)
	}

	sourceID := idempotency.SourceID(moduleName, "market", slug)
	msg := normalize.Message{
		ID:        idempotency.MessageID(moduleName, sourceID),
		CreatedAt: time.Now().UTC(),
		Source:    normalize.Source{Module: moduleName, Stream: slug},
		Realtime:  false,
		Message:   fmt.Sprintf("%s: price=%.4f 24h_volume=%.2f", market.Question, market.LastTrade.Price, market.Volume24h),
		ContextRef: &normalize.ContextRef{
			OwnerModule: moduleName,
			SourceKey:   slug,
		},
	}

	c.pipeline.Ingest(ctx, namespace, sourceID, market, msg, collector.PublishOnInsert, nil)
	return nil
}

// RefreshContexts runs the shared context engine over markets with
// activity since now-lookback, summarizing each via the AI client's
// JSON→plain-text→fallback degradation chain (spec.md §4.11(d)).
func (c *Collector) RefreshContexts(ctx context.Context, lookback time.Duration) (map[string]any, error) {
	vals, err := c.values(ctx)
	if err != nil {
		return collector.Metrics{}, fmt.Errorf("polymarket: load settings: %w", err)
	}
	topK, err := vals.PositiveInt(moduleName, "context_top_k", contextengine.DefaultTopK)
	if err != nil {
		return collector.Metrics{}, err
	}

	engine := &contextengine.Engine{
		Module:    moduleName,
		Namespace: c.schema.Namespace(),
		TopK:      topK,
		Store:     c.store,
		AI:        c.ai,
		Broker:    c.brk,
		Log:       c.log,
	}
	return engine.RunOnce(ctx, lookback)
}

func splitSlugs(csv string) []string {
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
