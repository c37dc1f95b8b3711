// Command feedeater is the FeedEater ingestion fleet process: it loads
// module manifests, bootstraps their schemas, dispatches their jobs on
// schedule, persists the canonical event bus, and serves the operational
// HTTP surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/aiclient"
	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/bus"
	"github.com/jhacksman/feedeater/internal/httpapi"
	"github.com/jhacksman/feedeater/internal/logging"
	"github.com/jhacksman/feedeater/internal/module"
	"github.com/jhacksman/feedeater/internal/scheduler"
	"github.com/jhacksman/feedeater/internal/secrets"
	"github.com/jhacksman/feedeater/internal/settings"
	"github.com/jhacksman/feedeater/internal/store"
	"github.com/jhacksman/feedeater/internal/telemetry"
	"github.com/jhacksman/feedeater/modules/bitfinex"
	"github.com/jhacksman/feedeater/modules/polymarket"
	"github.com/jhacksman/feedeater/modules/rss"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// ── OpenTelemetry ──────────────────────────────────────────────────────
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		if tp, err := telemetry.InitTracer(context.Background(), "feedeater", endpoint); err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		if mp, err := telemetry.InitMeterProvider(context.Background(), "feedeater", endpoint); err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}

	// ── Vault secrets ──────────────────────────────────────────────────────
	vaultAddr := envOr("VAULT_ADDR", "http://localhost:8200")
	vaultToken := envOr("VAULT_TOKEN", "root")
	secretPath := envOr("VAULT_SECRET_PATH", "secret/data/feedeater")

	secretsMgr, err := secrets.NewManager(vaultAddr, vaultToken)
	if err != nil {
		logger.Fatal("vault connection failed", zap.Error(err))
	}
	secretData, err := secretsMgr.GetKV2(secretPath)
	if err != nil {
		logger.Fatal("failed to load secrets from vault", zap.Error(err))
	}

	pgURL := secrets.String(secretData, "PG_URL")
	natsURL := secrets.String(secretData, "NATS_URL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Store ──────────────────────────────────────────────────────────────
	st, err := store.Open(ctx, pgURL, logger)
	if err != nil {
		logger.Fatal("store connection failed", zap.Error(err))
	}
	defer st.Close()

	// ── Broker ─────────────────────────────────────────────────────────────
	brk, err := broker.Connect(natsURL, logger)
	if err != nil {
		logger.Fatal("broker connection failed", zap.Error(err))
	}
	defer brk.Close()
	if err := brk.ProvisionStream(); err != nil {
		logger.Fatal("broker stream provisioning failed", zap.Error(err))
	}

	logger = logging.WithBrokerTee(logger, brk, "feedeater", "host")

	// ── Module host ────────────────────────────────────────────────────────
	settingsRegistry := settings.New(st)
	if redisURL := os.Getenv("FEED_REDIS_URL"); redisURL != "" {
		if opts, err := redis.ParseURL(redisURL); err != nil {
			logger.Warn("invalid FEED_REDIS_URL, settings cache stays in-process", zap.Error(err))
		} else {
			settingsRegistry = settingsRegistry.WithRedis(redis.NewClient(opts))
		}
	}
	host := module.NewHost(st, settingsRegistry, logger)

	manifestDir := envOr("FEED_MANIFEST_DIR", "./modules")
	manifests, err := module.LoadManifestDir(manifestDir)
	if err != nil {
		logger.Warn("failed to load manifests, continuing with built-in modules only", zap.Error(err))
	}
	for _, m := range manifests {
		if _, err := host.Register(m); err != nil {
			logger.Error("module registration failed", zap.String("module", m.Name), zap.Error(err))
		}
	}

	embedDim := 1536
	if v, _, found, _ := settingsRegistry.GetOne(ctx, "system", "ollama_embed_dim"); found {
		if n, err := strconv.Atoi(v); err == nil {
			embedDim = n
		}
	}
	if err := host.EnsureSchemas(ctx, func(string) int { return embedDim }); err != nil {
		logger.Error("schema bootstrap failed", zap.Error(err))
	}

	// ── AI client ──────────────────────────────────────────────────────────
	aiBaseURL := envOr("FEED_API_BASE_URL", "http://localhost:9000")
	aiToken := os.Getenv("FEED_INTERNAL_TOKEN")
	ai := aiclient.New(aiBaseURL, aiToken)

	// ── Scheduler + module collectors ─────────────────────────────────────
	sched := scheduler.New(st, logger)

	type runningCollector interface {
		EnsureSchema(ctx context.Context) error
		RunSweep(ctx context.Context) (map[string]any, error)
		RefreshContexts(ctx context.Context, lookback time.Duration) (map[string]any, error)
	}
	collectors := map[string]runningCollector{}

	valuesFor := func(name string) func(ctx context.Context) (module.Values, error) {
		return func(ctx context.Context) (module.Values, error) { return host.Values(ctx, name) }
	}

	if inst, ok := host.Get("rss"); ok {
		collectors["rss"] = rss.New(st, brk, inst.Schema, logger, valuesFor("rss"))
	}
	if inst, ok := host.Get("bitfinex"); ok {
		collectors["bitfinex"] = bitfinex.New(st, brk, inst.Schema, logger, valuesFor("bitfinex"))
	}
	if inst, ok := host.Get("polymarket"); ok {
		collectors["polymarket"] = polymarket.New(st, brk, ai, inst.Schema, logger, valuesFor("polymarket"))
	}

	// Each collector's EnsureSchema creates its module-specific tables (e.g.
	// bitfinex's candles/orderbook snapshots) and re-runs the shared
	// raw/embedding bootstrap at a fixed embedding dimension; host.EnsureSchemas
	// runs once more after it so every module's embedding column ends at
	// embedDim.
	for name, c := range collectors {
		if err := c.EnsureSchema(ctx); err != nil {
			logger.Error("collector schema bootstrap failed", zap.String("module", name), zap.Error(err))
		}
	}
	if err := host.EnsureSchemas(ctx, func(string) int { return embedDim }); err != nil {
		logger.Error("schema bootstrap failed", zap.Error(err))
	}

	for _, m := range host.All() {
		c, ok := collectors[m.Name]
		if !ok {
			continue
		}
		manifest := m
		collector := c
		for _, job := range manifest.Jobs {
			budget := 55 * time.Second
			if job.BudgetSeconds > 0 {
				budget = time.Duration(job.BudgetSeconds) * time.Second
			}
			jobName := job.Name
			runFn := collector.RunSweep
			if jobName == "context" {
				runFn = func(ctx context.Context) (map[string]any, error) {
					return collector.RefreshContexts(ctx, 24*time.Hour)
				}
			}
			if err := sched.Register(manifest.Name, jobName, job.Queue, job.Schedule, budget, 1, runFn); err != nil {
				logger.Error("job registration failed", zap.String("module", manifest.Name), zap.String("job", jobName), zap.Error(err))
			}
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── Bus persister ──────────────────────────────────────────────────────
	persister := &bus.Persister{Broker: brk, Store: st, Log: logger}
	go func() {
		if err := persister.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("bus persister stopped", zap.Error(err))
		}
	}()

	// ── HTTP server ────────────────────────────────────────────────────────
	bridge := &bus.LiveBridge{Broker: brk, Log: logger}
	srv := httpapi.New(host, settingsRegistry, sched, st, bridge, logger)

	go func() {
		addr := envOr("FEED_HTTP_ADDR", ":8080")
		logger.Info("feedeater HTTP server listening", zap.String("addr", addr))
		if err := srv.Echo.Start(addr); err != nil {
			logger.Info("HTTP server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
}
