package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/goals"
	apphttp "fintrack/internal/http"
	"fintrack/internal/insights"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/query"
	"fintrack/internal/services"
	"fintrack/internal/textgen"
)

const (
	shutdownTimeout    = 30 * time.Second
	insightCacheSize   = 128
	cacheSweepEvery    = time.Minute
	inferencePerMinute = 30
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	// Setup structured logging
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, nil)

	m := metrics.New()
	caches := cache.NewManager()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ledgerOpts := []services.Option{
		services.WithPublisher(res.Publisher),
		services.WithMetrics(m),
		services.WithLogger(logger.WithComponent(log.ComponentLedger)),
	}
	if res.Cleanup != nil {
		ledgerOpts = append(ledgerOpts, services.WithCloser(res.Cleanup))
	}
	ledgerSvc := services.NewLedgerService(res.Store, ledgerOpts...)

	engine := analytics.NewEngine()
	generator := newInsightGenerator(cfg, engine, m, caches, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:            ledgerSvc,
		Goals:             goals.NewService(res.Store, goals.WithLogger(logger.WithComponent(log.ComponentLedger))),
		Engine:            engine,
		Insights:          generator,
		Query:             query.NewInterpreter(engine),
		Metrics:           m,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	caches.StartCleanup(cacheSweepEvery)

	// Graceful shutdown handling
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		for name, st := range caches.Stats() {
			logger.Info("Cache statistics", "cache", name, "hits", st.Hits, "misses", st.Misses, "entries", st.Entries)
		}
		if err := ledgerSvc.Close(); err != nil {
			logger.Error("Ledger shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"external_insights", generator.External())
	if err := srv.ListenAndServe(); err != nil && !apphttp.IsServerClosed(err) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newInsightGenerator enables hosted text generation when a key is set,
// memoising answers for INSIGHT_CACHE_TTL.
func newInsightGenerator(cfg *config.Config, engine *analytics.Engine, m *metrics.Metrics, caches *cache.Manager, logger *log.Logger) *insights.Generator {
	opts := []insights.Option{
		insights.WithTimeout(cfg.InferenceTimeout),
		insights.WithSampling(cfg.InferenceMaxTokens, cfg.InferenceTemperature),
		insights.WithMetrics(m),
		insights.WithLogger(logger.WithComponent(log.ComponentInsights)),
	}
	if !cfg.ExternalInsightsEnabled() {
		logger.Info("External insights disabled - no INFERENCE_API_KEY provided")
		return insights.NewGenerator(engine, opts...)
	}

	client, err := textgen.NewClient(textgen.Config{
		BaseURL:           cfg.InferenceURL,
		Model:             cfg.InferenceModel,
		APIKey:            cfg.InferenceAPIKey,
		Timeout:           cfg.InferenceTimeout,
		RequestsPerMinute: inferencePerMinute,
	})
	if err != nil {
		logger.Warn("Failed to initialize inference client, using local insights", log.FieldError, err)
		return insights.NewGenerator(engine, opts...)
	}

	var tg insights.TextGenerator = client
	if cfg.InsightCacheTTL > 0 {
		lru := cache.NewLRUCache[string](insightCacheSize, cfg.InsightCacheTTL)
		caches.Register("insights", lru)
		tg = insights.NewCachingTextGenerator(client, lru, m)
	}
	logger.Info("External insights enabled", "endpoint", client.Endpoint(), "cache_ttl", cfg.InsightCacheTTL)

	return insights.NewGenerator(engine, append(opts, insights.WithTextGenerator(tg))...)
}
