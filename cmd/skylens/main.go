package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skylens/skylens/internal/analysis"
	"github.com/skylens/skylens/internal/bsky"
	"github.com/skylens/skylens/internal/cache"
	"github.com/skylens/skylens/internal/config"
	"github.com/skylens/skylens/internal/health"
	"github.com/skylens/skylens/internal/metrics"
	"github.com/skylens/skylens/internal/retry"
	"github.com/skylens/skylens/internal/server"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("ENVIRONMENT") == "" {
		// .env is a development convenience; missing file is fine.
		_ = godotenv.Load()
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("api_base_url", cfg.APIBaseURL).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("starting skylens")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Redis-backed follow cache. Startup blocks until Redis answers.
	var store cache.Store
	err = retry.Always(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		redisStore, rerr := cache.NewRedisStore(ctx, cfg.RedisURL, logger)
		if rerr != nil {
			return rerr
		}
		store = redisStore
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("failed to connect to redis")
	}
	defer store.Close()

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("redis", func(ctx context.Context) health.Status {
		if err := store.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Metrics
	metricsCollector := metrics.New()

	// Graph client with shared rate limiter and two-level cache
	followsCache := cache.NewFollowsCache(store, cfg.CacheTTL, cfg.LRUSize, logger)
	client := bsky.NewClient(bsky.ClientConfig{
		BaseURL:      cfg.APIBaseURL,
		PageLimit:    cfg.PageLimit,
		RateLimitRPS: cfg.RateLimitRPS,
	}, followsCache, metricsCollector, logger)

	// Analysis engine: session registry, expansion workers, snapshot streams
	registry := analysis.NewRegistry(cfg.SweepInterval, metricsCollector, logger)
	engine := analysis.NewEngine(analysis.Config{
		BatchSize:       cfg.BatchSize,
		MaxWorkers:      cfg.MaxWorkers,
		RoundDelay:      cfg.RoundDelay,
		StreamInterval:  cfg.StreamInterval,
		EnrichFollowers: cfg.EnrichFollowers,
		EnrichWorkers:   cfg.EnrichWorkers,
	}, registry, client, metricsCollector, logger)
	engine.Start(ctx)

	// HTTP server
	srv := server.NewServer(server.Config{
		Port:        cfg.HTTPPort,
		CORSOrigins: cfg.CORSOrigins,
	}, engine, checker, metricsCollector, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("skylens stopped")
}
