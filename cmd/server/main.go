package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kosarica/deal-service/config"
	"github.com/kosarica/deal-service/internal/aggregator"
	"github.com/kosarica/deal-service/internal/alerts"
	"github.com/kosarica/deal-service/internal/database"
	"github.com/kosarica/deal-service/internal/handlers"
	"github.com/kosarica/deal-service/internal/ledger"
	"github.com/kosarica/deal-service/internal/middleware"
	"github.com/kosarica/deal-service/internal/notify"
	"github.com/kosarica/deal-service/internal/providers"
	"github.com/kosarica/deal-service/internal/subscriptions"
	"github.com/kosarica/deal-service/internal/telemetry"
)

const serviceName = "deal-service"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Info().Msg("Starting deal service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	registry, err := providers.Build(cfg.Providers)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build providers")
	}
	agg := aggregator.New(registry, cfg.Aggregator, logger)
	logger.Info().Strs("providers", agg.Providers()).Msg("Providers registered")

	pingers := map[string]handlers.Pinger{}

	var ledgerStore ledger.Store = ledger.NewMemoryStore()
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid redis URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		ledgerStore = ledger.NewRedisStore(redisClient, cfg.Redis.Prefix, cfg.Redis.TTL)
		pingers["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.Info().Msg("Redis price ledger connected")
	}
	priceLedger := ledger.New(ledgerStore,
		ledger.WithHugeDropThreshold(cfg.Ledger.HugeDropThreshold),
		ledger.WithLogger(logger),
	)

	var subStore subscriptions.Store = subscriptions.NewMemoryStore()
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		subStore = subscriptions.NewPostgresStore(pool)
		pingers["database"] = database.Status
		logger.Info().Msg("Database connected")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, subscriptions are kept in memory")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	var kafkaNotifier *notify.KafkaNotifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier, err = notify.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create kafka notifier")
		}
		notifier = kafkaNotifier
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka notifier configured")
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Dispatcher, logger)
	dispatcher.Start(ctx)

	engine := alerts.NewEngine(subStore, agg, dispatcher,
		alerts.WithLedger(priceLedger),
		alerts.WithLogger(logger),
	)

	var scheduler *alerts.Scheduler
	if cfg.Alerts.Enabled {
		scheduler = alerts.NewScheduler(engine, cfg.Alerts.Interval, logger)
		go scheduler.Start(ctx)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	api := handlers.NewAPI(handlers.Deps{
		Searcher:    agg,
		Ledger:      priceLedger,
		Engine:      engine,
		Submitter:   dispatcher,
		Logger:      logger,
		Pingers:     pingers,
		BaseContext: ctx,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	publicLimit := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimit.RequestsPerSecond > 0 {
		publicLimit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		publicLimit.BurstSize = cfg.RateLimit.Burst
	}
	handlers.RegisterRoutes(router, api,
		[]gin.HandlerFunc{middleware.RateLimitMiddleware(publicLimit)},
		middleware.InternalAuthMiddleware(cfg.Internal.APIKey),
		middleware.ServiceRateLimitMiddleware(cfg.Internal.RequestsPerSecond, cfg.Internal.Burst),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// queued alerts are drained before the transports close
	dispatcher.Stop()
	cancel()

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close kafka writer")
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis client")
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", serviceName).Logger()
	return &logger
}
