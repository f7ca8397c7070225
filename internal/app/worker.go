package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ratewatch/ratewatch/internal/cache"
	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/event"
	"github.com/ratewatch/ratewatch/internal/repository/postgres"
	"github.com/ratewatch/ratewatch/pkg/database"
	"github.com/ratewatch/ratewatch/pkg/health"
	pkgkafka "github.com/ratewatch/ratewatch/pkg/kafka"
)

// Worker drains the currency create queue: it persists tasks, keeps the cache
// coherent, and emits broadcast notifications. A small HTTP endpoint exposes
// health and metrics.
type Worker struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	consumer   *pkgkafka.Consumer
	httpServer *http.Server
}

// NewWorker creates a new worker instance. The server applies schema
// migrations; the worker assumes the schema is in place.
func NewWorker(cfg *config.Config, logger *slog.Logger) (*Worker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	pool, err := newPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	database.RegisterPoolMetrics(pool, "ratewatch-worker")

	currencyRepo := postgres.NewCurrencyRepository(pool)
	currencyCache := cache.NewCurrencyCache(redisClient, cfg.CacheTTL, logger)
	eventProducer := event.NewProducer(kafkaProducer, event.SourceWorker, logger)

	taskHandler := event.NewTaskHandler(currencyRepo, currencyCache, eventProducer, logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	consumer := event.NewTaskConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, taskHandler, logger).WithDLQ(dlq)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return kafkaProducer.Ping(ctx)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", healthHandler.LivenessHandler())
	mux.HandleFunc("/health/ready", healthHandler.ReadinessHandler())
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.WorkerHTTPPort),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return &Worker{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   kafkaProducer,
		dlq:        dlq,
		consumer:   consumer,
		httpServer: httpServer,
	}, nil
}

// Run starts the queue consumer and the health endpoint, then blocks until
// the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		w.logger.Info("starting task consumer",
			slog.String("group", w.cfg.KafkaConsumerGroup),
			slog.String("topic", event.TopicCurrencyCreate),
		)
		if err := w.consumer.Start(ctx); err != nil {
			w.logger.Error("task consumer error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		w.logger.Info("starting worker HTTP endpoint", slog.String("addr", w.httpServer.Addr))
		if err := w.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("worker http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return w.Shutdown()
}

// Shutdown gracefully stops all components. The consumer stops first so no
// task is half-processed when the stores go away.
func (w *Worker) Shutdown() error {
	w.logger.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.consumer.Close(); err != nil {
		w.logger.Error("task consumer close error", slog.String("error", err.Error()))
	}

	if err := w.httpServer.Shutdown(shutdownCtx); err != nil {
		w.logger.Error("worker http shutdown error", slog.String("error", err.Error()))
	}

	if err := w.dlq.Close(); err != nil {
		w.logger.Error("dlq producer close error", slog.String("error", err.Error()))
	}

	if err := w.producer.Close(); err != nil {
		w.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := w.redis.Close(); err != nil {
		w.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	w.pool.Close()

	w.logger.Info("worker shutdown complete")
	return nil
}
