package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ratewatch/ratewatch/internal/auth"
	"github.com/ratewatch/ratewatch/internal/broadcast"
	"github.com/ratewatch/ratewatch/internal/cache"
	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/event"
	handler "github.com/ratewatch/ratewatch/internal/handler/http"
	"github.com/ratewatch/ratewatch/internal/repository/postgres"
	"github.com/ratewatch/ratewatch/internal/service"
	"github.com/ratewatch/ratewatch/migrations"
	"github.com/ratewatch/ratewatch/pkg/database"
	"github.com/ratewatch/ratewatch/pkg/health"
	pkgkafka "github.com/ratewatch/ratewatch/pkg/kafka"
)

const initTimeout = 10 * time.Second

// App wires together all server dependencies: the HTTP API, the broadcast
// relay consumer, and their backing stores.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	relay      *pkgkafka.Consumer
	hub        *broadcast.Hub
	httpServer *http.Server
}

// NewApp creates a new server instance, initializing all dependencies and
// applying pending schema migrations.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	pool, err := newPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
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
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	database.RegisterPoolMetrics(pool, "ratewatch")

	// Build the dependency graph.
	currencyRepo := postgres.NewCurrencyRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	currencyCache := cache.NewCurrencyCache(redisClient, cfg.CacheTTL, logger)
	eventProducer := event.NewProducer(kafkaProducer, event.SourceServer, logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)
	throttle := auth.NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginCooldown)
	ledger := auth.NewRevocationLedger()

	authService := service.NewAuthService(userRepo, jwtManager, throttle, ledger, cfg.RequestTimeout, logger)
	currencyService := service.NewCurrencyService(currencyRepo, currencyCache, eventProducer, eventProducer, cfg.RequestTimeout, logger)

	// Broadcast hub plus the relay consumer that feeds it from the notify
	// topic.
	hub := broadcast.NewHub(logger)
	relay := event.NewRelayConsumer(cfg.KafkaBrokers, event.NewRelayHandler(hub, logger), logger)

	// Health checks.
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

	router := handler.NewRouter(authService, currencyService, hub, healthHandler, logger, handler.RouterConfig{
		CORS: handler.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		AuthRateRPS:   cfg.AuthRateLimitRPS,
		AuthRateBurst: cfg.AuthRateLimitBurst,
	})

	// No WriteTimeout: the event stream endpoint holds connections open
	// indefinitely. Streams are cut at shutdown via hub.Close.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   kafkaProducer,
		relay:      relay,
		hub:        hub,
		httpServer: httpServer,
	}, nil
}

func newPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	return pool, nil
}

// Run starts the HTTP server and the relay consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := a.relay.Start(ctx); err != nil {
			a.logger.Error("relay consumer error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components: the HTTP server first so no new
// requests arrive, then the event stream hub, the relay consumer, the
// producer, and finally the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Disconnect event stream subscribers so Shutdown is not held open by
	// long-lived connections.
	a.hub.Close()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.relay.Close(); err != nil {
		a.logger.Error("relay consumer close error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	a.logger.Info("server shutdown complete")
	return nil
}
