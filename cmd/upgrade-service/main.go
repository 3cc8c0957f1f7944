package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/config"
	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest"
	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest/handlers"
	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest/middleware"
	"github.com/giantcranberry/Newsworthy-sub000/internal/catalog"
	"github.com/giantcranberry/Newsworthy-sub000/internal/checkout"
	"github.com/giantcranberry/Newsworthy-sub000/internal/events"
	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/internal/metrics"
	"github.com/giantcranberry/Newsworthy-sub000/internal/migrations"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository/postgres"
	"github.com/giantcranberry/Newsworthy-sub000/internal/service"
	"github.com/giantcranberry/Newsworthy-sub000/internal/session"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := initLogger(cfg.Logging)
	defer func() { _ = log.Sync() }()

	log.Infow("Upgrade service starting up", "env", cfg.App.Env)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecks := make(map[string]handlers.HealthCheckFunc)

	// Хранилище: PostgreSQL, без него память процесса
	var store repository.Store
	conn, err := postgres.NewConnection(ctx, cfg.Database, log.Named("postgres"))
	if err != nil {
		if cfg.IsProduction() {
			log.Fatalw("Failed to connect to database", "error", err)
		}
		log.Warnw("Database unavailable, using in-memory store", "error", err)
		store = repository.NewInMemoryStore(log.Named("memory"))
	} else {
		defer conn.Close()
		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(conn.DB.DB, log.Named("migrations")); err != nil {
				log.Fatalw("Failed to apply migrations", "error", err)
			}
		}
		store = postgres.NewStore(conn.DB, log.Named("postgres"))
		healthChecks["postgres"] = func(ctx context.Context) error { return conn.Pool.Ping(ctx) }
	}

	// Redis: кеш каталога для витрины и сессии корзины
	var carts session.CartStore
	products := store.Products()
	redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.Named("redis"))
	if err != nil {
		log.Warnw("Redis unavailable, continuing without catalog cache", "error", err)
		carts = session.NewMemoryStore(cfg.Cart.TTL)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Errorw("Error closing Redis connection", "error", err)
			}
		}()
		cache := repository.NewRedisCacheRepository(redisClient, cfg.Redis.CatalogTTL, log.Named("cache"))
		products = repository.NewCachedProductRepository(store.Products(), cache, log.Named("cache"))
		carts = session.NewRedisStore(redisClient, cfg.Cart.TTL, log.Named("session"))
		healthChecks["redis"] = redisPing(redisClient)
	}

	// Kafka: события покупок
	publisher := newPublisher(cfg.Kafka, log.Named("events"))
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Errorw("Error closing Kafka producer", "error", err)
		}
	}()

	// Платежный шлюз
	var gw gateway.Gateway
	if cfg.Stripe.APIKey != "" {
		gw = gateway.NewRetrying(gateway.NewStripeGateway(cfg.Stripe.APIKey, nil, log.Named("stripe")), log.Named("stripe"))
	} else {
		if cfg.IsProduction() {
			log.Fatalw("stripe.api_key is required in production")
		}
		log.Warnw("Stripe API key is not set, using in-process fake gateway")
		gw = gateway.NewFake()
	}

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	upgradeMetrics := metrics.NewUpgradeMetrics(registry, log.Named("metrics"))
	systemMetrics := metrics.NewSystemMetrics(registry, log.Named("metrics"))
	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	upgrades, orch := newUpgrades(store, products, gw, carts, cfg.Stripe.Currency, log,
		checkout.WithPublisher(publisher),
		checkout.WithMetrics(upgradeMetrics),
	)

	router := rest.SetupRouter(rest.Dependencies{
		Upgrades:      upgrades,
		Notifications: orch,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Auth:          newAuth(cfg.Auth, log.Named("auth")),
		Registry:      registry,
		HealthChecks:  healthChecks,
	}, log)

	server := rest.NewServer(router, cfg.Server, log.Named("server"))
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}
	log.Infow("Cleanup finished")
}

// newUpgrades собирает оркестратор и сервис апгрейдов.
// products (возможно кешированный) читает только витрина, суммы оплаты считаются по store.
func newUpgrades(
	store repository.Store,
	products repository.ProductRepository,
	gw gateway.Gateway,
	carts session.CartStore,
	currency string,
	log *logger.Logger,
	opts ...checkout.Option,
) (service.UpgradeService, *checkout.Orchestrator) {
	orch := checkout.New(store, gw, currency, log.Named("checkout"), opts...)
	resolver := catalog.NewResolver(products, store.Releases(), orch.Ledger(), currency)
	return service.NewUpgradeService(store.Releases(), resolver, orch, carts, currency, log.Named("service")), orch
}

func initLogger(cfg config.LoggingConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		return logger.NewProduction(level)
	}
	return logger.New(level)
}

func redisPing(client *redis.Client) handlers.HealthCheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// newPublisher подключается к Kafka. Без брокеров события не публикуются.
func newPublisher(cfg config.KafkaConfig, log *logger.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Warnw("Kafka brokers are not configured, event publishing disabled")
		return events.NopPublisher{}
	}

	eventsCfg := events.NewConfig(cfg.Brokers, cfg.Topic)
	if err := events.EnsureTopic(eventsCfg, 3, log); err != nil {
		log.Warnw("Failed to ensure Kafka topic", "topic", cfg.Topic, "error", err)
	}

	producer, err := events.NewSyncProducer(eventsCfg, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return events.NopPublisher{}
	}
	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return events.NewKafkaPublisher(producer, cfg.Topic, log)
}

// newAuth выбирает JWT, а при отсутствии секрета заголовок X-User-ID для локального запуска
func newAuth(cfg config.AuthConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.JWTSecret == "" {
		log.Warnw("JWT secret is not set, trusting X-User-ID header")
		return middleware.HeaderAuth(log)
	}
	validator := &middleware.DefaultTokenValidator{Secret: []byte(cfg.JWTSecret)}
	return middleware.NewJWTMiddleware(log, validator).RequireAuth()
}
