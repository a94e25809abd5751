package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vsrepair/booking-service/internal/booking"
	"vsrepair/booking-service/internal/cache"
	"vsrepair/booking-service/internal/catalog"
	"vsrepair/booking-service/internal/config"
	"vsrepair/booking-service/internal/events"
	"vsrepair/booking-service/internal/httpapi"
	"vsrepair/booking-service/internal/logger"
	"vsrepair/booking-service/internal/notify"
	"vsrepair/booking-service/internal/store"
	"vsrepair/booking-service/internal/store/memory"
	"vsrepair/booking-service/internal/store/postgres"
	"vsrepair/booking-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "booking-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, log)

	st, cat, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store setup failed", zap.Error(err))
	}
	defer closeStore()

	var bookingCache cache.Cache = cache.Nop{}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisCache := cache.NewRedisCache(client, serviceName, cfg.CacheTTL())
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unreachable, reads will fall through to the store", zap.Error(err))
		}
		defer func() { _ = redisCache.Close() }()
		bookingCache = redisCache
	}

	svc := booking.NewService(st, cat, bookingCache, log)
	if cfg.AdminIdentity != "" {
		if err := svc.BootstrapAdmin(ctx, cfg.AdminIdentity, cfg.AdminToken, 0); err != nil {
			log.Fatal("admin bootstrap failed", zap.Error(err))
		}
	}

	worker, closeWorker, err := newRelay(ctx, cfg, st, log)
	if err != nil {
		log.Fatal("outbox relay setup failed", zap.Error(err))
	}
	defer closeWorker()
	go notify.Start(ctx, cfg.OutboxPollInterval(), worker)

	handler := httpapi.NewHandler(svc, httpapi.Options{Logger: log})
	limiter, err := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		BookingPerMinute: cfg.BookingRateLimitPerMinute,
		BookingBurst:     cfg.BookingRateLimitBurst,
		TrustedProxies:   cfg.TrustedProxyList(),
	})
	if err != nil {
		log.Fatal("rate limiter setup failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(limiter.Middleware(handler.Routes()), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("booking-service listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}
}

// openStore connects to Postgres when DB_DSN is set and falls back to the
// in-memory store with the embedded catalog otherwise.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, *catalog.Catalog, func(), error) {
	if cfg.DBDSN == "" {
		log.Warn("DB_DSN not set, using the in-memory store")
		cat, err := catalog.FromSeed()
		if err != nil {
			return nil, nil, nil, err
		}
		return memory.New(), cat, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.DBMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("db migrate: %w", err)
		}
	}

	repo := postgres.NewCatalogRepoFromPool(pool)
	cat, err := repo.LoadCatalog(ctx)
	if err != nil {
		_ = repo.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	closeFn := func() {
		_ = repo.Close()
		pool.Close()
	}
	return postgres.NewStore(pool), cat, closeFn, nil
}

func newRelay(ctx context.Context, cfg config.Config, st store.OutboxStore, log *zap.Logger) (*notify.Worker, func(), error) {
	var publisher events.Publisher = events.Nop{}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: brokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, nil, err
		}
		publisher = kafkaPublisher
	}

	providerCfg := notify.ProviderConfig{Region: cfg.AWSRegion, EmailFrom: cfg.NotifyEmailFrom}
	email, err := notify.NewProvider(ctx, cfg.NotifyEmailProvider, notify.ChannelEmail, providerCfg, log)
	if err != nil {
		return nil, nil, err
	}
	sms, err := notify.NewProvider(ctx, cfg.NotifySMSProvider, notify.ChannelSMS, providerCfg, log)
	if err != nil {
		return nil, nil, err
	}

	worker := notify.New(st, publisher, email, sms, notify.Config{
		BatchSize:   cfg.OutboxBatchSize,
		ShopEmail:   cfg.NotifyEmailTo,
		CountryCode: cfg.NotifySMSCountryCode,
	}, log.Named("relay"))
	return worker, func() { _ = publisher.Close() }, nil
}
