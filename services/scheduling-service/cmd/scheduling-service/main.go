package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/libs/config"
	"github.com/workgate/agenda/libs/db"
	"github.com/workgate/agenda/libs/events"
	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/libs/inbox"
	"github.com/workgate/agenda/libs/kafkax"
	"github.com/workgate/agenda/libs/metrics"
	otelx "github.com/workgate/agenda/libs/otel"
	"github.com/workgate/agenda/libs/runtime"
	"github.com/workgate/agenda/services/scheduling-service/internal/availability"
	"github.com/workgate/agenda/services/scheduling-service/internal/booking"
	"github.com/workgate/agenda/services/scheduling-service/internal/entitlements"
	"github.com/workgate/agenda/services/scheduling-service/internal/handlers"
	"github.com/workgate/agenda/services/scheduling-service/internal/jobs"
	"github.com/workgate/agenda/services/scheduling-service/internal/notify"
	"github.com/workgate/agenda/services/scheduling-service/internal/outbox"
	"github.com/workgate/agenda/services/scheduling-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("scheduling-service failed", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	loc, err := config.Location("APP_TIMEZONE", "America/Sao_Paulo")
	if err != nil {
		return err
	}
	brokers := config.String("KAFKA_BROKERS", "")

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 1)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		MaxConnIdleTime: config.Duration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	if config.Bool("DB_MIGRATE", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	store := storage.NewStore(pool)
	outboxRepo := outbox.NewRepository(pool)
	notifier := notify.New(outboxRepo, store, logger)

	engine := booking.NewEngine(store, notifier, logger, booking.Config{
		Location:      loc,
		Slots:         availability.SlotOptions{AllowOverrun: config.Bool("SLOT_ALLOW_OVERRUN", false)},
		NotifyTimeout: config.Duration("NOTIFY_TIMEOUT", 10*time.Second),
	})

	if brokers != "" {
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	gate := entitlements.NewGate(store, logger, config.Duration("SUBSCRIPTION_CACHE_TTL", time.Minute))
	if brokers != "" {
		inboxRepo := inbox.NewRepository(pool)
		topics := config.List("KAFKA_BILLING_TOPICS", events.SubscriptionActivated+","+events.SubscriptionCancelled)
		billing := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
			Brokers:     brokers,
			GroupID:     config.String("KAFKA_GROUP_ID", service),
			Topics:      topics,
			MaxAttempts: config.Int("KAFKA_MAX_ATTEMPTS", 5),
			RetryDelay:  config.Duration("KAFKA_RETRY_DELAY", time.Second),
		}, inboxRepo.Handler(gate.EventHandler(logger)))
		go billing.Run(ctx)
	}

	scheduler, err := jobs.New(store, notifier, outboxRepo, logger, jobs.Config{
		AgendaSpec:      config.String("CRON_AGENDA_SPEC", "0 8 * * *"),
		ReminderSpec:    config.String("CRON_REMINDER_SPEC", "0 9 * * *"),
		PruneSpec:       config.String("CRON_OUTBOX_PRUNE_SPEC", "30 3 * * *"),
		OutboxRetention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		Location:        loc,
	})
	if err != nil {
		return err
	}
	scheduler.Start()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	publicLimit := config.Int("RATE_LIMIT_PUBLIC", 60)
	publicWindow := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	publicGuard := httpx.NewRateLimiter(publicLimit, publicWindow).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		limiter := httpx.NewRedisRateLimiter(rdb, publicLimit, publicWindow, "ratelimit:")
		publicGuard = limiter.Middleware(logger, "public", config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}
	requireOwner := auth.RequireOwner(jwtSecret)
	ownerGuard := func(next http.Handler) http.Handler {
		return requireOwner(gate.Require(next))
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler())
	handlers.Register(mux,
		handlers.NewPublicHandler(engine, store, logger),
		handlers.NewOwnerHandler(store, notifier, logger, loc),
		publicGuard,
		ownerGuard,
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.Middleware,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second))

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(drainCtx)
	if err := engine.Drain(drainCtx); err != nil {
		logger.Warn("pending notifications abandoned", "err", err)
	}
	return nil
}
