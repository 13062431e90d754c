package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

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
	"github.com/workgate/agenda/services/notification-service/internal/delivery"
	"github.com/workgate/agenda/services/notification-service/internal/email"
	"github.com/workgate/agenda/services/notification-service/internal/handlers"
	"github.com/workgate/agenda/services/notification-service/internal/push"
	"github.com/workgate/agenda/services/notification-service/internal/sms"
	"github.com/workgate/agenda/services/notification-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("notification-service failed", "err", err)
		os.Exit(1)
	}
}

func smsSender(logger *slog.Logger) sms.Sender {
	timeout := config.Duration("SMS_TIMEOUT", 5*time.Second)
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "noop")); provider {
	case "webhook":
		return sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""), timeout)
	case "noop":
		return sms.NewNoopSender()
	default:
		logger.Warn("unknown SMS_PROVIDER; using webhook", "provider", provider)
		return sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""), timeout)
	}
}

func pushSender() push.Sender {
	url := config.String("PUSH_WEBHOOK_URL", "")
	if url == "" {
		return push.NoopSender{}
	}
	return push.NewWebhookSender(url, config.String("PUSH_API_KEY", ""), config.Duration("PUSH_TIMEOUT", 5*time.Second))
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		return err
	}

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
		MaxConns: int32(config.Int("DB_MAX_CONNS", 5)),
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

	attempts := storage.NewRepository(pool)
	dispatcher := delivery.NewDispatcher(delivery.Senders{
		Email: email.NewSMTPSender(email.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.Int("SMTP_PORT", 1025),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     config.String("SMTP_FROM", "no-reply@agenda.local"),
		}),
		SMS:  smsSender(logger),
		Push: pushSender(),
	}, attempts, logger, config.Duration("NOTIFY_SEND_TIMEOUT", 10*time.Second))

	topics := config.List("KAFKA_CONSUME_TOPICS",
		strings.Join([]string{events.AppointmentBooked, events.AgendaDaily, events.ReminderRequested}, ","))
	consumer := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
		Brokers:     brokers,
		GroupID:     config.String("KAFKA_GROUP_ID", service),
		Topics:      topics,
		MaxAttempts: config.Int("KAFKA_MAX_ATTEMPTS", 5),
		RetryDelay:  config.Duration("KAFKA_RETRY_DELAY", time.Second),
	}, inbox.NewRepository(pool).Handler(dispatcher.Handle))
	go consumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", metrics.Handler())
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		list := handlers.NewAttemptsHandler(attempts, logger)
		mux.Handle("/api/v1/notifications", httpx.Chain(
			httpx.MethodHandlers{http.MethodGet: list.List},
			auth.RequireOwner(secret),
		))
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.Middleware,
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second))
	return nil
}
