package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/workgate/agenda/libs/config"
	"github.com/workgate/agenda/libs/httpx"
	"github.com/workgate/agenda/libs/metrics"
	otelx "github.com/workgate/agenda/libs/otel"
	"github.com/workgate/agenda/libs/runtime"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		runtime.NewLogger("gateway-service").Warn("load .env failed", "err", err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)
	port, err := config.Port("PORT", "8000")
	if err != nil {
		logger.Error("invalid port", "err", err)
		os.Exit(1)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Error("missing config", "err", err)
		os.Exit(1)
	}
	up, err := upstreamsFromEnv()
	if err != nil {
		logger.Error("invalid upstream url", "err", err)
		os.Exit(1)
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

	checks := []runtime.ReadyCheck{
		{Name: "scheduling", Check: upstreamReady(up.Scheduling)},
		{Name: "notification", Check: upstreamReady(up.Notification)},
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	rateLimitMW := httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, "edge", config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler())
	registerRoutes(mux, up, jwtSecret, logger)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.Middleware,
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second))
}
