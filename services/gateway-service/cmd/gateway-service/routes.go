package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/workgate/agenda/libs/auth"
	"github.com/workgate/agenda/libs/config"
	"github.com/workgate/agenda/libs/httpx"
)

type upstreams struct {
	Scheduling   *url.URL
	Notification *url.URL
}

func upstreamsFromEnv() (upstreams, error) {
	scheduling, err := url.Parse(config.String("SCHEDULING_URL", "http://scheduling-service:8080"))
	if err != nil {
		return upstreams{}, err
	}
	notification, err := url.Parse(config.String("NOTIFICATION_URL", "http://notification-service:8085"))
	if err != nil {
		return upstreams{}, err
	}
	return upstreams{Scheduling: scheduling, Notification: notification}, nil
}

// registerRoutes forwards the public API unauthenticated and rejects owner
// requests without a valid owner token before they reach a service. Services
// verify the token again.
func registerRoutes(mux *http.ServeMux, up upstreams, jwtSecret string, logger *slog.Logger) {
	scheduling := newProxy(up.Scheduling, logger)
	notification := newProxy(up.Notification, logger)
	owner := auth.RequireOwner(jwtSecret)

	registerProxy(mux, "/api/v1/public", scheduling)
	registerProxy(mux, "/api/v1/appointments", owner(scheduling))
	registerProxy(mux, "/api/v1/work-hours", owner(scheduling))
	registerProxy(mux, "/api/v1/reports", owner(scheduling))
	registerProxy(mux, "/api/v1/push-token", owner(scheduling))
	registerProxy(mux, "/api/v1/notifications", owner(notification))
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		if id := httpx.RequestIDFromContext(r.Context()); id != "" {
			r.Header.Set("X-Request-Id", id)
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "err", err, "upstream", target.Host, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// upstreamReady probes the service's /healthz.
func upstreamReady(target *url.URL) func(context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	healthURL := target.JoinPath("/healthz").String()
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s healthz returned %d", target.Host, resp.StatusCode)
		}
		return nil
	}
}
