package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/workgate/agenda/libs/httpx"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenda_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_bookings_total",
			Help: "Booking attempts by outcome (committed or a rejection reason).",
		},
		[]string{"outcome"},
	)

	SlotsServed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agenda_available_slots",
			Help:    "Number of free slots returned per availability query.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_outbox_published_total",
			Help: "Outbox events shipped to Kafka by event type.",
		},
		[]string{"event_type"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_notifications_total",
			Help: "Notification deliveries by channel and status.",
		},
		[]string{"channel", "status"},
	)
)

// Middleware records request counts and latency. Agenda routes carry ids in
// query strings, so paths are bounded; 404s are folded into one label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &httpx.StatusRecorder{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		status := sw.Status
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if status == http.StatusNotFound {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
