package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	orderOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_order_operations_total",
			Help: "Order submissions and revisions by outcome code",
		},
		[]string{"op", "outcome"},
	)

	txRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_tx_retries_total",
			Help: "Transactions re-run after a serialization conflict",
		},
		[]string{"op"},
	)

	paymentUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_payment_updates_total",
			Help: "Payment ledger writes by resulting status",
		},
		[]string{"status"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_events_published_total",
			Help: "Domain events handed to the broker",
		},
		[]string{"topic", "result"},
	)

	auditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_audit_events_total",
			Help: "Events processed by the audit consumer",
		},
		[]string{"event_type", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(orderOperationsTotal)
	prometheus.MustRegister(txRetriesTotal)
	prometheus.MustRegister(paymentUpdatesTotal)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(auditEventsTotal)
}

// Metrics records request counts and latency keyed by the chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordOrderOutcome(op, outcome string) {
	orderOperationsTotal.WithLabelValues(op, outcome).Inc()
}

func RecordTxRetry(op string) {
	txRetriesTotal.WithLabelValues(op).Inc()
}

func RecordPaymentUpdate(status string) {
	paymentUpdatesTotal.WithLabelValues(status).Inc()
}

func RecordEventPublished(topic, result string) {
	eventsPublishedTotal.WithLabelValues(topic, result).Inc()
}

func RecordAuditEvent(eventType, result string) {
	auditEventsTotal.WithLabelValues(eventType, result).Inc()
}
