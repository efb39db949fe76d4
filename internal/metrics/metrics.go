// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts trade requests by final status.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghe_trades_total",
		Help: "Total number of trade requests, by final transaction status",
	}, []string{"status"})

	// SettlementLatency tracks wall time of the settlement step.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghe_settlement_latency_seconds",
		Help:    "Settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TradeVolume tracks settled value moved between wallets, per item.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghe_trade_volume_total",
		Help: "Cumulative settled trade value",
	}, []string{"item"})

	// PurchaseLimitRejections counts trades rejected by the purchase limiter.
	PurchaseLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghe_purchase_limit_rejections_total",
		Help: "Trades rejected by the purchase limiter",
	})

	// OnlineUsers tracks users currently connected to the presence hub.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghe_online_users",
		Help: "Number of users connected to the presence hub",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghe_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghe_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
