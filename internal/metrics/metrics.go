// Package metrics provides Prometheus instrumentation for the skillswap
// service. It exposes gauges for connected sockets and users, counters for
// chat throughput and match transitions, and histograms for latency tracking.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_connections_total",
		Help: "Current number of open WebSocket connections",
	})

	// OnlineUsers tracks users with at least one open connection on this node.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_online_users",
		Help: "Users with at least one open connection on this node",
	})

	// MessagesTotal counts chat messages, labeled by outcome: "sent",
	// "delivered", "rejected" or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// MessageLatency records the time from chat:send receipt to fan-out.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skillswap_message_latency_seconds",
		Help:    "Chat send processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MatchTransitions counts negotiations entering each status.
	MatchTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_match_transitions_total",
		Help: "Match negotiations entering each status",
	}, []string{"status"})

	// RateLimited counts requests refused by the rate limiter, by rule.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_rate_limited_total",
		Help: "Requests refused by the rate limiter",
	}, []string{"rule"})

	// HTTPDuration records HTTP handler latency by route and status code.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skillswap_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		MessageLatency,
		MatchTransitions,
		RateLimited,
		HTTPDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps next so that every request is observed in HTTPDuration
// under the given route label.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
