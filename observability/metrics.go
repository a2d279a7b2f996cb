package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type settlementMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	throttles    *prometheus.CounterVec
	settledValue *prometheus.CounterVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *settlementMetrics
)

// SettlementMetrics returns the lazily-initialised registry used to
// record JSON-RPC settlement activity.
func SettlementMetrics() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agora",
				Subsystem: "settlement",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agora",
				Subsystem: "settlement",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "agora",
				Subsystem: "settlement",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agora",
				Subsystem: "settlement",
				Name:      "throttles_total",
				Help:      "Requests rejected by per-source rate limiting.",
			}, []string{"module"}),
			settledValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "agora",
				Subsystem: "settlement",
				Name:      "settled_value_total",
				Help:      "Cumulative value moved by completed settlements per module and asset.",
			}, []string{"module", "asset"}),
		}
		prometheus.MustRegister(
			settlementRegistry.requests,
			settlementRegistry.errors,
			settlementRegistry.latency,
			settlementRegistry.throttles,
			settlementRegistry.settledValue,
		)
	})
	return settlementRegistry
}

// Observe records one handled request and its latency.
func (m *settlementMetrics) Observe(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// ObserveError counts a failed request by JSON-RPC error code.
func (m *settlementMetrics) ObserveError(module, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(module, method, code).Inc()
}

// ObserveThrottle counts a rate-limited request.
func (m *settlementMetrics) ObserveThrottle(module string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(module).Inc()
}

// ObserveSettledValue accumulates the amount moved by a completed
// settlement. Values too large for a float64 are clamped.
func (m *settlementMetrics) ObserveSettledValue(module, asset string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.settledValue.WithLabelValues(module, asset).Add(value)
}
