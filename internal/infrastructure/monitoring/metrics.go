package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics emitted by the key management
// service.
type Metrics struct {
	MintRequests    *prometheus.CounterVec
	MintLatency     *prometheus.HistogramVec
	CryptoOps       *prometheus.CounterVec
	CryptoOpLatency *prometheus.HistogramVec
	CacheAccesses   *prometheus.CounterVec
}

// NewMetrics creates and registers the Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MintRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckms_mint_requests_total",
				Help: "Total number of key mint attempts.",
			},
			[]string{"application_id", "result"},
		),
		MintLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ckms_mint_latency_seconds",
				Help:    "Latency of key mint operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"application_id"},
		),
		CryptoOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckms_crypto_operations_total",
				Help: "Total number of cryptographic operations by kind and result.",
			},
			[]string{"operation", "result"},
		),
		CryptoOpLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ckms_crypto_operation_latency_seconds",
				Help:    "Latency of cryptographic operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheAccesses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckms_cache_accesses_total",
				Help: "Total number of cache accesses by type and outcome.",
			},
			[]string{"cache_type", "outcome"},
		),
	}
}

// RecordMint records the outcome and latency of a mint attempt.
func (m *Metrics) RecordMint(applicationID string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.MintRequests.WithLabelValues(applicationID, result).Inc()
	m.MintLatency.WithLabelValues(applicationID).Observe(duration.Seconds())
}

// RecordCryptoOp records the outcome and latency of an encrypt, decrypt,
// sign, or verify call.
func (m *Metrics) RecordCryptoOp(operation string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.CryptoOps.WithLabelValues(operation, result).Inc()
	m.CryptoOpLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheAccess records a public-key cache hit or miss.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheAccesses.WithLabelValues(cacheType, outcome).Inc()
}
