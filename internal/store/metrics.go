package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records store activity.
type Metrics struct {
	registry *prometheus.Registry

	queryDuration *prometheus.HistogramVec
	rollbacks     *prometheus.CounterVec
	corruptions   *prometheus.CounterVec
	blocksDeleted prometheus.Counter
}

// NewMetrics creates store metrics registered on reg. A nil reg uses a new
// private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,

		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerdb_query_duration_seconds",
			Help:    "Time spent in store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}, []string{"op"}),

		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdb_rollbacks_total",
			Help: "Structural rollbacks committed, by operation",
		}, []string{"op"}),

		corruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdb_corruption_errors_total",
			Help: "Ledger invariant violations detected, by code",
		}, []string{"code"}),

		blocksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_blocks_deleted_total",
			Help: "Blocks removed by rollbacks",
		}),
	}

	reg.MustRegister(m.queryDuration, m.rollbacks, m.corruptions, m.blocksDeleted)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observe records the duration of op since start.
//
// Usage: defer s.metrics.observe("op", time.Now())
func (m *Metrics) observe(op string, start time.Time) {
	m.queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) rollback(op string, blocks int) {
	m.rollbacks.WithLabelValues(op).Inc()
	m.blocksDeleted.Add(float64(blocks))
}

func (m *Metrics) corruption(code CorruptionCode) {
	m.corruptions.WithLabelValues(string(code)).Inc()
}
