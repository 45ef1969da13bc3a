package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ringkv/cluster"
	"ringkv/storage"
)

type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec
	ringNodes       prometheus.Gauge
	primaryKeys     prometheus.Gauge
	replicaKeys     prometheus.Gauge
	rebalancesTotal prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status"}),

		requestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		ringNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ring_nodes_total",
			Help: "Number of nodes currently on the hash ring",
		}),

		primaryKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "store_primary_keys_total",
			Help: "Number of keys in the primary tier",
		}),

		replicaKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "store_replica_keys_total",
			Help: "Number of keys across all replica tiers",
		}),

		rebalancesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rebalances_completed_total",
			Help: "Number of completed rebalance operations",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(labels...).Inc()
}

// UpdateClusterMetrics refreshes the gauges from the live components.
func (m *Metrics) UpdateClusterMetrics(ring *cluster.Ring, store *storage.TieredStore, coordinator *cluster.Coordinator) {
	m.ringNodes.Set(float64(ring.Len()))
	m.primaryKeys.Set(float64(store.PrimarySize()))

	replicaTotal := 0
	for level := 1; level <= store.ReplicaLevels(); level++ {
		replicaTotal += store.ReplicaSize(level)
	}
	m.replicaKeys.Set(float64(replicaTotal))
	m.rebalancesTotal.Set(float64(coordinator.RebalanceCount()))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics for every handled request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.ObserveRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
