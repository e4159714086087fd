package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inso_txpool"

// Metrics exposes Prometheus metrics for the txpool node. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequests  *prometheus.CounterVec
	rpcErrors    *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	rateLimited  prometheus.Counter
	poolRejected *prometheus.CounterVec
	wsClients    prometheus.Gauge

	started time.Time
	logger  log.Logger
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method.",
		}, []string{"method"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "JSON-RPC errors by method and error kind.",
		}, []string{"method", "kind"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "JSON-RPC handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		poolRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_rejected_total",
			Help:      "Transactions rejected by the pool, by reason.",
		}, []string{"reason"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
		started: time.Now(),
		logger:  log.New("module", "metrics"),
	}
	m.registry.MustRegister(
		m.rpcRequests,
		m.rpcErrors,
		m.rpcDuration,
		m.rateLimited,
		m.poolRejected,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterPool exports pending and queued pool sizes, read from stats at
// scrape time.
func (m *Metrics) RegisterPool(stats func() (pending, queued int)) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_pending",
			Help:      "Pending transactions in the pool.",
		}, func() float64 {
			pending, _ := stats()
			return float64(pending)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queued",
			Help:      "Queued transactions in the pool.",
		}, func() float64 {
			_, queued := stats()
			return float64(queued)
		}),
	)
}

// ObserveRequest records one handled request. kind is empty on success.
func (m *Metrics) ObserveRequest(method string, took time.Duration, kind string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(took.Seconds())
	if kind != "" {
		m.rpcErrors.WithLabelValues(method, kind).Inc()
	}
}

// RateLimited records a request dropped by the limiter.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// PoolRejected records a transaction refused by the pool.
func (m *Metrics) PoolRejected(reason string) {
	if m == nil {
		return
	}
	m.poolRejected.WithLabelValues(reason).Inc()
}

// WSClients adjusts the connected WebSocket client gauge by delta.
func (m *Metrics) WSClients(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}

// Handler returns the /metrics and /health routes.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"service":   "inso-txpool",
			"uptime":    time.Since(m.started).Round(time.Second).String(),
			"timestamp": time.Now().Unix(),
		})
	})
	return r
}

// Serve runs the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      m.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	m.logger.Info("Metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
