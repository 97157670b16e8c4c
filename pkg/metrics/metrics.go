// Package metrics exposes harvest progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vkharvest/pkg/logger"
)

// Metrics holds the collectors of one run on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	batches         *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	roundDuration   *prometheus.HistogramVec
	rowsWritten     *prometheus.CounterVec
	purged          *prometheus.CounterVec
	exhausted       *prometheus.GaugeVec
	remaining       *prometheus.GaugeVec
	pass            prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vkharvest_batches_total",
			Help: "Batches sent, labeled by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vkharvest_request_duration_seconds",
			Help:    "Round trip of one procedure call.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"method"}),
		roundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vkharvest_round_duration_seconds",
			Help:    "Wall clock of one round including its commit.",
			Buckets: []float64{5, 15, 30, 60, 90, 120, 180},
		}, []string{"method"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vkharvest_rows_written_total",
			Help: "Identifiers whose results were committed, labeled by method.",
		}, []string{"method"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vkharvest_purged_total",
			Help: "Identifiers purged for re-fetch, labeled by reason.",
		}, []string{"reason"}),
		exhausted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vkharvest_exhausted_credentials",
			Help: "Credentials exhausted for a method in this run.",
		}, []string{"method"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vkharvest_remaining_identifiers",
			Help: "Identifiers left for a method at the last remaining-work query of a worker.",
		}, []string{"method", "worker"}),
		pass: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vkharvest_pass",
			Help: "Current pass number.",
		}),
	}
	m.registry.MustRegister(
		m.batches, m.requestDuration, m.roundDuration, m.rowsWritten,
		m.purged, m.exhausted, m.remaining, m.pass,
	)
	return m
}

// Handler serves the registry in the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.InfoWithFields("exposing prometheus metrics", map[string]interface{}{"address": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Batch counts one batch outcome
func (m *Metrics) Batch(method, outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(method, outcome).Inc()
}

// Request observes one call's round trip
func (m *Metrics) Request(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Round observes a committed round
func (m *Metrics) Round(method string, d time.Duration, written int) {
	if m == nil {
		return
	}
	m.roundDuration.WithLabelValues(method).Observe(d.Seconds())
	m.rowsWritten.WithLabelValues(method).Add(float64(written))
}

// Purged counts identifiers removed for re-fetch
func (m *Metrics) Purged(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.purged.WithLabelValues(reason).Add(float64(n))
}

// Exhausted records one more exhausted credential for method
func (m *Metrics) Exhausted(method string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(method).Inc()
}

// Remaining records a worker's outstanding identifiers for method
func (m *Metrics) Remaining(method, worker string, n int) {
	if m == nil {
		return
	}
	m.remaining.WithLabelValues(method, worker).Set(float64(n))
}

// Pass records the pass number
func (m *Metrics) Pass(n int) {
	if m == nil {
		return
	}
	m.pass.Set(float64(n))
}
