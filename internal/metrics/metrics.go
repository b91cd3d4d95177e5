// Package metrics exposes Prometheus collectors for daemon observability.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backer",
			Name:      "runs_total",
			Help:      "Number of backup, index, and restore runs by outcome.",
		}, []string{"kind", "filesystem", "status"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "backer",
			Name:      "run_duration_seconds",
			Help:      "Observed wall clock duration of runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"kind", "filesystem"},
	)
	uploadedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backer",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of snapshot stream data shipped to remote stores.",
		}, []string{"filesystem"},
	)
	lastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "backer",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per kind and filesystem.",
		}, []string{"kind", "filesystem"},
	)
	daemonState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "backer",
			Subsystem: "daemon",
			Name:      "state",
			Help:      "Current daemon lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runsTotal, runDuration, uploadedBytes, lastSuccess, daemonState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordRun(kind, filesystem, status string) {
	if regOK.Load() {
		runsTotal.WithLabelValues(kind, filesystem, status).Inc()
	}
}

func ObserveRunDuration(kind, filesystem string, seconds float64) {
	if regOK.Load() {
		runDuration.WithLabelValues(kind, filesystem).Observe(seconds)
	}
}

func AddUploadedBytes(filesystem string, n int64) {
	if regOK.Load() && n > 0 {
		uploadedBytes.WithLabelValues(filesystem).Add(float64(n))
	}
}

func SetLastSuccess(kind, filesystem string, unixSeconds int64) {
	if regOK.Load() {
		lastSuccess.WithLabelValues(kind, filesystem).Set(float64(unixSeconds))
	}
}

func SetDaemonState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		daemonState.WithLabelValues(state).Set(value)
	}
}
