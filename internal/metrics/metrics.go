// Package metrics provides Prometheus instrumentation for the session store.
// It exposes counters and histograms for store operations, identifier
// collisions and the expired-record sweep.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/whisper/pgsession/internal/session"
)

var (
	// StoreOperationsTotal counts store operations labeled by op and outcome.
	// outcome is "ok" or the error kind ("pool", "backend", "decode", ...).
	StoreOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgsession_store_operations_total",
		Help: "Total number of session store operations",
	}, []string{"op", "outcome"})

	// StoreOperationDuration records store operation latency in seconds.
	StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pgsession_store_operation_duration_seconds",
		Help:    "Session store operation latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"})

	// CreateIDCollisions counts identifiers regenerated during create.
	CreateIDCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgsession_create_id_collisions_total",
		Help: "Session identifiers regenerated because the candidate was taken",
	})

	// SweepPurgedTotal counts expired records removed by the sweeper.
	SweepPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgsession_sweep_purged_total",
		Help: "Total number of expired session records purged",
	})

	// SweepDuration records the time spent in one sweep.
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pgsession_sweep_duration_seconds",
		Help:    "Expired session sweep duration in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// SweepLastSuccess is the unix time of the last successful sweep.
	SweepLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pgsession_sweep_last_success_timestamp_seconds",
		Help: "Unix time of the last successful expired session sweep",
	})

	// SweepSkippedTotal counts sweeps skipped because another instance held the lock.
	SweepSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgsession_sweep_skipped_total",
		Help: "Sweeps skipped because another instance held the sweep lock",
	})
)

func init() {
	prometheus.MustRegister(
		StoreOperationsTotal,
		StoreOperationDuration,
		CreateIDCollisions,
		SweepPurgedTotal,
		SweepDuration,
		SweepLastSuccess,
		SweepSkippedTotal,
	)
}

// ObserveStoreOp records the outcome and latency of a store operation that
// started at start. Meant to be deferred with a pointer to the named error
// result.
func ObserveStoreOp(op string, start time.Time, errp *error) {
	StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	StoreOperationsTotal.WithLabelValues(op, Outcome(*errp)).Inc()
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var se *session.Error
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	return "error"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
