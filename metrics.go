package objectstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "objectstore_open_total",
		Help: "Cumulative number of database open handshakes, by outcome.",
	}, []string{"outcome"})
	upgradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "objectstore_upgrades_total",
		Help: "Cumulative number of schema upgrades applied.",
	})
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "objectstore_operations_total",
		Help: "Cumulative number of handle operations, by operation and outcome.",
	}, []string{"op", "outcome"})
	operationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "objectstore_operation_seconds",
		Help:    "Latency of handle operations, including transaction commit.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})
)

// observe records an operation started at start. Call it deferred with a
// pointer to the operation's named error result.
func observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
