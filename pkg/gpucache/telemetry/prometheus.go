package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildbarn/gpucache/pkg/clock"
	"github.com/buildbarn/gpucache/pkg/util"
)

// Prometheus-backed metrics, following the naming and bucket convention
// of the teacher's pkg/blobstore/metrics_blob_access.go. The duration
// histogram's bucket boundaries are computed with
// util.DecimalExponentialBuckets rather than prometheus.ExponentialBuckets
// so that bucket labels land on short decimal numbers (1, 2.1544, 4.6415,
// 10, ...) instead of powers of an arbitrary base.
var (
	cacheRequestDurationMicroseconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpucache",
			Subsystem: "cache_request",
			Name:      "duration_microseconds",
			Help:      "Amount of time spent per LoadOrRun outcome, in microseconds.",
			Buckets:   util.DecimalExponentialBuckets(0, 7, 2),
		},
		[]string{"name"})
	cacheRequestBooleanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpucache",
			Subsystem: "cache_request",
			Name:      "boolean_total",
			Help:      "Total number of recorded boolean samples, by name and value.",
		},
		[]string{"name", "value"})
)

var registerPrometheusMetricsOnce sync.Once

func registerPrometheusMetrics() {
	registerPrometheusMetricsOnce.Do(func() {
		prometheus.MustRegister(cacheRequestDurationMicroseconds)
		prometheus.MustRegister(cacheRequestBooleanTotal)
	})
}

// prometheusPlatform is a Platform that records timer samples as
// Prometheus histogram observations and boolean samples as labeled
// counters.
type prometheusPlatform struct {
	clock clock.Clock
}

// NewPrometheusPlatform returns a Platform backed by Prometheus metrics
// registered with the default registry, using clk to measure elapsed
// time (pass clock.SystemClock in production; a fake clock in tests).
func NewPrometheusPlatform(clk clock.Clock) Platform {
	registerPrometheusMetrics()
	return &prometheusPlatform{clock: clk}
}

func (p *prometheusPlatform) NewTimer() Timer {
	t := &clockTimer{
		clock: p.clock,
		record: func(name string, microseconds int64) {
			cacheRequestDurationMicroseconds.WithLabelValues(name).Observe(float64(microseconds))
		},
	}
	t.Reset()
	return t
}

func (p *prometheusPlatform) RecordBoolean(name string, value bool) {
	label := "false"
	if value {
		label = "true"
	}
	cacheRequestBooleanTotal.WithLabelValues(name, label).Inc()
}
