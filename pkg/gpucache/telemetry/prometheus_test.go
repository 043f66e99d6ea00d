package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/clock"
	"github.com/buildbarn/gpucache/pkg/gpucache/telemetry"
)

// fakeClock is a hand-written clock.Clock whose Now() only advances when
// told to, so a Prometheus timer's recorded duration can be driven
// exactly instead of racing against a real sleep. Matches this module's
// convention (SPEC_FULL.md §1) of hand-written fakes in place of
// generated mocks for interfaces that have none.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	panic("not used by telemetry")
}

func (c *fakeClock) NewTimer(d time.Duration) (clock.Timer, <-chan time.Time) {
	panic("not used by telemetry")
}

func (c *fakeClock) NewTicker(d time.Duration) (clock.Ticker, <-chan time.Time) {
	panic("not used by telemetry")
}

var _ clock.Clock = (*fakeClock)(nil)

func histogramSampleCount(t *testing.T, name string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total uint64
		for _, metric := range family.GetMetric() {
			total += metric.GetHistogram().GetSampleCount()
		}
		return total
	}
	return 0
}

func TestPrometheusPlatformRecordsTimerSampleUsingInjectedClock(t *testing.T) {
	fc := &fakeClock{now: time.Unix(1000, 0)}
	platform := telemetry.NewPrometheusPlatform(fc)

	before := histogramSampleCount(t, "gpucache_cache_request_duration_microseconds")

	timer := platform.NewTimer()
	fc.now = fc.now.Add(250 * time.Microsecond)
	timer.RecordMicroseconds("cache_hit")

	after := histogramSampleCount(t, "gpucache_cache_request_duration_microseconds")
	require.Equal(t, before+1, after)
}

func TestPrometheusPlatformRecordBooleanIncrementsCounter(t *testing.T) {
	fc := &fakeClock{now: time.Unix(0, 0)}
	platform := telemetry.NewPrometheusPlatform(fc)

	platform.RecordBoolean("BlobCacheHashValidationFailed", true)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() != "gpucache_cache_request_boolean_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "name" && label.GetValue() == "BlobCacheHashValidationFailed" {
					found = true
				}
			}
		}
	}
	require.True(t, found)
}
