// Package telemetry provides the timer/histogram platform consumed by
// cacherequest.LoadOrRun (spec.md §6: "a platform object offering timer
// start/reset/record-microseconds-under-name, and a named boolean
// histogram record"). Both the timer and the platform may be nil; all
// call sites in this module treat that as "no telemetry configured" and
// skip the call, matching the reference design.
package telemetry

import (
	"time"

	"github.com/buildbarn/gpucache/pkg/clock"
)

// Timer measures elapsed time from its own construction (or last Reset)
// to the moment a named sample is recorded.
type Timer interface {
	// Reset restarts the timer's clock, discarding any elapsed time so
	// far. Used by LoadOrRun when falling through from a cache hit
	// attempt to the miss path, so that the recorded "cache miss"
	// duration doesn't include time spent probing the cache.
	Reset()
	// RecordMicroseconds records the elapsed time since construction or
	// the last Reset, in microseconds, under the given metric name.
	RecordMicroseconds(name string)
}

// Platform is the telemetry surface LoadOrRun uses to report timing and
// boolean outcomes. BlobCache itself records no telemetry.
type Platform interface {
	// NewTimer returns a Timer that starts measuring immediately.
	NewTimer() Timer
	// RecordBoolean records a single boolean sample under a named
	// histogram, e.g. "BlobCacheHashValidationFailed".
	RecordBoolean(name string, value bool)
}

type noopTimer struct{}

func (noopTimer) Reset()                    {}
func (noopTimer) RecordMicroseconds(string) {}

type noopPlatform struct{}

func (noopPlatform) NewTimer() Timer                  { return noopTimer{} }
func (noopPlatform) RecordBoolean(string, bool) {}

// Noop is a Platform whose every operation is a no-op. It is the zero-cost
// default used whenever a caller doesn't have a real telemetry backend
// configured.
var Noop Platform = noopPlatform{}

// clockTimer implements Timer on top of the teacher's clock.Clock
// abstraction, so tests can inject a fake clock instead of sleeping.
type clockTimer struct {
	clock     clock.Clock
	startedAt time.Time
	record    func(name string, microseconds int64)
}

func (t *clockTimer) Reset() {
	t.startedAt = t.clock.Now()
}

func (t *clockTimer) RecordMicroseconds(name string) {
	elapsed := t.clock.Now().Sub(t.startedAt)
	t.record(name, elapsed.Microseconds())
}
