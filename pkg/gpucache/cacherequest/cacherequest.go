// Package cacherequest implements the generic "compute if absent" driver
// described by spec.md §4.G: CacheRequest / LoadOrRun builds a cache key
// from a request value, probes a blobcache.BlobCache, and falls back to
// a caller-supplied miss producer, returning a tagged CacheResult.
package cacherequest

import (
	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
	"github.com/buildbarn/gpucache/pkg/gpucache/cachekey"
	"github.com/buildbarn/gpucache/pkg/gpucache/stream"
	"github.com/buildbarn/gpucache/pkg/gpucache/telemetry"
	"github.com/buildbarn/gpucache/pkg/util"
)

// Request is the contract a miss_fn's input type must satisfy: a
// compile-time type name used as the first thing written into the cache
// key, and a visitor over its keyed fields. Unkeyed values live on the
// concrete request type itself (see stream.Unkeyed) and are simply never
// touched by WriteKeyedFields; they still reach the miss producer
// because the whole request value, not just its key projection, is
// passed to it.
//
// The no-captures constraint the reference design places on miss_fn ("a
// plain function value with no captured state") has no static
// enforcement in Go — a closure is indistinguishable from a plain
// function at the type level. It is a calling convention: MissFunc
// implementations in this module must derive their entire result from
// their R argument alone.
type Request interface {
	// TypeName returns the request type's name, written into the cache
	// key before any keyed field (spec.md §4.D).
	TypeName() string
	// WriteKeyedFields writes every field that participates in the
	// cache key, in a fixed order, to s.
	WriteKeyedFields(s stream.Sink)
	// ArtifactKind reports what this request produces, for telemetry
	// label purposes only (cachekey.ArtifactKindUnspecified if the
	// request type doesn't distinguish). It never contributes bytes to
	// the cache key itself.
	ArtifactKind() cachekey.ArtifactKind
}

// Device supplies the two things LoadOrRun needs beyond the request
// itself: the base key prefix shared by every request on this device,
// and the BlobCache backing it.
type Device interface {
	BaseKey() cachekey.BaseKey
	BlobCache() *blobcache.BlobCache
}

// Origin tags which path produced a CacheResult's value.
type Origin int

const (
	// Hit indicates the value came from a validated cache entry.
	Hit Origin = iota
	// Miss indicates the value came from the miss producer.
	Miss
)

// CacheResult is the move-only-by-convention return value of LoadOrRun: a
// cache key paired with the value that was either loaded or computed,
// tagged with which path produced it. A default-constructed CacheResult
// (the zero value, as opposed to one returned by LoadOrRun) is invalid;
// every accessor on it panics (spec.md §3). Value is consumed exactly
// once, via Acquire; a second Acquire call on the same result, even
// through a copy, panics (spec.md §3, §5: "CacheResult is move-only
// after acquire"). Key and Origin carry no such restriction — they are
// plain tags a caller may legitimately need after handing the value off,
// e.g. to persist the entry under the same key it was computed for.
type CacheResult[T any] struct {
	key    *cachekey.CacheKey
	value  T
	origin Origin
	valid  bool
	taken  *bool
}

func newCacheResult[T any](key *cachekey.CacheKey, value T, origin Origin) CacheResult[T] {
	taken := false
	return CacheResult[T]{key: key, value: value, origin: origin, valid: true, taken: &taken}
}

func (r CacheResult[T]) requireValid() {
	if !r.valid {
		panic("cacherequest: accessor called on an invalid (default-constructed) CacheResult")
	}
}

// Key returns the cache key this result was produced under.
func (r CacheResult[T]) Key() *cachekey.CacheKey {
	r.requireValid()
	return r.key
}

// Origin reports whether the result came from a cache hit or the miss
// producer.
func (r CacheResult[T]) Origin() Origin {
	r.requireValid()
	return r.origin
}

// Acquire returns the result's value. It may be called exactly once per
// CacheResult, including across copies of the same logical result; any
// further call panics, matching spec.md §3's "value is consumed exactly
// once via acquire; after acquire, further reads fail."
func (r CacheResult[T]) Acquire() T {
	r.requireValid()
	if *r.taken {
		panic("cacherequest: Acquire called twice on the same CacheResult")
	}
	*r.taken = true
	return r.value
}

// HitFunc deserializes a loaded blob into a value. An error here is
// logged and treated as a cache miss (spec.md §7: "Hit-handler error ...
// never surfaced"), not returned to LoadOrRun's caller.
type HitFunc[T any] func(*blob.Blob) (T, error)

// MissFunc computes a value directly from the request when no valid
// cache entry exists. Its error, unlike HitFunc's, is surfaced to
// LoadOrRun's caller: the artifact genuinely could not be produced.
type MissFunc[R any, T any] func(R) (T, error)

const metricHashValidationFailed = "BlobCacheHashValidationFailed"

// metricName appends a request's ArtifactKind to a base metric name, so
// a cache_hit/cache_miss/BlobCacheHashValidationFailed sample can be
// broken down by the kind of artifact it concerns. Unspecified kinds
// leave the name unchanged, so requests that don't bother tagging
// themselves don't gain a meaningless ".Unspecified" suffix.
func metricName(base string, kind cachekey.ArtifactKind) string {
	if kind == cachekey.ArtifactKindUnspecified {
		return base
	}
	return base + "." + kind.String()
}

// LoadOrRun implements spec.md §4.G's algorithm. Exactly one of hitFn or
// missFn is invoked, except when a hit is loaded but hitFn errors, in
// which case both run (the hit attempt, then the fallback miss).
//
// platform and errorLogger may both be nil, in which case no telemetry
// is recorded and hit/miss-path errors are silently discarded, matching
// this module's "absent telemetry degrades to no-ops" convention.
func LoadOrRun[R Request, T any](device Device, r R, hitFn HitFunc[T], missFn MissFunc[R, T], platform telemetry.Platform, errorLogger util.ErrorLogger) (CacheResult[T], error) {
	key := cachekey.Build(device.BaseKey(), r.TypeName(), r.WriteKeyedFields)

	var timer telemetry.Timer
	if platform != nil {
		timer = platform.NewTimer()
	}

	kind := r.ArtifactKind()

	loaded, err := device.BlobCache().Load(key)
	if err != nil {
		if platform != nil {
			platform.RecordBoolean(metricName(metricHashValidationFailed, kind), true)
		}
		if errorLogger != nil {
			errorLogger.Log(err)
		}
		loaded = blob.Empty
	}

	if !loaded.IsEmpty() {
		value, hitErr := hitFn(loaded)
		if hitErr == nil {
			if timer != nil {
				timer.RecordMicroseconds(metricName("cache_hit", kind))
			}
			return newCacheResult(key, value, Hit), nil
		}
		if errorLogger != nil {
			errorLogger.Log(hitErr)
		}
	}

	if timer != nil {
		timer.Reset()
	}
	value, missErr := missFn(r)
	if missErr != nil {
		return CacheResult[T]{}, missErr
	}
	if timer != nil {
		timer.RecordMicroseconds(metricName("cache_miss", kind))
	}
	return newCacheResult(key, value, Miss), nil
}

// EnsureStored persists result into cache if, and only if, it came from
// the miss path; a hit result is already known to be present. writeValue
// serializes the acquired value the same way a future hit load would
// need to deserialize it.
func EnsureStored[T any](cache *blobcache.BlobCache, result CacheResult[T], writeValue func(stream.Sink, T)) {
	if result.Origin() != Miss {
		return
	}
	key := result.Key()
	value := result.Acquire()
	sink := stream.NewByteSink()
	writeValue(sink, value)
	cache.StoreBlob(key, sink.ToBlob())
}
