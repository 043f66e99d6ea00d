package kvstore

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/buildbarn/gpucache/pkg/util"
)

// Limited wraps another backend's LoadFunc/StoreFunc pair, bounding the
// number of requests in flight against it with a weighted semaphore.
// This matters for the networked backends (S3, GCS, Redis), where an
// unbounded burst of concurrent LoadOrRun misses could otherwise open
// one outbound connection per request.
type Limited struct {
	load      LoadFunc
	store     StoreFunc
	semaphore *semaphore.Weighted
}

// NewLimited wraps load/store so that at most maxConcurrent of them run
// at once; callers beyond that limit block until a slot frees up.
func NewLimited(load LoadFunc, store StoreFunc, maxConcurrent int64) *Limited {
	return &Limited{load: load, store: store, semaphore: semaphore.NewWeighted(maxConcurrent)}
}

// Load implements blobcache.LoadFunc. LoadFunc has no context parameter
// (spec.md §6's load_fn is a synchronous callback), so the acquire below
// uses context.Background() and can only be interrupted by the
// semaphore itself, never by cancellation.
func (l *Limited) Load(key []byte, out []byte) int {
	if l.load == nil {
		return 0
	}
	if err := util.AcquireSemaphore(context.Background(), l.semaphore, 1); err != nil {
		return 0
	}
	defer l.semaphore.Release(1)
	return l.load(key, out)
}

// Store implements blobcache.StoreFunc.
func (l *Limited) Store(key []byte, value []byte) {
	if l.store == nil {
		return
	}
	if err := util.AcquireSemaphore(context.Background(), l.semaphore, 1); err != nil {
		return
	}
	defer l.semaphore.Release(1)
	l.store(key, value)
}
