// Package pipelinecache implements PipelineCache (spec.md §4.F): a
// longer-lived helper for subsystems that hold their own native cache
// object and want it populated from, and synchronized back to, a
// blobcache.BlobCache.
package pipelinecache

import (
	"github.com/buildbarn/gpucache/pkg/atomic"
	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
	"github.com/buildbarn/gpucache/pkg/gpucache/cachekey"
)

// needsStore values. atomic.Int32 is used as a boolean flag rather than
// sync/atomic.Bool so that the relaxed-ordering, at-least-once
// "something changed" semantics called for by the reference design read
// the same way as the rest of this module's atomic wrapper usage.
const (
	needsStoreFalse int32 = 0
	needsStoreTrue  int32 = 1
)

// Serializer produces the bytes a backend wants persisted into the
// BlobCache. It is the only part of flushing that is backend-specific;
// everything else (deciding when to flush) lives in PipelineCache
// itself.
type Serializer func() *blob.Blob

// Cache is a long-lived handle over a single BlobCache entry, tracking
// whether the backend's native pipeline cache has changed since the
// last flush.
//
// initialize must be called exactly once before any other method; Cache
// does not itself enforce this (there is no sentinel "uninitialized"
// error in the reference design — calling the other methods first is a
// programmer error, same as in the source material).
type Cache struct {
	backing     *blobcache.BlobCache
	key         *cachekey.CacheKey
	storeOnIdle bool
	serialize   Serializer
	initialized bool
	cacheHit    bool
	needsStore  atomic.Int32
	initialBlob *blob.Blob
}

// New constructs a Cache bound to key within backing. serialize is
// invoked by Flush to obtain the bytes to persist; it is supplied here
// rather than to Flush itself because a single serializer is associated
// with the backend's cache object for the handle's whole lifetime.
func New(backing *blobcache.BlobCache, key *cachekey.CacheKey, storeOnIdle bool, serialize Serializer) *Cache {
	return &Cache{
		backing:     backing,
		key:         key,
		storeOnIdle: storeOnIdle,
		serialize:   serialize,
	}
}

// Initialize loads the cache's current contents from BlobCache. It must
// be called exactly once. The returned blob may be empty, which callers
// interpret as "nothing to warm the native cache from". A
// HashValidationError is treated the same as a miss: cache_hit is false
// and the error is not surfaced, matching spec.md §4.F's description of
// the clean-initialized state.
func (c *Cache) Initialize() *blob.Blob {
	loaded, err := c.backing.Load(c.key)
	if err != nil {
		c.initialized = true
		c.cacheHit = false
		c.initialBlob = blob.Empty
		return blob.Empty
	}
	c.initialized = true
	c.cacheHit = !loaded.IsEmpty()
	c.initialBlob = loaded
	return loaded
}

// CacheHit reports whether Initialize's load returned a non-empty blob.
// Valid only after Initialize has been called.
func (c *Cache) CacheHit() bool {
	return c.cacheHit
}

// DidCompilePipeline must be called after each successful compilation
// against the backend's native cache. With store_on_idle, this merely
// raises the needs_store flag for a later StoreOnIdle call; otherwise,
// if the initial load was a miss, it synchronously flushes so that a
// cold cache is populated as soon as possible.
func (c *Cache) DidCompilePipeline() {
	if c.storeOnIdle {
		c.needsStore.Store(needsStoreTrue)
		return
	}
	if !c.cacheHit {
		c.Flush()
	}
}

// StoreOnIdle flushes the cache if DidCompilePipeline has raised the
// needs_store flag since the last call. Valid only on a Cache
// constructed with store_on_idle=true. The flag is read and cleared
// with a single compare-and-swap rather than a load-then-store, so a
// concurrent DidCompilePipeline racing with StoreOnIdle is not lost: if
// it loses the race, the flag stays set for the next StoreOnIdle.
func (c *Cache) StoreOnIdle() {
	if c.needsStore.CompareAndSwap(needsStoreTrue, needsStoreFalse) {
		c.Flush()
	}
}

// Flush serializes the backend's native cache object and, if the result
// is non-empty, stores it into BlobCache. An empty serialization is
// treated as "nothing worth persisting yet" and silently skipped.
func (c *Cache) Flush() {
	b := c.serialize()
	if b.Size() == 0 {
		return
	}
	c.backing.StoreBlob(c.key, b)
}
