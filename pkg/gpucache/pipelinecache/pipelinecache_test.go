package pipelinecache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
	"github.com/buildbarn/gpucache/pkg/gpucache/cachekey"
	"github.com/buildbarn/gpucache/pkg/gpucache/pipelinecache"
	"github.com/buildbarn/gpucache/pkg/gpucache/stream"
)

func memoryBackend() (blobcache.LoadFunc, blobcache.StoreFunc) {
	var mu sync.Mutex
	store := map[string][]byte{}
	load := func(key []byte, out []byte) int {
		mu.Lock()
		defer mu.Unlock()
		v, ok := store[string(key)]
		if !ok {
			return 0
		}
		if out == nil {
			return len(v)
		}
		copy(out, v)
		return len(v)
	}
	storeFn := func(key []byte, value []byte) {
		mu.Lock()
		defer mu.Unlock()
		store[string(key)] = append([]byte(nil), value...)
	}
	return load, storeFn
}

func testKey() *cachekey.CacheKey {
	return cachekey.Build(cachekey.BaseKey("v1"), "PipelineCacheForTesting", func(s stream.Sink) {})
}

func TestInitializeOnEmptyBackendIsAMiss(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	pc := pipelinecache.New(c, testKey(), false, func() *blob.Blob { return blob.Empty })

	got := pc.Initialize()
	require.True(t, got.IsEmpty())
	require.False(t, pc.CacheHit())
}

func TestInitializeObservesPriorStore(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey()
	c.Store(key, []byte("native-blob"))

	pc := pipelinecache.New(c, key, false, func() *blob.Blob { return blob.Empty })
	got := pc.Initialize()
	require.Equal(t, []byte("native-blob"), got.Data())
	require.True(t, pc.CacheHit())
}

func TestDidCompilePipelineFlushesSynchronouslyOnColdCacheWithoutStoreOnIdle(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey()

	serialized := []byte("compiled-state")
	pc := pipelinecache.New(c, key, false, func() *blob.Blob {
		return blob.FromVectorBytes(serialized)
	})
	pc.Initialize()
	require.False(t, pc.CacheHit())

	pc.DidCompilePipeline()

	got, err := c.Load(key)
	require.NoError(t, err)
	require.Equal(t, serialized, got.Data())
}

func TestDidCompilePipelineOnWarmCacheWithoutStoreOnIdleDoesNotFlush(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey()
	c.Store(key, []byte("original"))

	flushCount := 0
	pc := pipelinecache.New(c, key, false, func() *blob.Blob {
		flushCount++
		return blob.FromVectorBytes([]byte("new-state"))
	})
	pc.Initialize()
	require.True(t, pc.CacheHit())

	pc.DidCompilePipeline()
	require.Equal(t, 0, flushCount)
}

func TestStoreOnIdleFlushesOnlyWhenNeedsStoreWasSet(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey()

	flushCount := 0
	pc := pipelinecache.New(c, key, true, func() *blob.Blob {
		flushCount++
		return blob.FromVectorBytes([]byte("state"))
	})
	pc.Initialize()

	pc.StoreOnIdle()
	require.Equal(t, 0, flushCount, "StoreOnIdle with no compile since init must not flush")

	pc.DidCompilePipeline()
	pc.StoreOnIdle()
	require.Equal(t, 1, flushCount)

	pc.StoreOnIdle()
	require.Equal(t, 1, flushCount, "a second StoreOnIdle without an intervening compile must not flush again")
}

func TestFlushSkipsEmptySerialization(t *testing.T) {
	load, store := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey()

	pc := pipelinecache.New(c, key, false, func() *blob.Blob { return blob.Empty })
	pc.Flush()

	got, err := c.Load(key)
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}
