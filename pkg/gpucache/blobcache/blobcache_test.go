package blobcache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
	"github.com/buildbarn/gpucache/pkg/gpucache/cachekey"
	"github.com/buildbarn/gpucache/pkg/gpucache/stream"
)

func memoryBackend() (blobcache.LoadFunc, blobcache.StoreFunc, map[string][]byte) {
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
	return load, storeFn, store
}

func testKey(tag string) *cachekey.CacheKey {
	return cachekey.Build(cachekey.BaseKey(tag), "TestRequest", func(s stream.Sink) {})
}

// TestS3HashValidationSuccess matches spec.md §8 scenario S3.
func TestS3HashValidationSuccess(t *testing.T) {
	load, store, _ := memoryBackend()
	c := blobcache.New(load, store, true, []byte("v1"))
	key := testKey("v1")

	payload := []byte("hello world!\x00")
	c.Store(key, payload)

	got, err := c.Load(key)
	require.NoError(t, err)
	require.Equal(t, payload, got.Data())
}

// TestS4HashValidationFailureIsAMiss matches spec.md §8 scenario S4: a
// single flipped byte in the stored framing must surface as
// HashValidationError, not as a successful load.
func TestS4HashValidationFailureIsAMiss(t *testing.T) {
	load, store, backing := memoryBackend()
	c := blobcache.New(load, store, true, []byte("v1"))
	key := testKey("v1")

	c.Store(key, []byte("hello world!"))
	for k, v := range backing {
		corrupted := append([]byte(nil), v...)
		corrupted[len(corrupted)-1] ^= 0xff
		backing[k] = corrupted
	}

	_, err := c.Load(key)
	require.Error(t, err)
	var hashErr *blobcache.HashValidationError
	require.ErrorAs(t, err, &hashErr)
}

// TestS5HashFramingTooShort matches spec.md §8 scenario S5.
func TestS5HashFramingTooShort(t *testing.T) {
	load, store, backing := memoryBackend()
	c := blobcache.New(load, store, true, []byte("v1"))
	key := testKey("v1")

	c.Store(key, []byte("hello"))
	for k := range backing {
		backing[k] = []byte("0")
	}

	_, err := c.Load(key)
	require.Error(t, err)
	var hashErr *blobcache.HashValidationError
	require.ErrorAs(t, err, &hashErr)
}

func TestLoadMissOnNeverStoredKey(t *testing.T) {
	load, store, _ := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))

	b, err := c.Load(testKey("v1"))
	require.NoError(t, err)
	require.True(t, b.IsEmpty())
}

func TestLoadIdempotentAfterStore(t *testing.T) {
	load, store, _ := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	key := testKey("v1")

	c.Store(key, []byte("payload"))
	b1, err := c.Load(key)
	require.NoError(t, err)
	b2, err := c.Load(key)
	require.NoError(t, err)
	require.Equal(t, b1.Data(), b2.Data())
}

func TestStoreRejectsEmptyValue(t *testing.T) {
	load, store, _ := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	require.Panics(t, func() { c.Store(testKey("v1"), nil) })
}

func TestMissingVersionTagPanics(t *testing.T) {
	load, store, _ := memoryBackend()
	c := blobcache.New(load, store, false, []byte("v1"))
	require.Panics(t, func() { c.Store(testKey("v2-only"), []byte("x")) })
}

func TestNilCallbacksDisableOperations(t *testing.T) {
	c := blobcache.New(nil, nil, false, []byte("v1"))
	key := testKey("v1")

	require.NotPanics(t, func() { c.Store(key, []byte("x")) })
	b, err := c.Load(key)
	require.NoError(t, err)
	require.True(t, b.IsEmpty())
}

func TestComputeStoredPayloadForTestingMatchesWireFormat(t *testing.T) {
	load, store, backing := memoryBackend()
	c := blobcache.New(load, store, true, []byte("v1"))
	key := testKey("v1")

	c.Store(key, []byte("payload"))
	expected := c.ComputeStoredPayloadForTesting([]byte("payload"))
	for _, v := range backing {
		require.Equal(t, expected, v)
	}
}
