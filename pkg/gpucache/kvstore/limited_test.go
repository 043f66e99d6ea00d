package kvstore_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/gpucache/kvstore"
)

func TestLimitedStoreThenLoadRoundTrips(t *testing.T) {
	m := kvstore.NewMemory()
	l := kvstore.NewLimited(m.Load, m.Store, 4)

	l.Store([]byte("k"), []byte("hello"))
	size := l.Load([]byte("k"), nil)
	buf := make([]byte, size)
	require.Equal(t, size, l.Load([]byte("k"), buf))
	require.Equal(t, []byte("hello"), buf)
}

func TestLimitedBoundsConcurrentCalls(t *testing.T) {
	var inFlight, maxSeen int32
	block := make(chan struct{})

	load := func(key []byte, out []byte) int {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		<-block
		atomic.AddInt32(&inFlight, -1)
		return 0
	}

	l := kvstore.NewLimited(load, nil, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Load([]byte("k"), nil)
		}()
	}

	// Give the goroutines a chance to pile up against the semaphore
	// before releasing them.
	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
	close(block)
	wg.Wait()
}
