package kvstore_test

import (
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/gpucache/kvstore"
)

func TestCompressingStoreThenLoadRoundTrips(t *testing.T) {
	m := kvstore.NewMemory()
	c := kvstore.NewCompressing(m.Load, m.Store, zstd.SpeedDefault, nil)

	payload := []byte("hello world, compress me please compress me please")
	c.Store([]byte("k"), payload)

	// The wrapped backend must hold compressed bytes, not the raw
	// payload: Compressing sits below blobcache's hash framing, so the
	// bytes actually stored are expected to differ from the input.
	rawSize := m.Load([]byte("k"), nil)
	require.NotEqual(t, len(payload), rawSize)

	size := c.Load([]byte("k"), nil)
	require.Equal(t, len(payload), size)

	buf := make([]byte, size)
	require.Equal(t, size, c.Load([]byte("k"), buf))
	require.Equal(t, payload, buf)
}

func TestCompressingLoadMissOnUnknownKey(t *testing.T) {
	m := kvstore.NewMemory()
	c := kvstore.NewCompressing(m.Load, m.Store, zstd.SpeedDefault, nil)
	require.Equal(t, 0, c.Load([]byte("missing"), nil))
}

func TestCompressingLoadIsNoOpWithoutBackend(t *testing.T) {
	c := kvstore.NewCompressing(nil, nil, zstd.SpeedDefault, nil)
	require.Equal(t, 0, c.Load([]byte("k"), nil))
	c.Store([]byte("k"), []byte("value")) // must not panic
}
