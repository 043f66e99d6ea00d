package kvstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/buildbarn/gpucache/pkg/util"
)

// Compressing wraps another backend's LoadFunc/StoreFunc pair, storing
// every value Zstandard-compressed instead of raw. Compression sits
// below blobcache's hash-prefixed payload framing: Load only ever hands
// blobcache decompressed bytes. A corrupted compressed entry that fails to
// decompress is logged and reported as a miss (size 0); one that still
// decompresses, to different bytes, fails blobcache's digest check.
type Compressing struct {
	load        LoadFunc
	store       StoreFunc
	level       zstd.EncoderLevel
	errorLogger util.ErrorLogger
}

// NewCompressing wraps load/store with Zstandard compression at level,
// logging compression/decompression failures (never the value itself)
// to errorLogger, which may be nil.
func NewCompressing(load LoadFunc, store StoreFunc, level zstd.EncoderLevel, errorLogger util.ErrorLogger) *Compressing {
	return &Compressing{load: load, store: store, level: level, errorLogger: errorLogger}
}

func (c *Compressing) logError(err error) {
	if err != nil && c.errorLogger != nil {
		c.errorLogger.Log(err)
	}
}

// Load implements blobcache.LoadFunc, decompressing the bytes the
// wrapped backend returns. It re-fetches and re-decompresses on every
// call rather than caching between the probe and fetch calls, matching
// the wrapped backends (Memory, Filesystem, S3, GCS, Redis), which all
// re-read their full value on every Load call already.
func (c *Compressing) Load(key []byte, out []byte) int {
	if c.load == nil {
		return 0
	}
	size := c.load(key, nil)
	if size == 0 {
		return 0
	}
	compressed := make([]byte, size)
	if n := c.load(key, compressed); n != size {
		c.logError(fmt.Errorf("kvstore: wrapped backend returned %d bytes, expected %d", n, size))
		return 0
	}
	decompressed, err := decompressAll(compressed)
	if err != nil {
		c.logError(err)
		return 0
	}
	if out == nil {
		return len(decompressed)
	}
	copy(out, decompressed)
	return len(decompressed)
}

// Store implements blobcache.StoreFunc, compressing value before
// forwarding it to the wrapped backend.
func (c *Compressing) Store(key []byte, value []byte) {
	if c.store == nil {
		return
	}
	compressed, err := compressAll(value, c.level)
	if err != nil {
		c.logError(err)
		return
	}
	c.store(key, compressed)
}

func decompressAll(data []byte) ([]byte, error) {
	rc, err := util.NewZstdReadCloser(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func compressAll(data []byte, level zstd.EncoderLevel) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
