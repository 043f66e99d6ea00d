// Package stream implements the type-directed binary codec described in
// spec.md §4.C: deterministic, fail-closed serialization of primitives,
// strings, containers, optionals, tuples, bitsets and visitable records
// over an append-only Sink and a forward-only Source.
package stream

import (
	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
)

// Sink is an append-only byte buffer. Implementations need only provide
// Push and Reserve; ByteSink is the reference implementation backed by a
// growable slice, used both as the general-purpose serialization target
// and, via CacheKey, as the cache key builder.
type Sink interface {
	// Push appends a copy of p to the sink.
	Push(p []byte)
	// Reserve grows the sink by n bytes and returns a slice aliasing
	// those bytes for the caller to fill in directly. Reserving n bytes
	// is logically equivalent to pushing n zero bytes and returning a
	// pointer to them; ByteSink zero-fills the reserved bytes, so callers
	// such as WriteBitset may set individual bits in them.
	Reserve(n int) []byte
}

// ByteSink is a Sink backed by a growable byte slice. It is the concrete
// type used for CacheKey (see the cachekey package) and for serializing
// payloads that get stored in the blob cache.
type ByteSink struct {
	buf []byte
}

// NewByteSink returns an empty ByteSink.
func NewByteSink() *ByteSink {
	return &ByteSink{}
}

// Push implements Sink.
func (s *ByteSink) Push(p []byte) {
	s.buf = append(s.buf, p...)
}

// Reserve implements Sink.
func (s *ByteSink) Reserve(n int) []byte {
	start := len(s.buf)
	s.buf = append(s.buf, make([]byte, n)...)
	return s.buf[start : start+n]
}

// Bytes returns the sink's contents. The returned slice aliases the
// sink's internal storage.
func (s *ByteSink) Bytes() []byte {
	return s.buf
}

// Len returns the number of bytes written to the sink so far.
func (s *ByteSink) Len() int {
	return len(s.buf)
}

// ToBlob converts the sink in place into a Blob, transferring ownership
// of the underlying bytes. The sink must not be used afterward.
func (s *ByteSink) ToBlob() *blob.Blob {
	b := blob.FromRaw(s.buf, nil)
	s.buf = nil
	return b
}
