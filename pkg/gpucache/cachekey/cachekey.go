// Package cachekey implements CacheKey (spec.md §4.D): a Sink whose
// recognized contents are the deterministic serialization of a device
// base key, a request type-name tag, and the request's keyed fields.
package cachekey

import (
	"bytes"
	"hash"

	"github.com/buildbarn/go-sha256tree"
	"github.com/zeebo/blake3"

	"github.com/buildbarn/gpucache/pkg/gpucache/stream"
)

// ArtifactKind optionally tags the kind of artifact a request produces.
// It is carried forward from the Dawn original's CacheKey::Type enum
// (SPEC_FULL.md §4): it is informational only and never contributes
// bytes to the key beyond whatever the request's own type-name tag
// already does. cacherequest.Request implementations report their kind
// via ArtifactKind(), and cacherequest.LoadOrRun folds its String() into
// the metric names it records, so cache_hit/cache_miss/hash-validation
// samples can be broken down per artifact kind.
type ArtifactKind int

const (
	// ArtifactKindUnspecified is the zero value, used by requests that
	// don't tag themselves.
	ArtifactKindUnspecified ArtifactKind = iota
	ArtifactKindComputePipeline
	ArtifactKindRenderPipeline
	ArtifactKindShader
)

// String returns a human-readable name, used for telemetry labels.
func (k ArtifactKind) String() string {
	switch k {
	case ArtifactKindComputePipeline:
		return "ComputePipeline"
	case ArtifactKindRenderPipeline:
		return "RenderPipeline"
	case ArtifactKindShader:
		return "Shader"
	default:
		return "Unspecified"
	}
}

// CacheKey is a stream.Sink whose contents are, by convention, a
// deterministic serialization of a sequence of values. It is comparable
// by raw byte equality and is persisted as-is to the external store's key
// slot.
type CacheKey struct {
	sink stream.ByteSink
}

// New returns an empty CacheKey. Use Builder to construct one
// representing an actual request.
func New() *CacheKey {
	return &CacheKey{}
}

// Push implements stream.Sink.
func (k *CacheKey) Push(p []byte) { k.sink.Push(p) }

// Reserve implements stream.Sink.
func (k *CacheKey) Reserve(n int) []byte { return k.sink.Reserve(n) }

// Bytes returns the key's raw contents.
func (k *CacheKey) Bytes() []byte { return k.sink.Bytes() }

// Equal reports whether two keys are byte-for-byte identical.
func (k *CacheKey) Equal(other *CacheKey) bool {
	return bytes.Equal(k.Bytes(), other.Bytes())
}

// BaseKey is the device/system-level prefix bytes injected into every
// request key (spec.md §4.D item 1). It is opaque to the cachekey and
// blobcache packages beyond the version-tag invariant enforced by
// blobcache.BlobCache: the base key must contain the current version tag
// byte sequence as a substring.
type BaseKey []byte

// Builder constructs a BaseKey for a device/adapter, by streaming a
// caller-supplied version tag together with any adapter-identifying
// fields the caller wants folded in, then optionally condensing the
// result through a content hash. Folding in a hash is useful when the
// base key would otherwise be large (e.g. it embeds full adapter/driver
// version strings) and the caller wants every subsequent CacheKey to stay
// small; it is never required by spec.md, which treats the base key as
// opaque bytes.
type Builder struct {
	sink stream.ByteSink
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WriteVersionTag streams the version tag's raw bytes, with no length
// prefix or terminator. BlobCache's key validation invariant requires that
// the resulting BaseKey contain this exact substring, so callers must
// stream it with WriteVersionTag (which embeds the bytes verbatim, not
// hashed) rather
// than folding it only into a digest.
func (b *Builder) WriteVersionTag(tag string) {
	b.sink.Push([]byte(tag))
}

// WriteField streams an arbitrary caller-supplied value into the base
// key, using the given write function from the stream package.
func WriteField[T any](b *Builder, value T, write func(stream.Sink, T)) {
	write(&b.sink, value)
}

// Build returns the accumulated bytes as a BaseKey.
func (b *Builder) Build() BaseKey {
	return BaseKey(append([]byte(nil), b.sink.Bytes()...))
}

// DigestFunction selects the hash used by Fingerprint to condense a
// Builder's accumulated bytes. Both are real content hashers carried over
// from the teacher's digest package; neither is used for the hash-framed
// payload integrity check in blobcache (that's fixed to SHA3-224 per
// spec.md §4.E), only for this optional base-key condensation step.
type DigestFunction int

const (
	// DigestFunctionBLAKE3 selects github.com/zeebo/blake3.
	DigestFunctionBLAKE3 DigestFunction = iota
	// DigestFunctionSHA256Tree selects github.com/buildbarn/go-sha256tree.
	DigestFunctionSHA256Tree
)

func (f DigestFunction) newHasher(expectedSize int64) hash.Hash {
	switch f {
	case DigestFunctionSHA256Tree:
		return sha256tree.New(expectedSize)
	default:
		return blake3.New()
	}
}

// Fingerprint condenses the builder's accumulated bytes through fn,
// returning a BaseKey consisting of the version tag (kept verbatim, so
// the validation invariant still holds) followed by the digest of
// everything streamed so far, including the tag.
func (b *Builder) Fingerprint(tag string, fn DigestFunction) BaseKey {
	h := fn.newHasher(int64(b.sink.Len()))
	h.Write(b.sink.Bytes())
	sum := h.Sum(nil)
	out := make([]byte, 0, len(tag)+len(sum))
	out = append(out, []byte(tag)...)
	out = append(out, sum...)
	return BaseKey(out)
}

// Build streams, in the exact order spec.md §4.D requires:
//  1. base, the hosting device/system's preconfigured base key bytes;
//  2. typeName, the request type's name string, as a C-style byte run;
//  3. each keyed field, via writeKeyedFields.
//
// writeKeyedFields is expected to call the stream package's Write*
// helpers directly, in the request's declaration order.
func Build(base BaseKey, typeName string, writeKeyedFields func(stream.Sink)) *CacheKey {
	k := New()
	k.Push(base)
	stream.WriteCString(k, typeName)
	writeKeyedFields(k)
	return k
}
