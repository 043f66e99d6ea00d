// Package blobcache implements BlobCache (spec.md §4.E): a thread-safe
// wrapper over an external key/value callback pair, with optional
// hash-prefixed payload framing used to detect corrupt cache entries
// without trusting the external store.
package blobcache

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
	"github.com/buildbarn/gpucache/pkg/gpucache/cachekey"
)

// hashSize is the fixed size, in bytes, of the cryptographic digest
// prefixed onto stored payloads when hash validation is enabled. spec.md
// §6 pins this to 28 bytes, the output size of SHA3-224, matching the
// reference Dawn implementation's Sha3_224 hasher.
const hashSize = 28

// LoadFunc probes and fetches a value from the external store, mirroring
// spec.md §6's load_fn(key_ptr, key_len, out_ptr, out_cap) -> actual_size.
// It is called first with out == nil to obtain the expected size (0 means
// not found); then, if expected > 0, again with a buffer of exactly that
// length, which LoadFunc must fill completely while returning the same
// size. A nil LoadFunc makes Load always report a miss.
type LoadFunc func(key []byte, out []byte) (actualSize int)

// StoreFunc writes value under key, overwriting any existing entry. A nil
// StoreFunc makes Store a no-op.
type StoreFunc func(key []byte, value []byte)

// LoadOutcome names the three outcomes of Load (spec.md §4.E). Load does
// not return a LoadOutcome: it reports a miss as an empty blob with a nil
// error, a hit as a non-empty blob, and a failed validation as a
// *HashValidationError.
type LoadOutcome int

const (
	// LoadMiss indicates the key was not present in the external store.
	LoadMiss LoadOutcome = iota
	// LoadHit indicates a validated payload was returned.
	LoadHit
	// LoadHashValidationFailed indicates a payload was returned but its
	// hash-prefix framing did not validate; the entry is treated as
	// corrupt, not as a transport error.
	LoadHashValidationFailed
)

// HashValidationError is returned by Load when hash validation is enabled
// and a loaded entry's leading digest does not match its payload, or the
// entry is too short to contain a digest at all. It carries the sizes and
// digests involved so callers can log useful diagnostics (spec.md §4.E
// step 5: "return HashValidationFailed with context").
type HashValidationError struct {
	SizeWithHash   int
	ExpectedDigest []byte
	ComputedDigest []byte
}

func (e *HashValidationError) Error() string {
	if e.ExpectedDigest == nil {
		return fmt.Sprintf("blobcache: hash validation failed: loaded blob of %d bytes is no larger than the %d-byte digest", e.SizeWithHash, hashSize)
	}
	return fmt.Sprintf("blobcache: hash validation failed: loaded blob of %d bytes, expected digest %x, computed digest %x", e.SizeWithHash, e.ExpectedDigest, e.ComputedDigest)
}

// BlobCache is a thread-safe store mapping a CacheKey to a payload Blob,
// wrapping an externally supplied load/store callback pair. All public
// operations acquire an internal mutex, serializing the external
// callbacks; the spec does not require them to be reentrant.
type BlobCache struct {
	mu                    sync.Mutex
	load                  LoadFunc
	store                 StoreFunc
	hashValidationEnabled bool
	versionTag            []byte
}

// New constructs a BlobCache. versionTag is the current version tag byte
// sequence that every CacheKey passed to Load/Store must contain as a
// substring (spec.md §4.D's key validation invariant); a mismatch is a
// contract violation and panics, per spec.md §7.
func New(load LoadFunc, store StoreFunc, hashValidationEnabled bool, versionTag []byte) *BlobCache {
	return &BlobCache{
		load:                  load,
		store:                 store,
		hashValidationEnabled: hashValidationEnabled,
		versionTag:            versionTag,
	}
}

func (c *BlobCache) validateKey(key *cachekey.CacheKey) {
	if !bytes.Contains(key.Bytes(), c.versionTag) {
		panic(fmt.Sprintf("blobcache: cache key does not contain the required version tag %q; this is a contract violation, not a cache miss", c.versionTag))
	}
}

// Load returns the blob stored under key, or an empty blob on a cache
// miss. HashValidationError is returned (not panicked) when hash
// validation is enabled and the loaded entry fails to validate: per
// spec.md §4.E this is a recoverable condition for the caller (see
// cacherequest.LoadOrRun, which treats it as a miss), not a fatal one.
func (c *BlobCache) Load(key *cachekey.CacheKey) (*blob.Blob, error) {
	c.validateKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.load == nil {
		return blob.Empty, nil
	}

	keyBytes := key.Bytes()
	expectedSize := c.load(keyBytes, nil)
	if expectedSize <= 0 {
		return blob.Empty, nil
	}

	buf := make([]byte, expectedSize)
	actualSize := c.load(keyBytes, buf)
	if actualSize != expectedSize {
		panic(fmt.Sprintf("blobcache: external load callback reported size %d on the probing call but returned %d bytes on the fetching call; this is a contract violation of the external store", expectedSize, actualSize))
	}

	if !c.hashValidationEnabled {
		return blob.FromRaw(buf, nil), nil
	}

	if expectedSize <= hashSize {
		return nil, &HashValidationError{SizeWithHash: expectedSize}
	}
	expectedDigest := buf[:hashSize]
	payload := buf[hashSize:]
	computed := computeDigest(payload)
	if !bytes.Equal(expectedDigest, computed) {
		return nil, &HashValidationError{
			SizeWithHash:   expectedSize,
			ExpectedDigest: append([]byte(nil), expectedDigest...),
			ComputedDigest: computed,
		}
	}
	return blob.FromRaw(payload, nil), nil
}

// Store writes value under key. value must be non-empty: a zero-length or
// nil value is a contract violation and panics (spec.md §4.E, §7). Store
// never fails visibly; refusals or I/O errors from the external store are
// discarded, since the artifact being cached remains valid in the
// caller's memory regardless (spec.md §7: "best effort cache").
func (c *BlobCache) Store(key *cachekey.CacheKey, value []byte) {
	c.validateKey(key)
	if len(value) == 0 {
		panic("blobcache: Store called with an empty value; values must be non-empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return
	}

	if !c.hashValidationEnabled {
		c.store(key.Bytes(), value)
		return
	}
	c.store(key.Bytes(), framePayload(value))
}

// StoreBlob is a convenience wrapper around Store that forwards a Blob's
// contents.
func (c *BlobCache) StoreBlob(key *cachekey.CacheKey, b *blob.Blob) {
	c.Store(key, b.Data())
}

// ComputeStoredPayloadForTesting returns the exact bytes Store would pass
// to the external store's StoreFunc for value, without actually calling
// it. It exists to let callers' tests assert on framing without faking an
// external store, mirroring Dawn's
// BlobCache::GenerateActualStoredBlobForTesting (SPEC_FULL.md §4).
func (c *BlobCache) ComputeStoredPayloadForTesting(value []byte) []byte {
	if !c.hashValidationEnabled {
		return append([]byte(nil), value...)
	}
	return framePayload(value)
}

func framePayload(payload []byte) []byte {
	digest := computeDigest(payload)
	out := make([]byte, 0, len(digest)+len(payload))
	out = append(out, digest...)
	out = append(out, payload...)
	return out
}

func computeDigest(payload []byte) []byte {
	h := sha3.New224()
	h.Write(payload)
	return h.Sum(nil)
}
