// Package blob provides Blob, an owned, move-only region of bytes with a
// caller-supplied release action. It is the leaf type that the stream
// codec, the blob cache, and the pipeline cache all build on top of.
package blob

// Releaser is invoked exactly once when a Blob's underlying storage is no
// longer needed, either because the Blob was dropped or because it was
// overwritten by Move. A nil Releaser means the Blob does not own
// anything that needs releasing (for example, byte slices backed by the
// Go garbage collector).
type Releaser func()

// Blob is a contiguous, immutable-after-construction region of bytes plus
// an optional release action. Blob is move-only: copying the struct
// directly (rather than through Move) would cause the release action to
// run twice, so all constructors return a *Blob and callers are expected
// to transfer ownership by moving the pointer, not by dereferencing and
// assigning.
//
// The zero value is the canonical empty Blob: Data is nil, Size is 0, and
// there is no releaser to run.
type Blob struct {
	data     []byte
	releaser Releaser
	released bool
}

// Empty is the canonical empty Blob. It is safe to read from directly; it
// owns nothing and Release on it is a no-op.
var Empty = &Blob{}

// NewSized allocates a new, self-owned buffer of n bytes. For n == 0 it
// returns the canonical empty Blob, matching the data-pointer-is-null-iff-
// size-is-zero invariant.
func NewSized(n int) *Blob {
	if n == 0 {
		return &Blob{}
	}
	return &Blob{data: make([]byte, n)}
}

// FromRaw adopts an existing byte slice, running releaser exactly once
// when the Blob is released or overwritten. It is the Go analogue of
// Dawn's Blob::UnsafeCreateWithDeleter: the caller asserts that data is
// non-nil whenever len(data) is non-zero.
func FromRaw(data []byte, releaser Releaser) *Blob {
	if len(data) == 0 {
		// Normalize to the canonical empty representation, but still run
		// the releaser: ownership was transferred to us regardless of
		// whether there happen to be any bytes in it.
		if releaser != nil {
			releaser()
		}
		return &Blob{}
	}
	return &Blob{data: data, releaser: releaser}
}

// FromVectorBytes copies a byte slice into a new self-owned Blob, the Go
// analogue of Dawn's CreateBlob(std::vector<T>). Only []byte is accepted:
// slices of other scalar element types are not reinterpreted as bytes,
// which keeps the package free of unsafe. The source slice is not
// retained.
func FromVectorBytes(data []byte) *Blob {
	if len(data) == 0 {
		return &Blob{}
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Blob{data: owned}
}

// IsEmpty reports whether the Blob holds zero bytes.
func (b *Blob) IsEmpty() bool {
	return len(b.data) == 0
}

// Size returns the number of bytes held by the Blob.
func (b *Blob) Size() int {
	return len(b.data)
}

// Data returns the Blob's contents. The returned slice aliases the Blob's
// internal storage and must not be retained past the Blob's release.
func (b *Blob) Data() []byte {
	return b.data
}

// Move transfers ownership of other's contents into b, running b's
// existing releaser first (per spec §3: "Move-assign must run the prior
// releaser before adopting the new one"). other is reset to the canonical
// empty Blob and must not be used afterward.
func (b *Blob) Move(other *Blob) {
	if b.releaser != nil && !b.released {
		b.releaser()
	}
	b.data = other.data
	b.releaser = other.releaser
	b.released = other.released
	other.data = nil
	other.releaser = nil
	other.released = true
}

// Release runs the Blob's releaser exactly once and clears its contents.
// It is idempotent: calling it again is a no-op. Callers that embed a Blob
// inside a longer-lived structure should call Release from that
// structure's own cleanup path.
func (b *Blob) Release() {
	if b.released {
		return
	}
	b.released = true
	if b.releaser != nil {
		b.releaser()
	}
	b.data = nil
	b.releaser = nil
}
