package stream

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
)

// ErrTruncated-shaped errors are returned whenever a Source is asked for
// more bytes than remain, or a decoded length exceeds the remaining
// bytes. NewTruncatedError constructs one with a grpc status code of
// DataLoss, matching the house convention (pkg/util.StatusWrap*) of
// carrying structured errors as grpc statuses even outside of RPC paths.
func NewTruncatedError(requested, remaining int) error {
	return status.Errorf(codes.DataLoss, "stream: truncated: requested %d bytes, %d remain", requested, remaining)
}

// Source is a forward-only sequential reader over a Blob.
type Source struct {
	blob   *blob.Blob
	offset int
}

// NewSource constructs a Source that reads from b for its entire
// lifetime. The Source takes ownership of b; it must not be read from or
// released elsewhere afterward.
func NewSource(b *blob.Blob) *Source {
	return &Source{blob: b}
}

// Read returns the next n bytes, advancing the cursor. It fails with a
// truncation error if fewer than n bytes remain. The returned slice
// aliases the Source's underlying Blob and is only valid until the
// Source (and its Blob) is released.
func (s *Source) Read(n int) ([]byte, error) {
	remaining := len(s.blob.Data()) - s.offset
	if n > remaining {
		return nil, NewTruncatedError(n, remaining)
	}
	p := s.blob.Data()[s.offset : s.offset+n]
	s.offset += n
	return p, nil
}

// Remaining returns the number of bytes left to read.
func (s *Source) Remaining() int {
	return len(s.blob.Data()) - s.offset
}

// Release releases the Source's underlying Blob.
func (s *Source) Release() {
	s.blob.Release()
}
