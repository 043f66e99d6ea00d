package stream

import (
	"cmp"
	"encoding/binary"
	"math"
	"slices"
	"unicode/utf16"

	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
)

// byteOrder fixes the endianness used for all fixed-width primitive
// encodings. spec.md §9 leaves this implementation-defined; gpucache
// locks it to little-endian so that encode/decode round-trip exactly
// regardless of host architecture, at the cost of not being the "native"
// byte order on big-endian hosts. Determinism across machines matters
// more here than matching a hypothetical native representation, since
// cache blobs are already pinned to a single build by the version tag
// embedded in the device base key (spec.md §4.D).
var byteOrder = binary.LittleEndian

// Integer is the set of fixed-width integer types the codec can encode
// directly.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// WriteInteger serializes v as its raw little-endian bytes.
func WriteInteger[T Integer](sink Sink, v T) {
	switch binary.Size(v) {
	case 1:
		sink.Push([]byte{byte(v)})
	case 2:
		p := sink.Reserve(2)
		byteOrder.PutUint16(p, uint16(v))
	case 4:
		p := sink.Reserve(4)
		byteOrder.PutUint32(p, uint32(v))
	case 8:
		p := sink.Reserve(8)
		byteOrder.PutUint64(p, uint64(v))
	}
}

// ReadInteger is the inverse of WriteInteger.
func ReadInteger[T Integer](src *Source) (T, error) {
	var zero T
	switch binary.Size(zero) {
	case 1:
		p, err := src.Read(1)
		if err != nil {
			return zero, err
		}
		return T(p[0]), nil
	case 2:
		p, err := src.Read(2)
		if err != nil {
			return zero, err
		}
		return T(byteOrder.Uint16(p)), nil
	case 4:
		p, err := src.Read(4)
		if err != nil {
			return zero, err
		}
		return T(byteOrder.Uint32(p)), nil
	default:
		p, err := src.Read(8)
		if err != nil {
			return zero, err
		}
		return T(byteOrder.Uint64(p)), nil
	}
}

// WriteFloat32 serializes v as its raw IEEE-754 bits.
func WriteFloat32(sink Sink, v float32) {
	p := sink.Reserve(4)
	byteOrder.PutUint32(p, math.Float32bits(v))
}

// ReadFloat32 is the inverse of WriteFloat32.
func ReadFloat32(src *Source) (float32, error) {
	p, err := src.Read(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(byteOrder.Uint32(p)), nil
}

// WriteFloat64 serializes v as its raw IEEE-754 bits.
func WriteFloat64(sink Sink, v float64) {
	p := sink.Reserve(8)
	byteOrder.PutUint64(p, math.Float64bits(v))
}

// ReadFloat64 is the inverse of WriteFloat64.
func ReadFloat64(src *Source) (float64, error) {
	p, err := src.Read(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(byteOrder.Uint64(p)), nil
}

// WriteBool narrows v to a single byte, regardless of any distinct
// boolean-like type the caller passes (spec.md §4.C: "accept a distinct
// boolean-like type whose underlying storage may not be one byte").
func WriteBool[T ~bool](sink Sink, v T) {
	if v {
		sink.Push([]byte{1})
	} else {
		sink.Push([]byte{0})
	}
}

// ReadBool is the inverse of WriteBool.
func ReadBool(src *Source) (bool, error) {
	p, err := src.Read(1)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

// WriteCString serializes s as a null-terminated run of bytes, with no
// length prefix. It is used for the request type-name tag embedded in
// cache keys (spec.md §4.D).
func WriteCString(sink Sink, s string) {
	sink.Push([]byte(s))
	sink.Push([]byte{0})
}

// ReadCString is the inverse of WriteCString.
func ReadCString(src *Source) (string, error) {
	var out []byte
	for {
		p, err := src.Read(1)
		if err != nil {
			return "", err
		}
		if p[0] == 0 {
			return string(out), nil
		}
		out = append(out, p[0])
	}
}

// writeLength writes the fixed-width uint64 that prefixes every
// length-prefixed encoding (strings, blobs, iterables). spec.md §6 notes
// that the reference design uses the platform's native usize width;
// gpucache fixes it to uint64 for determinism across builds of differing
// pointer width, documented as an explicit deviation in DESIGN.md.
func writeLength(sink Sink, n int) {
	WriteInteger[uint64](sink, uint64(n))
}

func readLength(src *Source) (int, error) {
	n, err := ReadInteger[uint64](src)
	if err != nil {
		return 0, err
	}
	if n > uint64(src.Remaining()) {
		// Reject implausibly large lengths before attempting to allocate
		// a slice of that size.
		return 0, NewTruncatedError(int(n), src.Remaining())
	}
	return int(n), nil
}

// WriteString serializes s as a length followed by its raw UTF-8 bytes,
// with no trailing null.
func WriteString(sink Sink, s string) {
	writeLength(sink, len(s))
	sink.Push([]byte(s))
}

// ReadString is the inverse of WriteString.
func ReadString(src *Source) (string, error) {
	n, err := readLength(src)
	if err != nil {
		return "", err
	}
	p, err := src.Read(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// WriteWideString serializes s as a length in UTF-16 code units followed
// by the raw code units.
func WriteWideString(sink Sink, s string) {
	units := utf16.Encode([]rune(s))
	writeLength(sink, len(units))
	for _, u := range units {
		WriteInteger[uint16](sink, u)
	}
}

// ReadWideString is the inverse of WriteWideString.
func ReadWideString(src *Source) (string, error) {
	n, err := readLength(src)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		u, err := ReadInteger[uint16](src)
		if err != nil {
			return "", err
		}
		units[i] = u
	}
	return string(utf16.Decode(units)), nil
}

// WriteBlob serializes b as a length followed by its contents.
func WriteBlob(sink Sink, b *blob.Blob) {
	writeLength(sink, b.Size())
	if b.Size() > 0 {
		sink.Push(b.Data())
	}
}

// ReadBlob is the inverse of WriteBlob.
func ReadBlob(src *Source) (*blob.Blob, error) {
	n, err := readLength(src)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return blob.Empty, nil
	}
	p, err := src.Read(n)
	if err != nil {
		return nil, err
	}
	return blob.FromVectorBytes(p), nil
}

// WriteSlice serializes a length followed by the concatenated
// serialization of each element, in iteration order. It backs both
// "Iterable of T" and "ordered sequences" from spec.md §4.C.
func WriteSlice[T any](sink Sink, items []T, writeElem func(Sink, T)) {
	writeLength(sink, len(items))
	for _, item := range items {
		writeElem(sink, item)
	}
}

// ReadSlice is the inverse of WriteSlice.
func ReadSlice[T any](src *Source, readElem func(*Source) (T, error)) ([]T, error) {
	n, err := readLength(src)
	if err != nil {
		return nil, err
	}
	items := make([]T, n)
	for i := range items {
		v, err := readElem(src)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

// WriteIterable constructs a slice from a (ptr, count) style iterator and
// streams it, the Go analogue of spec.md's "helper constructor wraps
// (ptr, count) into an iterable value".
func WriteIterable[T any](sink Sink, next func() (T, bool), writeElem func(Sink, T)) {
	var items []T
	for {
		v, ok := next()
		if !ok {
			break
		}
		items = append(items, v)
	}
	WriteSlice(sink, items, writeElem)
}

// WriteSet serializes an unordered set as an ordered sequence: the keys
// are snapshot-sorted before being emitted, length-prefixed. This is a
// hard requirement (spec.md §4.C): without the sort, two sets with equal
// logical contents but different insertion/iteration order would produce
// different keys.
func WriteSet[T cmp.Ordered](sink Sink, set map[T]struct{}, writeElem func(Sink, T)) {
	keys := make([]T, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	WriteSlice(sink, keys, writeElem)
}

// ReadSet is the inverse of WriteSet.
func ReadSet[T cmp.Ordered](src *Source, readElem func(*Source) (T, error)) (map[T]struct{}, error) {
	keys, err := ReadSlice(src, readElem)
	if err != nil {
		return nil, err
	}
	set := make(map[T]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// mapEntry is used internally by WriteMap/ReadMap to sort key/value pairs
// by key before emitting them.
type mapEntry[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// WriteMap serializes an unordered associative container keyed on an
// orderable key type as an ordered sequence: entries are snapshot-sorted
// by key, then emitted length-prefixed (spec.md §4.C, §8 scenario S6).
func WriteMap[K cmp.Ordered, V any](sink Sink, m map[K]V, writeKey func(Sink, K), writeValue func(Sink, V)) {
	entries := make([]mapEntry[K, V], 0, len(m))
	for k, v := range m {
		entries = append(entries, mapEntry[K, V]{Key: k, Value: v})
	}
	slices.SortFunc(entries, func(a, b mapEntry[K, V]) int { return cmp.Compare(a.Key, b.Key) })
	writeLength(sink, len(entries))
	for _, e := range entries {
		writeKey(sink, e.Key)
		writeValue(sink, e.Value)
	}
}

// ReadMap is the inverse of WriteMap.
func ReadMap[K cmp.Ordered, V any](src *Source, readKey func(*Source) (K, error), readValue func(*Source) (V, error)) (map[K]V, error) {
	n, err := readLength(src)
	if err != nil {
		return nil, err
	}
	m := make(map[K]V, n)
	for i := 0; i < n; i++ {
		k, err := readKey(src)
		if err != nil {
			return nil, err
		}
		v, err := readValue(src)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// WriteOptional serializes a one-byte presence tag followed by the
// payload when present.
func WriteOptional[T any](sink Sink, present bool, value T, writeValue func(Sink, T)) {
	WriteBool(sink, present)
	if present {
		writeValue(sink, value)
	}
}

// ReadOptional is the inverse of WriteOptional.
func ReadOptional[T any](src *Source, readValue func(*Source) (T, error)) (T, bool, error) {
	var zero T
	present, err := ReadBool(src)
	if err != nil {
		return zero, false, err
	}
	if !present {
		return zero, false, nil
	}
	v, err := readValue(src)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// WriteBitset serializes exactly ceil(len(bits)/8) bytes in little-endian
// bit order.
func WriteBitset(sink Sink, bits []bool) {
	n := (len(bits) + 7) / 8
	p := sink.Reserve(n)
	for i, b := range bits {
		if b {
			p[i/8] |= 1 << uint(i%8)
		}
	}
}

// ReadBitset is the inverse of WriteBitset; width is the number of bits
// originally written.
func ReadBitset(src *Source, width int) ([]bool, error) {
	n := (width + 7) / 8
	p, err := src.Read(n)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, width)
	for i := range bits {
		bits[i] = p[i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

// Unkeyed is the "unkeyed wrapper" of spec.md §4.C: a type-level marker
// whose serialization emits zero bytes regardless of content, used to
// smuggle non-serializable data through a CacheRequest without affecting
// the cache key. It is the Go analogue of Dawn's
// CacheKey::UnsafeUnkeyedValue<T>.
type Unkeyed[T any] struct {
	Value T
}

// NewUnkeyed wraps value as an Unkeyed field.
func NewUnkeyed[T any](value T) Unkeyed[T] {
	return Unkeyed[T]{Value: value}
}

// WriteUnkeyed emits zero bytes for u, regardless of u.Value.
func WriteUnkeyed[T any](sink Sink, u Unkeyed[T]) {
	// Intentionally a no-op: unkeyed fields never contribute key bytes.
}
