package stream_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbarn/gpucache/pkg/gpucache/blob"
	"github.com/buildbarn/gpucache/pkg/gpucache/stream"
)

func roundTrip(t *testing.T, write func(stream.Sink), read func(*stream.Source) error) {
	t.Helper()
	sink := stream.NewByteSink()
	write(sink)
	src := stream.NewSource(sink.ToBlob())
	require.NoError(t, read(src))
	require.Equal(t, 0, src.Remaining())
}

func TestIntegerRoundTrip(t *testing.T) {
	roundTrip(t,
		func(s stream.Sink) { stream.WriteInteger[int32](s, -42) },
		func(src *stream.Source) error {
			v, err := stream.ReadInteger[int32](src)
			require.NoError(t, err)
			require.Equal(t, int32(-42), v)
			return err
		})
}

func TestFloat32RoundTrip(t *testing.T) {
	roundTrip(t,
		func(s stream.Sink) { stream.WriteFloat32(s, 0.2) },
		func(src *stream.Source) error {
			v, err := stream.ReadFloat32(src)
			require.NoError(t, err)
			require.Equal(t, float32(0.2), v)
			return err
		})
}

func TestBoolRoundTrip(t *testing.T) {
	type flag bool
	sink := stream.NewByteSink()
	stream.WriteBool(sink, flag(true))
	src := stream.NewSource(sink.ToBlob())
	v, err := stream.ReadBool(src)
	require.NoError(t, err)
	require.True(t, v)
}

func TestCStringRoundTrip(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteCString(sink, "CacheRequestForTesting")
	src := stream.NewSource(sink.ToBlob())
	v, err := stream.ReadCString(src)
	require.NoError(t, err)
	require.Equal(t, "CacheRequestForTesting", v)
}

func TestStringRoundTripNoTrailingNull(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteString(sink, "hello")
	require.Equal(t, 8+5, sink.Len())
	src := stream.NewSource(sink.ToBlob())
	v, err := stream.ReadString(src)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestWideStringRoundTrip(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteWideString(sink, "héllo")
	src := stream.NewSource(sink.ToBlob())
	v, err := stream.ReadWideString(src)
	require.NoError(t, err)
	require.Equal(t, "héllo", v)
}

func TestBlobRoundTrip(t *testing.T) {
	sink := stream.NewByteSink()
	b := blob.FromVectorBytes([]byte("payload"))
	stream.WriteBlob(sink, b)
	src := stream.NewSource(sink.ToBlob())
	out, err := stream.ReadBlob(src)
	require.NoError(t, err)
	require.Equal(t, "payload", string(out.Data()))
}

func TestSliceRoundTrip(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteSlice(sink, []uint32{3, 4, 5}, stream.WriteInteger[uint32])
	src := stream.NewSource(sink.ToBlob())
	out, err := stream.ReadSlice(src, stream.ReadInteger[uint32])
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 5}, out)
}

func TestMapUnorderedDeterminism(t *testing.T) {
	m1 := map[uint32]string{4: "hello", 1: "world", 7: "test", 3: "data"}
	m2 := map[uint32]string{1: "world", 3: "data", 4: "hello", 7: "test"}

	sink1 := stream.NewByteSink()
	stream.WriteMap(sink1, m1, stream.WriteInteger[uint32], stream.WriteString)
	sink2 := stream.NewByteSink()
	stream.WriteMap(sink2, m2, stream.WriteInteger[uint32], stream.WriteString)

	require.Equal(t, sink1.Bytes(), sink2.Bytes())
}

func TestSetSnapshotSorted(t *testing.T) {
	set := map[uint32]struct{}{5: {}, 1: {}, 3: {}}
	sink := stream.NewByteSink()
	stream.WriteSet(sink, set, stream.WriteInteger[uint32])
	sorted := stream.NewByteSink()
	stream.WriteSlice(sorted, []uint32{1, 3, 5}, stream.WriteInteger[uint32])
	require.Equal(t, sorted.Bytes(), sink.Bytes())
	src := stream.NewSource(sink.ToBlob())
	out, err := stream.ReadSet(src, stream.ReadInteger[uint32])
	require.NoError(t, err)
	require.Equal(t, set, out)
}

func TestOptionalRoundTrip(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteOptional(sink, true, int32(7), stream.WriteInteger[int32])
	src := stream.NewSource(sink.ToBlob())
	v, present, err := stream.ReadOptional(src, stream.ReadInteger[int32])
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, int32(7), v)

	sinkAbsent := stream.NewByteSink()
	stream.WriteOptional[int32](sinkAbsent, false, 0, stream.WriteInteger[int32])
	require.Equal(t, 1, sinkAbsent.Len())
}

func TestBitsetRoundTrip(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	sink := stream.NewByteSink()
	stream.WriteBitset(sink, bits)
	require.Equal(t, 2, sink.Len())
	src := stream.NewSource(sink.ToBlob())
	out, err := stream.ReadBitset(src, len(bits))
	require.NoError(t, err)
	require.Equal(t, bits, out)
}

func TestUnkeyedEmitsNoBytes(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteUnkeyed(sink, stream.NewUnkeyed(42))
	require.Equal(t, 0, sink.Len())
}

func TestTruncatedSourceFails(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteInteger[uint32](sink, 1)
	src := stream.NewSource(sink.ToBlob())
	_, err := stream.ReadInteger[uint64](src)
	require.Error(t, err)
}

func TestTruncatedLengthPrefixFails(t *testing.T) {
	sink := stream.NewByteSink()
	stream.WriteInteger[uint64](sink, 1000) // claims 1000 bytes follow, but none do
	src := stream.NewSource(sink.ToBlob())
	_, err := stream.ReadString(src)
	require.Error(t, err)
}
