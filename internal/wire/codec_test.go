package wire

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
)

func newLoopbackPair(size int) (*iobuf.IOBuf, *iobuf.IOBuf) {
	// TX writes straight into a slice that RX's fill callback copies
	// from, modeling a zero-latency transport for round-trip tests.
	shared := make([]byte, 0, size)
	tx := iobuf.New(size, iobuf.TX, nil, func(b *iobuf.IOBuf) status.Status {
		view, ok := b.Peek(b.Avail())
		if !ok {
			return status.OK
		}
		shared = append(shared, view...)
		b.SkipRead(len(view))
		return status.OK
	})
	rx := iobuf.New(size, iobuf.RX, func(b *iobuf.IOBuf, min int, timeout time.Duration) status.Status {
		view, ok := b.Grow(len(shared))
		if !ok {
			return status.Resources
		}
		copy(view, shared)
		shared = shared[:0]
		return status.OK
	}, nil)
	return tx, rx
}

func TestScalarRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(64)
	var host [4]byte
	binary.LittleEndian.PutUint32(host[:], 0xDEADBEEF)
	st := WriteScalar(tx, Uint32, LittleEndian, host[:])
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, tx.Drain())

	arg, st := ReadScalar(rx, Uint32, LittleEndian, time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, host[:], arg.Value)
}

func TestScalarRoundTripBigEndianSwap(t *testing.T) {
	tx, rx := newLoopbackPair(64)
	var host [4]byte
	binary.LittleEndian.PutUint32(host[:], 0x01020304)
	require.Equal(t, status.OK, WriteScalar(tx, Uint32, BigEndian, host[:]))
	require.Equal(t, status.OK, tx.Drain())

	arg, st := ReadScalar(rx, Uint32, BigEndian, time.Second)
	require.Equal(t, status.OK, st)
	// round trip through a swap must reproduce the original host value
	assert.Equal(t, host[:], arg.Value)
}

func TestStringRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(64)
	require.Equal(t, status.OK, WriteString(tx, LittleEndian, []byte("hello")))
	require.Equal(t, status.OK, tx.Drain())

	arg, st := ReadString(rx, String, LittleEndian, time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, "hello", string(arg.Value))
}

func TestSignatureRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(64)
	require.Equal(t, status.OK, WriteSignature(tx, []byte("a(si)")))
	require.Equal(t, status.OK, tx.Drain())

	arg, st := ReadSignature(rx, time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, "a(si)", string(arg.Value))
}

func TestArrayOfScalarRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(128)
	patch, st := WriteArrayHeader(tx, LittleEndian, 4)
	require.Equal(t, status.OK, st)
	for _, v := range []uint32{1, 2, 3} {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		require.Equal(t, status.OK, WriteScalar(tx, Uint32, LittleEndian, b[:]))
	}
	require.Equal(t, status.OK, patch.Close())
	require.Equal(t, status.OK, tx.Drain())

	arg, st := ReadArrayHeader(rx, LittleEndian, "u", time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, 12, arg.ArrayLen)
	assert.Len(t, arg.Value, 12)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(arg.Value[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(arg.Value[4:8]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(arg.Value[8:12]))
}

func TestArrayLengthExcludesLeadingPad(t *testing.T) {
	tx, _ := newLoopbackPair(128)
	// write five bytes first so the length field lands at offset 8 and
	// a 4-byte pad separates it from the 8-byte-aligned element
	require.Equal(t, status.OK, WriteScalar(tx, Uint32, LittleEndian, []byte{0, 0, 0, 0}))
	require.Equal(t, status.OK, WriteScalar(tx, Byte, LittleEndian, []byte{0xAA}))
	patch, st := WriteArrayHeader(tx, LittleEndian, 8)
	require.Equal(t, status.OK, st)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 42)
	require.Equal(t, status.OK, WriteScalar(tx, Uint64, LittleEndian, b[:]))
	require.Equal(t, status.OK, patch.Close())

	n := binary.LittleEndian.Uint32(tx.Bytes()[patch.lenPos : patch.lenPos+4])
	assert.Equal(t, uint32(8), n, "length must count only the element payload, not the pad before it")
}

func TestStructOpenAligns8(t *testing.T) {
	tx, _ := newLoopbackPair(64)
	require.Equal(t, status.OK, WriteScalar(tx, Byte, LittleEndian, []byte{1}))
	require.Equal(t, status.OK, WriteStructOpen(tx))
	assert.Equal(t, 8, tx.WritePos())
}
