// Package iobuf implements the fixed-size, dual-cursor I/O region that
// every higher layer of the bus client marshals into or unmarshals out
// of. It never allocates beyond its initial backing array: callers must
// reuse one IOBuf per direction (RX/TX) for the lifetime of a bus
// attachment, matching the "single reusable I/O buffer" constraint in
// the wire-format design.
package iobuf

import (
	"time"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// Direction distinguishes a receive buffer (filled from the transport)
// from a transmit buffer (drained to the transport).
type Direction int

const (
	RX Direction = iota
	TX
)

// FillFunc reads from the transport into buf, advancing its write
// cursor by at least min bytes (or returning a non-OK Status). It is
// given the remaining time budget for the call.
type FillFunc func(buf *IOBuf, min int, timeout time.Duration) status.Status

// DrainFunc writes buf's unconsumed bytes ([readCursor, writeCursor))
// to the transport, advancing the read cursor past whatever it wrote.
type DrainFunc func(buf *IOBuf) status.Status

// IOBuf is a fixed byte region with an insertion cursor (write) and a
// consumption cursor (read). Invariant: 0 <= readCursor <= writeCursor
// <= len(data).
type IOBuf struct {
	data      []byte
	readPos   int
	writePos  int
	direction Direction
	fill      FillFunc
	drain     DrainFunc
}

// New allocates an IOBuf backed by a region of the given size. fill and
// drain may be nil for buffers that are only ever used in-memory (e.g.
// a name-service packet being composed locally before a single manual
// send).
func New(size int, dir Direction, fill FillFunc, drain DrainFunc) *IOBuf {
	return &IOBuf{
		data:      make([]byte, size),
		direction: dir,
		fill:      fill,
		drain:     drain,
	}
}

// Direction reports whether this is an RX or TX buffer.
func (b *IOBuf) Direction() Direction { return b.direction }

// Size returns the fixed capacity of the backing region.
func (b *IOBuf) Size() int { return len(b.data) }

// Avail returns the number of unconsumed bytes available to read.
func (b *IOBuf) Avail() int { return b.writePos - b.readPos }

// Space returns the number of bytes still free for writing.
func (b *IOBuf) Space() int { return len(b.data) - b.writePos }

// Consumed returns the number of bytes already read.
func (b *IOBuf) Consumed() int { return b.readPos }

// ReadPos returns the absolute offset of the read cursor from the
// buffer start. Alignment in the wire format is always measured from
// this start.
func (b *IOBuf) ReadPos() int { return b.readPos }

// WritePos returns the absolute offset of the write cursor.
func (b *IOBuf) WritePos() int { return b.writePos }

// Reset sets both cursors back to the start of the region.
func (b *IOBuf) Reset() {
	b.readPos = 0
	b.writePos = 0
}

// Rebase moves the pending [readPos, writePos) slice to the front of
// the region, discarding already-consumed bytes. Call this before a
// Fill that needs more contiguous space than remains at the tail.
func (b *IOBuf) Rebase() {
	if b.readPos == 0 {
		return
	}
	n := copy(b.data, b.data[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = n
}

// PadFor returns the number of padding bytes needed so that pos is
// aligned to align bytes (align is the natural alignment of a wire
// type: 1, 2, 4 or 8).
func PadFor(pos, align int) int {
	if align <= 1 {
		return 0
	}
	rem := pos % align
	if rem == 0 {
		return 0
	}
	return align - rem
}

// Fill ensures at least min bytes are available to read, invoking the
// fill callback as many times as needed within timeout. It returns
// ERR_RESOURCES immediately if min cannot possibly fit in the region
// even after a Rebase.
func (b *IOBuf) Fill(min int, timeout time.Duration) status.Status {
	if min <= b.Avail() {
		return status.OK
	}
	if min > len(b.data)-b.readPos {
		b.Rebase()
	}
	if min > len(b.data) {
		return status.Resources
	}
	if b.fill == nil {
		return status.Resources
	}
	deadline := time.Now().Add(timeout)
	for b.Avail() < min {
		remaining := time.Until(deadline)
		if timeout > 0 && remaining <= 0 {
			return status.Timeout
		}
		st := b.fill(b, min-b.Avail(), remaining)
		if st != status.OK {
			return st
		}
	}
	return status.OK
}

// FillAfterHeader is like Fill but escalates ERR_TIMEOUT to ERR_READ:
// once a message's header bytes have started arriving, a further
// timeout means the stream desynchronized mid-message rather than the
// peer simply being idle, and is unrecoverable.
func (b *IOBuf) FillAfterHeader(min int, timeout time.Duration) status.Status {
	st := b.Fill(min, timeout)
	if st == status.Timeout {
		return status.Read
	}
	return st
}

// Drain invokes the drain callback once, writing out whatever bytes
// remain unconsumed.
func (b *IOBuf) Drain() status.Status {
	if b.drain == nil {
		return status.Resources
	}
	return b.drain(b)
}

// Grow reserves n bytes at the write cursor and returns a slice view
// over them, advancing the write cursor. Returns ok=false (no mutation)
// if the region does not have n bytes of free space.
func (b *IOBuf) Grow(n int) (view []byte, ok bool) {
	if n < 0 || b.writePos+n > len(b.data) {
		return nil, false
	}
	view = b.data[b.writePos : b.writePos+n]
	b.writePos += n
	return view, true
}

// Peek returns a view over the next n unconsumed bytes without
// advancing the read cursor.
func (b *IOBuf) Peek(n int) (view []byte, ok bool) {
	if n < 0 || b.readPos+n > b.writePos {
		return nil, false
	}
	return b.data[b.readPos : b.readPos+n], true
}

// Consume returns a view over the next n unconsumed bytes and advances
// the read cursor past them.
func (b *IOBuf) Consume(n int) (view []byte, ok bool) {
	view, ok = b.Peek(n)
	if !ok {
		return nil, false
	}
	b.readPos += n
	return view, true
}

// SkipRead advances the read cursor by n bytes without returning a
// view (used to skip padding).
func (b *IOBuf) SkipRead(n int) bool {
	if b.readPos+n > b.writePos {
		return false
	}
	b.readPos += n
	return true
}

// WriteZeros appends n zero bytes at the write cursor (used for header
// and alignment padding).
func (b *IOBuf) WriteZeros(n int) bool {
	view, ok := b.Grow(n)
	if !ok {
		return false
	}
	for i := range view {
		view[i] = 0
	}
	return true
}

// Write appends p at the write cursor, advancing it.
func (b *IOBuf) Write(p []byte) bool {
	view, ok := b.Grow(len(p))
	if !ok {
		return false
	}
	copy(view, p)
	return true
}

// Bytes returns the full backing array. Used by the secure envelope,
// which operates on the buffer as a contiguous region rather than
// through the cursor API.
func (b *IOBuf) Bytes() []byte { return b.data }

// SetWritePos forcibly repositions the write cursor. Used after the
// secure envelope grows the body in place for the MAC.
func (b *IOBuf) SetWritePos(pos int) { b.writePos = pos }

// SetReadPos forcibly repositions the read cursor. Used by CloseMsg to
// account for bytes drained directly from the transport rather than
// through Consume.
func (b *IOBuf) SetReadPos(pos int) { b.readPos = pos }
