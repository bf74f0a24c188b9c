package message

import (
	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// peekType reports the next type character the cursor expects, without
// consuming it. Selection order: a pending variant's inline signature,
// then the innermost open container, then the message's top-level body
// signature. An array container's element type is never consumed (it
// is reused for every element); struct and dict-entry members are
// consumed left to right. An RX array reports status.NoMore once its
// payload bytes have all been read, or at once when its scalar elements
// were returned whole as the array's Value.
func (m *Message) peekType() (byte, status.Status) {
	if m.variantSig != "" {
		return m.variantSig[0], status.OK
	}
	if m.container != nil {
		c := m.container
		if c.Category == wire.CategoryArray && m.buf.Direction() == iobuf.RX &&
			(c.Value != nil || m.buf.ReadPos() >= c.ArrayDataStart+c.ArrayLen) {
			return 0, status.NoMore
		}
		if len(m.container.Sig) == 0 {
			return 0, status.NoMore
		}
		return m.container.Sig[0], status.OK
	}
	if len(m.sigCursor) == 0 {
		return 0, status.NoMore
	}
	return m.sigCursor[0], status.OK
}

// advance consumes n characters from whichever cursor peekType read
// from. Array containers never advance: their Sig stays fixed and
// exhaustion is tracked by byte range (RX) or an explicit close call
// (TX), not by shrinking the signature.
func (m *Message) advance(n int) {
	if m.variantSig != "" {
		m.variantSig = m.variantSig[n:]
		return
	}
	if m.container != nil {
		if m.container.Category == wire.CategoryArray {
			return
		}
		m.container.Sig = m.container.Sig[n:]
		return
	}
	m.sigCursor = m.sigCursor[n:]
}

// pushContainer opens a new innermost container, chaining it above the
// current one.
func (m *Message) pushContainer(c *wire.Arg) {
	c.Outer = m.container
	m.container = c
}

// popContainer closes the innermost container, returning to its
// enclosing one (or top level).
func (m *Message) popContainer() status.Status {
	if m.container == nil {
		return status.NoMore
	}
	m.container = m.container.Outer
	return status.OK
}
