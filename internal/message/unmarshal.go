package message

import (
	"encoding/binary"
	"time"

	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// skipValue consumes and discards one complete value of the given
// signature, used when an unrecognized header field id is encountered:
// its VARIANT must still be fully consumed so the cursor lands on the
// next field.
func skipValue(b *iobuf.IOBuf, endian wire.Endianness, sig string, timeout time.Duration) status.Status {
	if sig == "" {
		return status.Signature
	}
	info, ok := wire.Lookup(sig[0])
	if !ok {
		return status.Signature
	}
	switch info.Category {
	case wire.CategoryScalar:
		_, st := wire.ReadScalar(b, sig[0], endian, timeout)
		return st
	case wire.CategoryString:
		_, st := wire.ReadString(b, sig[0], endian, timeout)
		return st
	case wire.CategorySignature:
		_, st := wire.ReadSignature(b, timeout)
		return st
	case wire.CategoryVariant:
		v, st := wire.ReadVariantHeader(b, timeout)
		if st != status.OK {
			return st
		}
		return skipValue(b, endian, v.Sig, timeout)
	case wire.CategoryArray:
		elemSig := sig[1:]
		n, lst := wire.CompleteTypeLen(elemSig)
		if lst != status.OK {
			return lst
		}
		elemSig = elemSig[:n]
		arr, st := wire.ReadArrayHeader(b, endian, elemSig, timeout)
		if st != status.OK {
			return st
		}
		if arr.Value != nil {
			return status.OK // scalar payload already fully consumed
		}
		end := arr.ArrayDataStart + arr.ArrayLen
		for b.ReadPos() < end {
			if st := skipValue(b, endian, elemSig, timeout); st != status.OK {
				return st
			}
		}
		return status.OK
	case wire.CategoryStruct, wire.CategoryDictEntry:
		inner := sig[1 : len(sig)-1]
		var st status.Status
		if sig[0] == wire.StructOpen {
			_, st = wire.ReadStructOpen(b, inner, timeout)
		} else {
			_, st = wire.ReadDictOpen(b, inner, timeout)
		}
		if st != status.OK {
			return st
		}
		for len(inner) > 0 {
			n, lst := wire.CompleteTypeLen(inner)
			if lst != status.OK {
				return lst
			}
			if st := skipValue(b, endian, inner[:n], timeout); st != status.OK {
				return st
			}
			inner = inner[n:]
		}
		return status.OK
	}
	return status.Signature
}

// decodeHeaderFields walks the header-fields array, storing known
// fields onto m and skipping unknown ones wholesale.
func decodeHeaderFields(m *Message, arr *wire.Arg, timeout time.Duration) status.Status {
	endian := m.Header.Endianness
	end := arr.ArrayDataStart + arr.ArrayLen
	for m.buf.ReadPos() < end {
		if _, st := wire.ReadStructOpen(m.buf, "", timeout); st != status.OK {
			return st
		}
		idArg, st := wire.ReadScalar(m.buf, wire.Byte, endian, timeout)
		if st != status.OK {
			return st
		}
		id := headerFieldID(idArg.Value[0])
		varArg, st := wire.ReadVariantHeader(m.buf, timeout)
		if st != status.OK {
			return st
		}
		wantType, known := fieldType[id]
		if !known || varArg.Sig != string(wantType) {
			if st := skipValue(m.buf, endian, varArg.Sig, timeout); st != status.OK {
				return st
			}
			continue
		}
		switch id {
		case fieldObjPath:
			v, st := wire.ReadString(m.buf, wire.ObjPath, endian, timeout)
			if st != status.OK {
				return st
			}
			m.ObjPath = string(v.Value)
		case fieldInterface:
			v, st := wire.ReadString(m.buf, wire.String, endian, timeout)
			if st != status.OK {
				return st
			}
			m.Iface = string(v.Value)
		case fieldMember:
			v, st := wire.ReadString(m.buf, wire.String, endian, timeout)
			if st != status.OK {
				return st
			}
			m.Member = string(v.Value)
		case fieldErrorName:
			v, st := wire.ReadString(m.buf, wire.String, endian, timeout)
			if st != status.OK {
				return st
			}
			m.ErrorName = string(v.Value)
		case fieldReplySerial:
			v, st := wire.ReadScalar(m.buf, wire.Uint32, endian, timeout)
			if st != status.OK {
				return st
			}
			m.ReplySerial = binary.LittleEndian.Uint32(v.Value)
		case fieldDestination:
			v, st := wire.ReadString(m.buf, wire.String, endian, timeout)
			if st != status.OK {
				return st
			}
			m.Destination = string(v.Value)
		case fieldSender:
			v, st := wire.ReadString(m.buf, wire.String, endian, timeout)
			if st != status.OK {
				return st
			}
			m.Sender = string(v.Value)
		case fieldSignature:
			v, st := wire.ReadSignature(m.buf, timeout)
			if st != status.OK {
				return st
			}
			m.Signature = string(v.Value)
		case fieldTimestamp:
			v, st := wire.ReadScalar(m.buf, wire.Uint32, endian, timeout)
			if st != status.OK {
				return st
			}
			m.Timestamp = binary.LittleEndian.Uint32(v.Value)
		case fieldTTL:
			v, st := wire.ReadScalar(m.buf, wire.Uint32, endian, timeout)
			if st != status.OK {
				return st
			}
			m.TTL = binary.LittleEndian.Uint32(v.Value)
		case fieldSessionID:
			v, st := wire.ReadScalar(m.buf, wire.Uint32, endian, timeout)
			if st != status.OK {
				return st
			}
			m.SessionID = binary.LittleEndian.Uint32(v.Value)
		}
	}
	return status.OK
}

// UnmarshalMsg reads and parses the next message from rx: the fixed
// header, then the header-fields array, then (if FLAG_ENCRYPTED is
// set) decrypts the body through env before the caller reads any
// arguments. introspector resolves the parsed header fields to a
// logical message id; a nil introspector skips that step (used for
// name-service-only attachments that never see bus messages).
//
// If the wait for the header times out and introspector reports an
// outstanding method call has exceeded its deadline, UnmarshalMsg
// synthesizes a virtual ERROR message for that call instead of
// propagating the timeout, so the caller can process an expired reply
// the same way it processes any other received message.
func UnmarshalMsg(rx *iobuf.IOBuf, env Envelope, introspector Introspector, timeout time.Duration) (*Message, status.Status) {
	rx.Rebase()
	if st := rx.Fill(HeaderSize, timeout); st != status.OK {
		if st == status.Timeout && introspector != nil {
			if serial, timedOut := introspector.TimedOutMethodCall(); timedOut {
				return timedOutReply(serial), status.OK
			}
		}
		return nil, st
	}
	fixedView, ok := rx.Peek(HeaderSize)
	if !ok {
		return nil, status.Read
	}
	h, st := decodeFixed(fixedView)
	if st != status.OK {
		return nil, status.Read
	}
	if h.ProtoVer > ProtocolVersion {
		return nil, status.Invalid
	}
	rx.SkipRead(HeaderSize)

	m := &Message{Header: h, buf: rx, timeout: timeout}

	if st := rx.FillAfterHeader(int(h.HeaderLen), timeout); st != status.OK {
		return nil, st
	}
	fieldsStart := rx.ReadPos()
	arr, st := wire.ReadArrayHeader(rx, h.Endianness, "(yv)", timeout)
	if st != status.OK {
		return nil, status.Unmarshal
	}
	if arr.ArrayDataStart+arr.ArrayLen > fieldsStart+int(h.HeaderLen) {
		return nil, status.Unmarshal
	}
	if st := decodeHeaderFields(m, arr, timeout); st != status.OK {
		return nil, status.Unmarshal
	}
	// consume any trailing bytes the sender counted in HeaderLen but
	// that decodeHeaderFields didn't need (forward-compatible growth).
	if skip := (fieldsStart + int(h.HeaderLen)) - rx.ReadPos(); skip > 0 {
		rx.SkipRead(skip)
	}
	if pad := iobuf.PadFor(rx.ReadPos(), 8); pad > 0 {
		if st := rx.FillAfterHeader(pad, timeout); st != status.OK {
			return nil, st
		}
		rx.SkipRead(pad)
	}

	if h.Flags&FlagEncrypted != 0 {
		if env == nil {
			return nil, status.Security
		}
		if wire.NeedsSwap(h.Endianness) {
			return nil, status.Security
		}
		// Snapshot the whole pre-body prefix now: it is the AAD the
		// sender sealed against (the fixed header plus header fields
		// plus pad, mirroring DeliverMsg's bodyStart), and the body
		// Fill below may Rebase the buffer and discard these
		// already-consumed bytes from the live backing array.
		hdr := append([]byte(nil), rx.Bytes()[:rx.ReadPos()]...)
		if st := rx.FillAfterHeader(int(h.BodyLen), timeout); st != status.OK {
			return nil, st
		}
		isSignal := h.Type == Signal && m.Destination == ""
		plainLen, st := env.Decrypt(hdr, rx, h.Serial, m.SessionID, m.Destination, isSignal)
		if st != status.OK {
			return nil, st
		}
		h.BodyLen = uint32(plainLen)
		m.Header.BodyLen = h.BodyLen
	}

	// The wire protocol calls this flag NO_AUTO_START; toggle it here
	// (after decryption, so an encrypted message's MAC is still
	// computed over the wire-sense bit) so the API default is 0.
	h.Flags ^= FlagNoAutoStart
	m.Header.Flags = h.Flags

	if introspector != nil {
		isReply := h.Type == MethodReturn || h.Type == Error
		m.MsgID = introspector.IdentifyMessage(m.ObjPath, m.Iface, m.Member, m.ReplySerial, isReply)
	}

	m.sigCursor = m.Signature
	m.bodyRemaining = int(h.BodyLen)
	m.state = stateHeaderDone
	return m, status.OK
}

// timedOutReply builds the virtual ERROR message UnmarshalMsg returns
// in place of a timed-out method-call reply: an empty body, serial 1
// (the header's serial number can never legitimately be 0 or 1 on the
// wire, so this can never collide with a real message), and
// ErrTimeout naming the call that expired.
func timedOutReply(replySerial uint32) *Message {
	return &Message{
		Header:      Header{Type: Error, Serial: 1, ProtoVer: ProtocolVersion},
		ErrorName:   ErrTimeout,
		ReplySerial: replySerial,
		state:       stateDone,
	}
}

// UnmarshalArg reads one scalar/string/signature argument matching t
// from whichever cursor is active.
func (m *Message) UnmarshalArg(t byte) (*wire.Arg, status.Status) {
	if m.state == stateRaw {
		return nil, status.Invalid
	}
	want, st := m.peekType()
	if st != status.OK {
		return nil, st
	}
	if want != t {
		return nil, status.Unmarshal
	}
	info, ok := wire.Lookup(t)
	if !ok {
		return nil, status.Unmarshal
	}
	var arg *wire.Arg
	switch info.Category {
	case wire.CategoryScalar:
		arg, st = wire.ReadScalar(m.buf, t, m.Header.Endianness, m.timeout)
	case wire.CategoryString:
		arg, st = wire.ReadString(m.buf, t, m.Header.Endianness, m.timeout)
	case wire.CategorySignature:
		arg, st = wire.ReadSignature(m.buf, m.timeout)
	default:
		return nil, status.Unmarshal
	}
	if st != status.OK {
		return nil, st
	}
	m.advance(1)
	m.state = stateBodyInProgress
	return arg, status.OK
}

// UnmarshalVariant reads a variant's inline signature and opens it so
// the next UnmarshalArg call reads the one value it wraps.
func (m *Message) UnmarshalVariant() (string, status.Status) {
	want, st := m.peekType()
	if st != status.OK {
		return "", st
	}
	if want != wire.Variant {
		return "", status.Unmarshal
	}
	v, st := wire.ReadVariantHeader(m.buf, m.timeout)
	if st != status.OK {
		return "", st
	}
	m.advance(1)
	m.variantSig = v.Sig
	m.state = stateBodyInProgress
	return v.Sig, status.OK
}

// UnmarshalContainer opens an array, struct, or dict-entry for
// reading and pushes it as the innermost container.
func (m *Message) UnmarshalContainer(t byte) (*wire.Arg, status.Status) {
	want, st := m.peekType()
	if st != status.OK {
		return nil, st
	}
	if want != t {
		return nil, status.Unmarshal
	}
	sig := m.currentSig()
	var elemSig string
	var fullLen int
	if t == wire.Array {
		n, lst := wire.CompleteTypeLen(sig[1:])
		if lst != status.OK {
			return nil, lst
		}
		elemSig = sig[1 : 1+n]
		fullLen = 1 + n
	} else {
		n, lst := wire.CompleteTypeLen(sig)
		if lst != status.OK {
			return nil, lst
		}
		elemSig = sig[1 : n-1]
		fullLen = n
	}

	var arg *wire.Arg
	switch t {
	case wire.Array:
		arg, st = wire.ReadArrayHeader(m.buf, m.Header.Endianness, elemSig, m.timeout)
	case wire.StructOpen:
		arg, st = wire.ReadStructOpen(m.buf, elemSig, m.timeout)
	case wire.DictOpen:
		arg, st = wire.ReadDictOpen(m.buf, elemSig, m.timeout)
	default:
		return nil, status.Unmarshal
	}
	if st != status.OK {
		return nil, st
	}
	// The enclosing cursor must skip the whole container type (open
	// tag, element/member types, and close tag where applicable), not
	// just the opening tag, or it will misalign once this container
	// closes and control returns to it.
	m.advance(fullLen)
	arg.Outer = nil // pushContainer sets this
	m.pushContainer(arg)
	m.state = stateBodyInProgress
	return arg, status.OK
}

// currentSig returns the raw signature string the cursor is currently
// pointed at (used internally to slice out a container's inner type
// before opening it, since peekType only returns the first char).
func (m *Message) currentSig() string {
	if m.variantSig != "" {
		return m.variantSig
	}
	if m.container != nil {
		return m.container.Sig
	}
	return m.sigCursor
}

// UnmarshalCloseContainer closes the innermost open container,
// verifying an array was fully consumed or a struct/dict-entry's
// members were all read.
func (m *Message) UnmarshalCloseContainer() status.Status {
	c := m.container
	if c == nil {
		return status.NoMore
	}
	if c.Category == wire.CategoryArray {
		end := c.ArrayDataStart + c.ArrayLen
		if c.Value == nil && m.buf.ReadPos() < end {
			return status.Unmarshal
		}
	} else if len(c.Sig) != 0 {
		return status.Unmarshal
	}
	return m.popContainer()
}

// UnmarshalRaw switches the message permanently into raw mode: typed
// unmarshalling is disabled for the remainder of this message, and the
// caller takes over reading directly from the buffer. The first call
// aligns the cursor to whatever argument type the signature cursor was
// still pointing at (not a fixed boundary) before discarding it.
// Returns a view over up to maxLen of the remaining body bytes.
func (m *Message) UnmarshalRaw(maxLen int) ([]byte, status.Status) {
	if m.state != stateRaw {
		typ, st := m.peekType()
		if st != status.OK {
			return nil, status.Signature
		}
		info, ok := wire.Lookup(typ)
		if !ok {
			return nil, status.Signature
		}
		pad := iobuf.PadFor(m.buf.ReadPos(), info.Align)
		if pad > m.bodyRemaining {
			return nil, status.Unmarshal
		}
		if pad > 0 {
			if st := m.buf.FillAfterHeader(pad, m.timeout); st != status.OK {
				return nil, st
			}
			m.buf.SkipRead(pad)
			m.bodyRemaining -= pad
		}
		m.state = stateRaw
		m.sigCursor = ""
		m.container = nil
		m.variantSig = ""
	}
	if maxLen > m.bodyRemaining {
		maxLen = m.bodyRemaining
	}
	if maxLen <= 0 {
		return nil, status.EndOfData
	}
	if st := m.buf.FillAfterHeader(maxLen, m.timeout); st != status.OK {
		return nil, st
	}
	view, ok := m.buf.Consume(maxLen)
	if !ok {
		return nil, status.EndOfData
	}
	m.bodyRemaining -= maxLen
	return view, status.OK
}

// UnmarshalArgs is a variadic convenience for a run of basic-typed
// arguments at the current cursor position: sig lists each expected
// type character in order. Each type must exactly match the actual
// wire type or the whole call fails with ERR_UNMARSHAL, mirroring
// MarshalArgs's symmetric contract on the TX side.
func (m *Message) UnmarshalArgs(sig string) ([]*wire.Arg, status.Status) {
	args := make([]*wire.Arg, 0, len(sig))
	for i := 0; i < len(sig); i++ {
		if !wire.IsBasic(sig[i]) {
			return nil, status.Unmarshal
		}
		arg, st := m.UnmarshalArg(sig[i])
		if st != status.OK {
			return nil, st
		}
		args = append(args, arg)
	}
	return args, status.OK
}

// Close releases a received message, draining any unread body bytes so
// the buffer is positioned at the start of the next message. It is
// idempotent.
func (m *Message) Close() status.Status {
	if m.state == stateDone {
		return status.OK
	}
	for m.bodyRemaining > 0 {
		n := m.bodyRemaining
		const chunk = 4096
		if n > chunk {
			n = chunk
		}
		if st := m.buf.FillAfterHeader(n, m.timeout); st != status.OK {
			m.state = stateFailed
			return st
		}
		if _, ok := m.buf.Consume(n); !ok {
			m.state = stateFailed
			return status.Read
		}
		m.bodyRemaining -= n
	}
	m.state = stateDone
	return status.OK
}
