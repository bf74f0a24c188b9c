package message

import (
	"encoding/binary"

	"github.com/alljoyn-go/thinclient/internal/envelope"
	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// headerField is one optional (BYTE, VARIANT) entry pending marshal.
type headerField struct {
	id  headerFieldID
	typ byte
	str string
	u32 uint32
}

func strField(id headerFieldID, typ byte, v string) (headerField, bool) {
	if v == "" {
		return headerField{}, false
	}
	return headerField{id: id, typ: typ, str: v}, true
}

func u32Field(id headerFieldID, v uint32) (headerField, bool) {
	if v == 0 {
		return headerField{}, false
	}
	return headerField{id: id, typ: wire.Uint32, u32: v}, true
}

// marshalHeaderFields writes the header-fields array, a(yv), right
// after the fixed 16-byte header, and pads the cursor to an 8-byte
// boundary so the body starts aligned. It returns the byte length of
// the array itself (what HeaderLen records), not counting that
// trailing pad.
func marshalHeaderFields(b *iobuf.IOBuf, endian wire.Endianness, fields []headerField) (uint32, status.Status) {
	start := b.WritePos()
	patch, st := wire.WriteArrayHeader(b, endian, 8)
	if st != status.OK {
		return 0, st
	}
	for _, f := range fields {
		if st := wire.WriteStructOpen(b); st != status.OK {
			return 0, st
		}
		if st := wire.WriteScalar(b, wire.Byte, endian, []byte{byte(f.id)}); st != status.OK {
			return 0, st
		}
		if st := wire.WriteSignature(b, []byte{f.typ}); st != status.OK {
			return 0, st
		}
		switch f.typ {
		case wire.String, wire.ObjPath:
			if st := wire.WriteString(b, endian, []byte(f.str)); st != status.OK {
				return 0, st
			}
		case wire.Signature:
			if st := wire.WriteSignature(b, []byte(f.str)); st != status.OK {
				return 0, st
			}
		case wire.Uint32:
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], f.u32)
			if st := wire.WriteScalar(b, wire.Uint32, endian, buf[:]); st != status.OK {
				return 0, st
			}
		default:
			return 0, status.Marshal
		}
	}
	if st := patch.Close(); st != status.OK {
		return 0, st
	}
	headerLen := uint32(b.WritePos() - start)
	pad := iobuf.PadFor(b.WritePos(), 8)
	if !b.WriteZeros(pad) {
		return 0, status.Resources
	}
	return headerLen, status.OK
}

func newOutboundMessage(tx *iobuf.IOBuf, h Header, fields []headerField, sig string) (*Message, status.Status) {
	tx.Reset()
	// The wire protocol calls this flag NO_AUTO_START; toggle it here so
	// the API's default flags value (0) is the common case, mirroring
	// UnmarshalMsg's toggle back on the receive side.
	h.Flags ^= FlagNoAutoStart
	if st := encodeFixed(tx, h); st != status.OK {
		return nil, st
	}
	headerLen, st := marshalHeaderFields(tx, h.Endianness, fields)
	if st != status.OK {
		return nil, st
	}
	patchHeaderLen(tx, h.Endianness, headerLen)
	h.HeaderLen = headerLen
	m := &Message{
		Header:    h,
		buf:       tx,
		state:     stateHeaderDone,
		sigCursor: sig,
		Signature: sig,
	}
	for _, f := range fields {
		switch f.id {
		case fieldObjPath:
			m.ObjPath = f.str
		case fieldInterface:
			m.Iface = f.str
		case fieldMember:
			m.Member = f.str
		case fieldErrorName:
			m.ErrorName = f.str
		case fieldReplySerial:
			m.ReplySerial = f.u32
		case fieldDestination:
			m.Destination = f.str
		case fieldSender:
			m.Sender = f.str
		case fieldTimestamp:
			m.Timestamp = f.u32
		case fieldTTL:
			m.TTL = f.u32
		case fieldSessionID:
			m.SessionID = f.u32
		}
	}
	return m, status.OK
}

// MarshalMethodCall begins marshalling an outbound method call into tx,
// which is reset first. The caller then writes the body with
// MarshalArg/MarshalArgs/MarshalContainer before calling DeliverMsg.
func MarshalMethodCall(tx *iobuf.IOBuf, endian wire.Endianness, serial uint32, destination, objPath, iface, member, sig string, sessionID uint32, flags byte) (*Message, status.Status) {
	if objPath == "" || member == "" {
		return nil, status.Invalid
	}
	h := Header{Endianness: endian, Type: MethodCall, Flags: flags, ProtoVer: ProtocolVersion, Serial: serial}
	var fields []headerField
	if f, ok := strField(fieldObjPath, wire.ObjPath, objPath); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldInterface, wire.String, iface); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldMember, wire.String, member); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldDestination, wire.String, destination); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldSignature, wire.Signature, sig); ok {
		fields = append(fields, f)
	}
	if f, ok := u32Field(fieldSessionID, sessionID); ok {
		fields = append(fields, f)
	}
	return newOutboundMessage(tx, h, fields, sig)
}

// MarshalSignal begins marshalling an outbound signal.
func MarshalSignal(tx *iobuf.IOBuf, endian wire.Endianness, serial uint32, destination, objPath, iface, member, sig string, sessionID, ttl uint32, flags byte) (*Message, status.Status) {
	if objPath == "" || iface == "" || member == "" {
		return nil, status.Invalid
	}
	h := Header{Endianness: endian, Type: Signal, Flags: flags, ProtoVer: ProtocolVersion, Serial: serial}
	var fields []headerField
	if f, ok := strField(fieldObjPath, wire.ObjPath, objPath); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldInterface, wire.String, iface); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldMember, wire.String, member); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldDestination, wire.String, destination); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldSignature, wire.Signature, sig); ok {
		fields = append(fields, f)
	}
	if f, ok := u32Field(fieldSessionID, sessionID); ok {
		fields = append(fields, f)
	}
	if f, ok := u32Field(fieldTTL, ttl); ok {
		fields = append(fields, f)
	}
	return newOutboundMessage(tx, h, fields, sig)
}

// MarshalReplyMsg begins marshalling an outbound METHOD_RET.
func MarshalReplyMsg(tx *iobuf.IOBuf, endian wire.Endianness, serial, replySerial uint32, destination, sig string, sessionID uint32, flags byte) (*Message, status.Status) {
	if replySerial == 0 {
		return nil, status.Invalid
	}
	h := Header{Endianness: endian, Type: MethodReturn, Flags: flags, ProtoVer: ProtocolVersion, Serial: serial}
	fields := []headerField{{id: fieldReplySerial, typ: wire.Uint32, u32: replySerial}}
	if f, ok := strField(fieldDestination, wire.String, destination); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldSignature, wire.Signature, sig); ok {
		fields = append(fields, f)
	}
	if f, ok := u32Field(fieldSessionID, sessionID); ok {
		fields = append(fields, f)
	}
	return newOutboundMessage(tx, h, fields, sig)
}

// MarshalErrorMsg begins marshalling an outbound ERROR reply.
func MarshalErrorMsg(tx *iobuf.IOBuf, endian wire.Endianness, serial, replySerial uint32, destination, errorName, sig string, sessionID uint32, flags byte) (*Message, status.Status) {
	if replySerial == 0 || errorName == "" {
		return nil, status.Invalid
	}
	h := Header{Endianness: endian, Type: Error, Flags: flags, ProtoVer: ProtocolVersion, Serial: serial}
	fields := []headerField{
		{id: fieldReplySerial, typ: wire.Uint32, u32: replySerial},
		{id: fieldErrorName, typ: wire.String, str: errorName},
	}
	if f, ok := strField(fieldDestination, wire.String, destination); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldSignature, wire.Signature, sig); ok {
		fields = append(fields, f)
	}
	if f, ok := u32Field(fieldSessionID, sessionID); ok {
		fields = append(fields, f)
	}
	return newOutboundMessage(tx, h, fields, sig)
}

// MarshalArg writes one scalar/string/signature argument, consuming it
// from whichever cursor is active (pending variant, open container, or
// the message's top-level body signature) and verifying it matches t.
func (m *Message) MarshalArg(t byte, value []byte) status.Status {
	if m.state != stateHeaderDone && m.state != stateBodyInProgress {
		return status.Invalid
	}
	want, st := m.peekType()
	if st != status.OK {
		return st
	}
	if want != t {
		return status.Marshal
	}
	info, ok := wire.Lookup(t)
	if !ok {
		return status.Marshal
	}
	switch info.Category {
	case wire.CategoryScalar:
		st = wire.WriteScalar(m.buf, t, m.Header.Endianness, value)
	case wire.CategoryString:
		st = wire.WriteString(m.buf, m.Header.Endianness, value)
	case wire.CategorySignature:
		st = wire.WriteSignature(m.buf, value)
	default:
		return status.Marshal
	}
	if st != status.OK {
		return st
	}
	m.advance(1)
	m.state = stateBodyInProgress
	return status.OK
}

// MarshalVariant writes a variant's inline type signature and opens it
// so the next MarshalArg call writes the one value it wraps.
func (m *Message) MarshalVariant(innerSig string) status.Status {
	want, st := m.peekType()
	if st != status.OK {
		return st
	}
	if want != wire.Variant {
		return status.Marshal
	}
	if _, lst := wire.CompleteTypeLen(innerSig); lst != status.OK {
		return status.Signature
	}
	if st := wire.WriteSignature(m.buf, []byte(innerSig)); st != status.OK {
		return st
	}
	m.advance(1)
	m.variantSig = innerSig
	m.state = stateBodyInProgress
	return status.OK
}

// MarshalContainer opens an array, struct, or dict-entry for writing
// and returns the patch handle (valid only for arrays) that must be
// passed to MarshalCloseContainer.
func (m *Message) MarshalContainer(t byte, innerSig string) (wire.ArrayLenPatch, status.Status) {
	want, st := m.peekType()
	if st != status.OK {
		return wire.ArrayLenPatch{}, st
	}
	if want != t {
		return wire.ArrayLenPatch{}, status.Marshal
	}
	switch t {
	case wire.Array:
		elemInfo, ok := wire.Lookup(innerSig[0])
		if !ok {
			return wire.ArrayLenPatch{}, status.Signature
		}
		patch, st := wire.WriteArrayHeader(m.buf, m.Header.Endianness, elemInfo.Align)
		if st != status.OK {
			return wire.ArrayLenPatch{}, st
		}
		// The enclosing cursor must skip the whole "a"+element type,
		// not just the 'a' tag, or it will misalign once this
		// container closes and control returns to it.
		m.advance(1 + len(innerSig))
		m.pushContainer(&wire.Arg{Type: wire.Array, Category: wire.CategoryArray, Sig: innerSig})
		m.state = stateBodyInProgress
		return patch, status.OK
	case wire.StructOpen:
		if st := wire.WriteStructOpen(m.buf); st != status.OK {
			return wire.ArrayLenPatch{}, st
		}
		m.advance(2 + len(innerSig))
		m.pushContainer(&wire.Arg{Type: wire.StructOpen, Category: wire.CategoryStruct, Sig: innerSig})
		m.state = stateBodyInProgress
		return wire.ArrayLenPatch{}, status.OK
	case wire.DictOpen:
		if st := wire.WriteDictOpen(m.buf); st != status.OK {
			return wire.ArrayLenPatch{}, st
		}
		m.advance(2 + len(innerSig))
		m.pushContainer(&wire.Arg{Type: wire.DictOpen, Category: wire.CategoryDictEntry, Sig: innerSig})
		m.state = stateBodyInProgress
		return wire.ArrayLenPatch{}, status.OK
	}
	return wire.ArrayLenPatch{}, status.Marshal
}

// MarshalCloseContainer closes the innermost open container. patch must
// be the value returned by MarshalContainer when opening an array (it
// is ignored for struct/dict-entry, which carry no length field).
func (m *Message) MarshalCloseContainer(patch wire.ArrayLenPatch) status.Status {
	if m.container == nil {
		return status.NoMore
	}
	if m.container.Category == wire.CategoryArray {
		if st := patch.Close(); st != status.OK {
			return st
		}
	} else if len(m.container.Sig) != 0 {
		return status.Marshal
	}
	return m.popContainer()
}

// MarshalArgs is a variadic convenience for a run of basic-typed
// arguments at the current cursor position.
func (m *Message) MarshalArgs(values ...struct {
	Type  byte
	Value []byte
}) status.Status {
	for _, v := range values {
		if st := m.MarshalArg(v.Type, v.Value); st != status.OK {
			return st
		}
	}
	return status.OK
}

// DeliverMsg finalizes an outbound message: it patches BodyLen from the
// bytes actually written since the header, drains the buffer to the
// transport, and marks the message delivered. The body signature
// cursor and container chain must be fully consumed first.
func DeliverMsg(m *Message) status.Status {
	if m.sigCursor != "" || m.container != nil {
		return status.Invalid
	}
	bodyStart := int(headerTotalLen(m))
	bodyLen := m.buf.WritePos() - bodyStart
	if bodyLen < 0 {
		return status.Invalid
	}
	if m.Header.Flags&FlagEncrypted != 0 {
		if m.envelope == nil {
			return status.Security
		}
		// BodyLen is part of the authenticated header, so it must already
		// count the MAC when the envelope seals against it.
		patchBodyLen(m.buf, m.Header.Endianness, uint32(bodyLen+envelope.MACSize))
		isSignal := m.Header.Type == Signal && m.Destination == ""
		hdr := m.buf.Bytes()[:bodyStart]
		if st := m.envelope.Seal(hdr, bodyStart, bodyLen, m.buf, m.Header.Serial, m.SessionID, m.Destination, isSignal); st != status.OK {
			m.state = stateFailed
			return st
		}
		bodyLen += envelope.MACSize
	}
	patchBodyLen(m.buf, m.Header.Endianness, uint32(bodyLen))
	if st := m.buf.Drain(); st != status.OK {
		m.state = stateFailed
		return st
	}
	m.state = stateDone
	return status.OK
}

// DeliverMsgPartial announces a body larger than the TX buffer: it
// pads to the next argument's alignment, writes the final
// bodyLen = accumulated + pad + bytesRemaining into the header, then
// invalidates the header (signature validation is disabled) and
// switches the message into raw, decrement-only mode so the caller
// streams the remaining bytesRemaining bytes directly with MarshalRaw.
// Encrypted messages cannot be partially delivered, since the MAC can
// only be computed once the whole body is in memory.
func DeliverMsgPartial(m *Message, bytesRemaining int) status.Status {
	if m.IsEncrypted() {
		return status.Security
	}
	typ, st := m.peekType()
	if st != status.OK {
		return st
	}
	info, ok := wire.Lookup(typ)
	if !ok {
		return status.Signature
	}
	pad := iobuf.PadFor(m.buf.WritePos(), info.Align)
	if pad > 0 && !m.buf.WriteZeros(pad) {
		return status.Resources
	}
	bodyLen := m.buf.WritePos() - int(headerTotalLen(m)) + bytesRemaining
	if bodyLen < 0 {
		return status.Invalid
	}
	patchBodyLen(m.buf, m.Header.Endianness, uint32(bodyLen))
	if st := m.buf.Drain(); st != status.OK {
		m.state = stateFailed
		return st
	}
	m.sigCursor = ""
	m.container = nil
	m.variantSig = ""
	m.state = stateRaw
	m.bodyPlanned = bytesRemaining
	m.bodyRemaining = bytesRemaining
	return status.OK
}

// MarshalRaw writes data directly into the TX buffer once
// DeliverMsgPartial has switched the message into raw mode, decrementing
// the remaining byte count declared there. Writing more than that
// remaining count is a fatal ERR_WRITE: the declared bodyLen can no
// longer be corrected since the header was already drained. The buffer
// is drained to the transport whenever data would not fit in it, and
// once the last declared byte is written, which delivers the message.
func MarshalRaw(m *Message, data []byte) status.Status {
	if m.state != stateRaw {
		return status.Invalid
	}
	if len(data) > m.bodyRemaining {
		return status.Write
	}
	if m.buf.Space() < len(data) {
		if st := m.buf.Drain(); st != status.OK {
			m.state = stateFailed
			return st
		}
	}
	if !m.buf.Write(data) {
		return status.Resources
	}
	m.bodyRemaining -= len(data)
	if m.bodyRemaining == 0 {
		if st := m.buf.Drain(); st != status.OK {
			m.state = stateFailed
			return st
		}
		m.state = stateDone
	}
	return status.OK
}

// headerTotalLen returns the offset in the TX buffer where the body
// begins: the fixed header, plus HeaderLen, plus the pad to 8 bytes.
func headerTotalLen(m *Message) uint32 {
	n := HeaderSize + m.Header.HeaderLen
	if pad := iobuf.PadFor(int(n), 8); pad > 0 {
		n += uint32(pad)
	}
	return n
}
