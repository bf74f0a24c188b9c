package bus

import (
	"time"

	"github.com/alljoyn-go/thinclient/internal/message"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// Msg re-exports the marshalled/parsed message type so callers never
// need to import the internal message package directly.
type Msg = message.Message

// MethodCall begins marshalling an outbound method call into this
// attachment's TX buffer. The caller writes the body with the Msg
// marshal methods, then calls Deliver.
func (a *Attachment) MethodCall(destination, objPath, iface, member, sig string, sessionID uint32, flags byte) (*Msg, status.Status) {
	m, st := message.MarshalMethodCall(a.tx, a.endian, a.serial.Next(), destination, objPath, iface, member, sig, sessionID, flags)
	if st != status.OK {
		return nil, st
	}
	if flags&message.FlagEncrypted != 0 {
		m.SetEnvelope(a.env)
	}
	return m, status.OK
}

// Signal begins marshalling an outbound signal.
func (a *Attachment) Signal(destination, objPath, iface, member, sig string, sessionID, ttl uint32, flags byte) (*Msg, status.Status) {
	m, st := message.MarshalSignal(a.tx, a.endian, a.serial.Next(), destination, objPath, iface, member, sig, sessionID, ttl, flags)
	if st != status.OK {
		return nil, st
	}
	if flags&message.FlagEncrypted != 0 {
		m.SetEnvelope(a.env)
	}
	return m, status.OK
}

// Reply begins marshalling a METHOD_RET in response to replySerial.
func (a *Attachment) Reply(destination string, replySerial uint32, sig string, sessionID uint32, flags byte) (*Msg, status.Status) {
	m, st := message.MarshalReplyMsg(a.tx, a.endian, a.serial.Next(), replySerial, destination, sig, sessionID, flags)
	if st != status.OK {
		return nil, st
	}
	if flags&message.FlagEncrypted != 0 {
		m.SetEnvelope(a.env)
	}
	return m, status.OK
}

// ReplyError begins marshalling an ERROR reply to replySerial.
func (a *Attachment) ReplyError(destination string, replySerial uint32, errorName, sig string, sessionID uint32, flags byte) (*Msg, status.Status) {
	m, st := message.MarshalErrorMsg(a.tx, a.endian, a.serial.Next(), replySerial, destination, errorName, sig, sessionID, flags)
	if st != status.OK {
		return nil, st
	}
	if flags&message.FlagEncrypted != 0 {
		m.SetEnvelope(a.env)
	}
	return m, status.OK
}

// ReplyStatus begins marshalling an ERROR reply to replySerial whose
// error name is derived from an internal Status rather than given
// explicitly: NO_MATCH maps to ServiceUnknown, SECURITY to
// SecurityViolation, everything else to the generic Rejected. A
// SecurityViolation reply is always sent unencrypted (FlagEncrypted
// cleared) since the peer that triggered it may be unable to decrypt
// an encrypted reply.
func (a *Attachment) ReplyStatus(destination string, replySerial uint32, st status.Status, sig string, sessionID uint32, flags byte) (*Msg, status.Status) {
	errorName := message.StatusErrorName(st)
	if st == status.Security {
		flags &^= message.FlagEncrypted
	}
	return a.ReplyError(destination, replySerial, errorName, sig, sessionID, flags)
}

// Deliver finalizes and sends a message built with MethodCall, Signal,
// Reply, or ReplyError.
func (a *Attachment) Deliver(m *Msg) status.Status {
	return message.DeliverMsg(m)
}

// Receive blocks until the next message arrives or timeout elapses,
// parsing its header and (if encrypted) decrypting its body.
func (a *Attachment) Receive(timeout time.Duration) (*Msg, status.Status) {
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}
	return message.UnmarshalMsg(a.rx, a.env, a.introspector, timeout)
}

// wireEndianOf exposes the attachment's chosen wire byte order to
// callers that need to construct values outside the Msg API (e.g. a
// raw-mode body writer).
func (a *Attachment) wireEndianOf() wire.Endianness { return a.endian }
