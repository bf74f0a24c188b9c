package message

import (
	"time"

	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// state tracks where a Message is in its send/receive lifecycle.
type state int

const (
	stateFresh state = iota
	stateHeaderDone   // TX: header marshalled; RX: header parsed
	stateBodyInProgress
	stateRaw     // streaming/raw mode: typed unmarshal disabled
	stateDone    // TX: delivered; RX: closed
	stateFailed
)

// Envelope is the subset of the secure envelope a Message needs at
// deliver/unmarshal time: encrypt the body in place (reserving and
// filling the trailing MAC) or decrypt and verify it. Defined here,
// not in package envelope, so message has no import-time dependency on
// the concrete secure envelope implementation.
type Envelope interface {
	Seal(hdr []byte, bodyStart, bodyLen int, buf *iobuf.IOBuf, serial, sessionID uint32, destination string, isSignal bool) status.Status
	Decrypt(hdr []byte, rx *iobuf.IOBuf, serial, sessionID uint32, destination string, isSignal bool) (plainBodyLen int, st status.Status)
}

// Introspector is the external registration/routing collaborator (AJ
// object table + introspection). It is never implemented by this
// package; the top-level bus package supplies it.
type Introspector interface {
	// InitMessageFromMsgId fills objPath/iface/member/signature (for a
	// call or signal) from a registry keyed by a 24-bit logical id, and
	// reports whether the interface requires encryption.
	InitMessageFromMsgId(msgID uint32, msgType MsgType) (objPath, iface, member, sig string, secure bool, st status.Status)
	// IdentifyMessage performs the reverse lookup after a message has
	// been parsed, returning a logical message id from its header
	// fields (or from ReplySerial for a reply/error).
	IdentifyMessage(objPath, iface, member string, replySerial uint32, isReply bool) uint32
	// TimedOutMethodCall reports whether any outstanding method-call
	// reply has exceeded its deadline, and if so the serial it was
	// waiting on.
	TimedOutMethodCall() (serial uint32, timedOut bool)
}

// Message is the logical in-flight unit for both directions: the
// fields populated while marshalling a call/reply/signal/error to send,
// or while parsing one received from the transport.
type Message struct {
	Header Header

	ObjPath     string
	Iface       string
	Member      string
	ErrorName   string
	ReplySerial uint32
	Destination string
	Sender      string
	Signature   string
	Timestamp   uint32
	TTL         uint32
	SessionID   uint32
	MsgID       uint32

	buf   *iobuf.IOBuf
	state state

	sigCursor   string     // remaining top-level body signature
	container   *wire.Arg  // innermost open container, nil at top level
	variantSig  string     // pending inline variant signature, "" if none

	bodyRemaining int // RX: body bytes not yet consumed; TX: raw bytes still to be written after DeliverMsgPartial
	bodyPlanned   int // TX: raw byte count declared to DeliverMsgPartial

	timeout  time.Duration
	envelope Envelope
}

// SetEnvelope attaches the secure envelope to use at DeliverMsg time
// when FlagEncrypted is set on this message's header.
func (m *Message) SetEnvelope(e Envelope) { m.envelope = e }

// IsEncrypted reports whether FlagEncrypted is set.
func (m *Message) IsEncrypted() bool { return m.Header.Flags&FlagEncrypted != 0 }

// State accessors used by tests and the bus package to assert the
// lifecycle rules in spec §4.2's state machine.
func (m *Message) Fresh() bool           { return m.state == stateFresh }
func (m *Message) HeaderDone() bool      { return m.state == stateHeaderDone }
func (m *Message) BodyInProgress() bool  { return m.state == stateBodyInProgress }
func (m *Message) Raw() bool             { return m.state == stateRaw }
func (m *Message) Delivered() bool       { return m.state == stateDone }
func (m *Message) Closed() bool          { return m.state == stateDone }
func (m *Message) Failed() bool          { return m.state == stateFailed }

// bodyBytesRemaining reports how many body bytes the RX side has yet
// to read (used by Close to drain unread bytes).
func (m *Message) bodyBytesRemaining() int { return m.bodyRemaining }
