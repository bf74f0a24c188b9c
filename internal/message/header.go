// Package message implements the bus wire envelope: the fixed message
// header, header-field encoding, and the marshal/unmarshal lifecycle of
// a single message (method call, method reply, signal, or error) built
// on top of the argument primitives in package wire.
package message

import (
	"encoding/binary"

	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// HeaderSize is the fixed portion of the message header, in bytes:
// endianness(1) + msgType(1) + flags(1) + protoVersion(1) + bodyLen(4)
// + serial(4) + headerLen(4).
const HeaderSize = 16

// MsgType identifies what kind of message this is.
type MsgType byte

const (
	Invalid MsgType = iota
	MethodCall
	MethodReturn
	Error
	Signal
)

// Flag bits carried in the header's flag byte.
const (
	FlagNoAutoStart       byte = 1 << 0
	FlagAllowRemoteReply  byte = 1 << 1
	FlagEncrypted         byte = 1 << 2
)

// ProtocolVersion is the major protocol version this implementation
// writes and accepts.
const ProtocolVersion = 1

// Header is the fixed-size record at the start of every message.
type Header struct {
	Endianness wire.Endianness
	Type       MsgType
	Flags      byte
	ProtoVer   byte
	BodyLen    uint32
	Serial     uint32
	HeaderLen  uint32
}

// headerFieldID tags each optional header field.
type headerFieldID byte

const (
	fieldObjPath     headerFieldID = 1
	fieldInterface   headerFieldID = 2
	fieldMember      headerFieldID = 3
	fieldErrorName   headerFieldID = 4
	fieldReplySerial headerFieldID = 5
	fieldDestination headerFieldID = 6
	fieldSender      headerFieldID = 7
	fieldSignature   headerFieldID = 8
	fieldTimestamp   headerFieldID = 9
	fieldTTL         headerFieldID = 10
	fieldSessionID   headerFieldID = 11
)

// fieldType is the fixed value type each known field id's VARIANT must
// carry. Unknown field ids are skipped rather than rejected.
var fieldType = map[headerFieldID]byte{
	fieldObjPath:     wire.ObjPath,
	fieldInterface:   wire.String,
	fieldMember:      wire.String,
	fieldErrorName:   wire.String,
	fieldReplySerial: wire.Uint32,
	fieldDestination: wire.String,
	fieldSender:      wire.String,
	fieldSignature:   wire.Signature,
	fieldTimestamp:   wire.Uint32,
	fieldTTL:         wire.Uint32,
	fieldSessionID:   wire.Uint32,
}

func encodeU32(dst []byte, v uint32, endian wire.Endianness) {
	if endian == wire.BigEndian {
		binary.BigEndian.PutUint32(dst, v)
	} else {
		binary.LittleEndian.PutUint32(dst, v)
	}
}

func decodeU32(b []byte, endian wire.Endianness) uint32 {
	if endian == wire.BigEndian {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

// encodeFixed writes the 16-byte fixed header at the buffer's current
// write position (always 0 for a freshly reset TX buffer) with
// bodyLen and headerLen as placeholders to be patched later.
func encodeFixed(b *iobuf.IOBuf, h Header) status.Status {
	view, ok := b.Grow(HeaderSize)
	if !ok {
		return status.Resources
	}
	view[0] = byte(h.Endianness)
	view[1] = byte(h.Type)
	view[2] = h.Flags
	view[3] = h.ProtoVer
	encodeU32(view[4:8], h.BodyLen, h.Endianness)
	encodeU32(view[8:12], h.Serial, h.Endianness)
	encodeU32(view[12:16], h.HeaderLen, h.Endianness)
	return status.OK
}

// patchBodyLen rewrites the bodyLen field in place once the final body
// size is known.
func patchBodyLen(b *iobuf.IOBuf, endian wire.Endianness, bodyLen uint32) {
	encodeU32(b.Bytes()[4:8], bodyLen, endian)
}

func patchHeaderLen(b *iobuf.IOBuf, endian wire.Endianness, headerLen uint32) {
	encodeU32(b.Bytes()[12:16], headerLen, endian)
}

func decodeFixed(view []byte) (Header, status.Status) {
	e := wire.Endianness(view[0])
	if !e.Valid() {
		return Header{}, status.Read
	}
	return Header{
		Endianness: e,
		Type:       MsgType(view[1]),
		Flags:      view[2],
		ProtoVer:   view[3],
		BodyLen:    decodeU32(view[4:8], e),
		Serial:     decodeU32(view[8:12], e),
		HeaderLen:  decodeU32(view[12:16], e),
	}, status.OK
}
