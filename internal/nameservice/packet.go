// Package nameservice implements the multicast name-resolution
// protocol used to locate a bus attachment advertising a well-known
// name before a session is established: WHO-HAS queries and IS-AT
// responses, structurally the AllJoyn analogue of mDNS query/response
// packets.
package nameservice

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// Port is the well-known UDP port the name service multicasts on.
const Port = 9956

// MulticastAddrIPv4 is the IPv4 multicast group used for discovery.
const MulticastAddrIPv4 = "224.0.0.113"

// Message-format and name-service-format versions, packed into the
// header's version byte as msgVersion | nsVersion.
const (
	msgVersion1 byte = 0x01
	nsVersion1  byte = 0x10
)

// Per-entry flag bits, one set per question or answer record.
const (
	flagU6 byte = 0x01
	flagR6 byte = 0x02
	flagU4 byte = 0x04
	flagR4 byte = 0x08
	flagC  byte = 0x10
	flagG  byte = 0x20

	msgTypeMask byte = 0xC0
	whoHasMsg   byte = 0x80
	isAtMsg     byte = 0x40
)

// transportMask flags the transports a responder is reachable over.
type transportMask uint16

const (
	TransportNone transportMask = 0
	TransportTCP  transportMask = 1 << 0
	TransportUDP  transportMask = 1 << 1
	TransportTCP6 transportMask = 1 << 2
	TransportUDP6 transportMask = 1 << 3
)

// header is the fixed 4-byte packet prefix: version plus the question
// and answer counts and a multicast hop-count-like ttl. It precedes a
// sequence of qCount question entries and aCount answer entries, each
// carrying its own {flags, nameCount, ...} record.
type header struct {
	version byte
	qCount  byte
	aCount  byte
	ttl     byte
}

func encodeHeader(qCount, aCount, ttl byte) []byte {
	return []byte{msgVersion1 | nsVersion1, qCount, aCount, ttl}
}

func decodeHeader(b []byte) (header, status.Status) {
	if len(b) < 4 {
		return header{}, status.EndOfData
	}
	return header{version: b[0], qCount: b[1], aCount: b[2], ttl: b[3]}, status.OK
}

// msgVersion extracts the low-nibble message-format version, the only
// part of the version byte a receiver checks.
func (h header) msgVersion() byte { return h.version & 0x0F }

// WhoHas is an outbound query for a set of well-known name prefixes.
type WhoHas struct {
	Names []string
}

// Encode serializes a WHO-HAS packet per the name-service wire format:
// a 4-byte header with qCount=1, then one question entry
// {flags=WHO_HAS, nameCount}, then each name as a 1-byte length
// (name length + 1 for the trailing wildcard) followed by the name
// bytes and a literal '*' marking it as a prefix.
func (q WhoHas) Encode() ([]byte, status.Status) {
	if len(q.Names) == 0 || len(q.Names) > 255 {
		return nil, status.Invalid
	}
	out := encodeHeader(1, 0, 0)
	out = append(out, whoHasMsg, byte(len(q.Names)))
	for _, n := range q.Names {
		if len(n)+1 > 255 {
			return nil, status.Invalid
		}
		out = append(out, byte(len(n)+1))
		out = append(out, n...)
		out = append(out, '*')
	}
	return out, status.OK
}

// decodeWhoHas parses every question entry in a WHO-HAS packet's body
// (the 4-byte header already split off by Decode), flattening all
// entries' names into one list.
func decodeWhoHas(h header, body []byte) (WhoHas, status.Status) {
	q := WhoHas{}
	off := 0
	for i := 0; i < int(h.qCount); i++ {
		if off+2 > len(body) {
			return WhoHas{}, status.EndOfData
		}
		flags := body[off]
		nameCount := body[off+1]
		off += 2
		if flags&msgTypeMask != whoHasMsg {
			return WhoHas{}, status.Invalid
		}
		for j := 0; j < int(nameCount); j++ {
			if off >= len(body) {
				return WhoHas{}, status.EndOfData
			}
			n := int(body[off])
			off++
			if off+n > len(body) {
				return WhoHas{}, status.EndOfData
			}
			q.Names = append(q.Names, string(body[off:off+n]))
			off += n
		}
	}
	return q, status.OK
}

// IsAt is a responder's advertisement: the transports and addresses it
// can be reached on, its GUID, and the well-known names it owns.
type IsAt struct {
	GUID      uuid.UUID
	Transport transportMask
	IPv4Addr  string
	IPv4Port  uint16
	IPv6Addr  string
	IPv6Port  uint16
	Names     []string
}

// Encode serializes an IS-AT packet: a 4-byte header with aCount=1,
// then one answer entry {flags=IS_AT|address-flags|G, nameCount},
// a 2-byte big-endian transport mask, the reliable address(es) the
// flags indicate, the length-prefixed GUID (always written), then the name
// list (same length-prefixed shape as WHO-HAS, with no wildcard).
func (a IsAt) Encode() ([]byte, status.Status) {
	if len(a.Names) == 0 || len(a.Names) > 255 {
		return nil, status.Invalid
	}
	flags := isAtMsg
	if a.IPv4Addr != "" {
		flags |= flagR4
	}
	if a.IPv6Addr != "" {
		flags |= flagR6
	}
	if flags&(flagR4|flagR6) == 0 {
		return nil, status.Invalid
	}
	flags |= flagG

	out := encodeHeader(0, 1, 0)
	out = append(out, flags, byte(len(a.Names)))
	var tbuf [2]byte
	binary.BigEndian.PutUint16(tbuf[:], uint16(a.Transport))
	out = append(out, tbuf[:]...)
	if flags&flagR4 != 0 {
		addr, st := encodeIPv4(a.IPv4Addr, a.IPv4Port)
		if st != status.OK {
			return nil, st
		}
		out = append(out, addr...)
	}
	if flags&flagR6 != 0 {
		addr, st := encodeIPv6(a.IPv6Addr, a.IPv6Port)
		if st != status.OK {
			return nil, st
		}
		out = append(out, addr...)
	}
	out = append(out, byte(len(a.GUID)))
	out = append(out, a.GUID[:]...)
	for _, n := range a.Names {
		if len(n) > 255 {
			return nil, status.Invalid
		}
		out = append(out, byte(len(n)))
		out = append(out, n...)
	}
	return out, status.OK
}

// decodeIsAt parses every answer entry in an IS-AT packet's body,
// requiring each to be reachable over IPv4 and/or IPv6 and to carry
// the IS_AT message type, per the original discovery client's parser.
func decodeIsAt(h header, body []byte) (IsAt, status.Status) {
	a := IsAt{}
	off := 0
	for i := 0; i < int(h.aCount); i++ {
		if off+2 > len(body) {
			return IsAt{}, status.EndOfData
		}
		flags := body[off]
		nameCount := body[off+1]
		off += 2
		if flags&msgTypeMask != isAtMsg {
			return IsAt{}, status.Invalid
		}
		if flags&(flagR4|flagR6) == 0 {
			return IsAt{}, status.NoMatch
		}
		if off+2 > len(body) {
			return IsAt{}, status.EndOfData
		}
		a.Transport = transportMask(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if flags&flagR4 != 0 {
			addr, port, n, st := decodeIPv4(body[off:])
			if st != status.OK {
				return IsAt{}, st
			}
			a.IPv4Addr, a.IPv4Port = addr, port
			off += n
		}
		if flags&flagU4 != 0 {
			off += 6
		}
		if flags&flagR6 != 0 {
			addr, port, n, st := decodeIPv6(body[off:])
			if st != status.OK {
				return IsAt{}, st
			}
			a.IPv6Addr, a.IPv6Port = addr, port
			off += n
		}
		if flags&flagU6 != 0 {
			off += 18
		}
		if flags&flagG != 0 {
			if off >= len(body) {
				return IsAt{}, status.EndOfData
			}
			sz := int(body[off])
			off++
			if off+sz > len(body) {
				return IsAt{}, status.EndOfData
			}
			if sz == len(a.GUID) {
				copy(a.GUID[:], body[off:off+sz])
			}
			off += sz
		}
		if off >= len(body) {
			return IsAt{}, status.EndOfData
		}
		for j := 0; j < int(nameCount); j++ {
			if off >= len(body) {
				return IsAt{}, status.EndOfData
			}
			n := int(body[off])
			off++
			if off+n > len(body) {
				return IsAt{}, status.EndOfData
			}
			a.Names = append(a.Names, string(body[off:off+n]))
			off += n
		}
	}
	return a, status.OK
}

// Packet is a decoded name-service message: exactly one of WhoHas or
// IsAt is populated.
type Packet struct {
	WhoHas *WhoHas
	IsAt   *IsAt
}

// Decode parses a raw datagram into a Packet. An unknown message
// version is not an error: the caller is expected to silently ignore
// the packet, so Decode reports it as status.NoMatch.
func Decode(raw []byte) (Packet, status.Status) {
	h, st := decodeHeader(raw)
	if st != status.OK {
		return Packet{}, st
	}
	if h.msgVersion() != msgVersion1 {
		return Packet{}, status.NoMatch
	}
	body := raw[4:]
	if h.qCount > 0 {
		q, st := decodeWhoHas(h, body)
		if st != status.OK {
			return Packet{}, st
		}
		return Packet{WhoHas: &q}, status.OK
	}
	if h.aCount > 0 {
		a, st := decodeIsAt(h, body)
		if st != status.OK {
			return Packet{}, st
		}
		return Packet{IsAt: &a}, status.OK
	}
	return Packet{}, status.NoMatch
}

// MatchesPrefix reports whether have matches requested as a
// length-capped prefix, per the original discovery client's answer
// scan (`preLen <= sz && memcmp(...)`). requested may carry a
// trailing '*' as composed onto the wire by Encode or received
// verbatim in a WHO-HAS query; that marker is stripped before
// comparing, since it is an instruction to prefix-match, not part of
// the name itself. A requested name with no trailing '*' still
// matches by prefix, not by exact equality: a WHO-HAS for
// "org.alljoyn.Bus" must match an IS-AT answer for
// "org.alljoyn.Bus.sample".
func MatchesPrefix(requested, have string) bool {
	prefix := requested
	if len(prefix) > 0 && prefix[len(prefix)-1] == '*' {
		prefix = prefix[:len(prefix)-1]
	}
	return len(prefix) <= len(have) && have[:len(prefix)] == prefix
}
