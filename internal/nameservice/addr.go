package nameservice

import (
	"encoding/binary"
	"net"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// encodeIPv4 packs a dotted-quad address and port as 4 address bytes
// followed by a 2-byte port, both network (big-endian) byte order per
// spec: the name-service packet's scalar fields are big-endian
// regardless of the bus's own wire endianness.
func encodeIPv4(addr string, port uint16) ([]byte, status.Status) {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return nil, status.Invalid
	}
	out := make([]byte, 6)
	copy(out[0:4], ip)
	binary.BigEndian.PutUint16(out[4:6], port)
	return out, status.OK
}

func decodeIPv4(b []byte) (addr string, port uint16, consumed int, st status.Status) {
	if len(b) < 6 {
		return "", 0, 0, status.EndOfData
	}
	ip := net.IPv4(b[0], b[1], b[2], b[3])
	p := binary.BigEndian.Uint16(b[4:6])
	return ip.String(), p, 6, status.OK
}

// encodeIPv6 packs a 16-byte IPv6 address and a 2-byte big-endian
// port.
func encodeIPv6(addr string, port uint16) ([]byte, status.Status) {
	ip := net.ParseIP(addr).To16()
	if ip == nil {
		return nil, status.Invalid
	}
	out := make([]byte, 18)
	copy(out[0:16], ip)
	binary.BigEndian.PutUint16(out[16:18], port)
	return out, status.OK
}

func decodeIPv6(b []byte) (addr string, port uint16, consumed int, st status.Status) {
	if len(b) < 18 {
		return "", 0, 0, status.EndOfData
	}
	ip := net.IP(append([]byte(nil), b[0:16]...))
	p := binary.BigEndian.Uint16(b[16:18])
	return ip.String(), p, 18, status.OK
}
