package nameservice

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// Socket is a multicast UDP endpoint joined to the discovery group on
// every usable interface.
type Socket struct {
	conn net.PacketConn
	pc   *ipv4.PacketConn
	addr *net.UDPAddr
}

// OpenSocket binds to Port on all interfaces and joins the discovery
// multicast group, mirroring the reuse-address/join-group/TTL sequence
// a multicast name-resolution client needs regardless of which
// protocol's packets it carries.
func OpenSocket() (*Socket, status.Status) {
	ctx := context.Background()
	lc := net.ListenConfig{Control: platformControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", Port))
	if err != nil {
		return nil, status.Resources
	}

	pc := ipv4.NewPacketConn(conn)
	group := net.ParseIP(MulticastAddrIPv4)

	ifaces, err := net.Interfaces()
	if err != nil {
		_ = conn.Close()
		return nil, status.Resources
	}
	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		ifaceCopy := iface
		if err := pc.JoinGroup(&ifaceCopy, &net.UDPAddr{IP: group}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, status.Resources
	}
	_ = pc.SetMulticastTTL(32)
	_ = pc.SetMulticastLoopback(true)

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(MulticastAddrIPv4, strconv.Itoa(Port)))
	if err != nil {
		_ = conn.Close()
		return nil, status.Invalid
	}
	return &Socket{conn: conn, pc: pc, addr: addr}, status.OK
}

// Send multicasts raw bytes to the discovery group.
func (s *Socket) Send(raw []byte) status.Status {
	n, err := s.conn.WriteTo(raw, s.addr)
	if err != nil {
		return status.Write
	}
	if n != len(raw) {
		return status.Write
	}
	return status.OK
}

// Receive waits up to timeout for one datagram.
func (s *Socket) Receive(timeout time.Duration) ([]byte, net.Addr, status.Status) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, status.Read
	}
	buf := make([]byte, 2048)
	n, from, err := s.conn.ReadFrom(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, status.Timeout
		}
		return nil, nil, status.Read
	}
	return buf[:n], from, status.OK
}

// Close releases the socket.
func (s *Socket) Close() status.Status {
	if s == nil || s.conn == nil {
		return status.OK
	}
	if err := s.conn.Close(); err != nil {
		return status.Write
	}
	return status.OK
}
