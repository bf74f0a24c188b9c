package nameservice

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alljoyn-go/thinclient/internal/status"
)

func TestWhoHasComposeMatchesExactWireBytes(t *testing.T) {
	q := WhoHas{Names: []string{"foo"}}
	raw, st := q.Encode()
	require.Equal(t, status.OK, st)
	assert.Equal(t, []byte{0x11, 0x01, 0x00, 0x00, 0x80, 0x01, 0x04, 'f', 'o', 'o', '*'}, raw)
}

func TestWhoHasEncodeDecodeRoundTrip(t *testing.T) {
	q := WhoHas{Names: []string{"org.example.a", "org.example.b"}}
	raw, st := q.Encode()
	require.Equal(t, status.OK, st)

	pkt, st := Decode(raw)
	require.Equal(t, status.OK, st)
	require.NotNil(t, pkt.WhoHas)
	assert.Nil(t, pkt.IsAt)
	assert.Equal(t, []string{"org.example.a*", "org.example.b*"}, pkt.WhoHas.Names)
}

func TestWhoHasEncodeRejectsEmptyNames(t *testing.T) {
	_, st := WhoHas{}.Encode()
	assert.Equal(t, status.Invalid, st)
}

func TestIsAtEncodeDecodeRoundTripIPv4(t *testing.T) {
	a := IsAt{
		GUID:      uuid.New(),
		Transport: TransportUDP,
		IPv4Addr:  "10.0.0.5",
		IPv4Port:  9955,
		Names:     []string{"org.example.service"},
	}
	raw, st := a.Encode()
	require.Equal(t, status.OK, st)

	pkt, st := Decode(raw)
	require.Equal(t, status.OK, st)
	require.NotNil(t, pkt.IsAt)
	assert.Equal(t, a.GUID, pkt.IsAt.GUID)
	assert.Equal(t, a.IPv4Addr, pkt.IsAt.IPv4Addr)
	assert.Equal(t, a.IPv4Port, pkt.IsAt.IPv4Port)
	assert.Equal(t, a.Names, pkt.IsAt.Names)
}

func TestIsAtEncodeDecodeRoundTripIPv6(t *testing.T) {
	a := IsAt{
		GUID:      uuid.New(),
		Transport: TransportUDP6,
		IPv6Addr:  "fe80::1",
		IPv6Port:  9955,
		Names:     []string{"org.example.service"},
	}
	raw, st := a.Encode()
	require.Equal(t, status.OK, st)

	pkt, st := Decode(raw)
	require.Equal(t, status.OK, st)
	require.NotNil(t, pkt.IsAt)
	assert.Equal(t, a.IPv6Port, pkt.IsAt.IPv6Port)
	assert.Equal(t, a.Names, pkt.IsAt.Names)
}

func TestIsAtEncodeRejectsNoReliableTransport(t *testing.T) {
	a := IsAt{GUID: uuid.New(), Names: []string{"org.example.service"}}
	_, st := a.Encode()
	assert.Equal(t, status.Invalid, st)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	raw := []byte{msgVersion1 + 1, 1, 0, 0, whoHasMsg, 1, 3, 'f', 'o', 'o'}
	_, st := Decode(raw)
	assert.Equal(t, status.NoMatch, st)
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	_, st := Decode([]byte{1, 2})
	assert.Equal(t, status.EndOfData, st)
}

func TestMatchesPrefixWildcard(t *testing.T) {
	assert.True(t, MatchesPrefix("org.example.*", "org.example.service"))
	assert.False(t, MatchesPrefix("org.example.*", "org.other.service"))
}

func TestMatchesPrefixBareNameMatchesLongerAnswer(t *testing.T) {
	// A bare requested name (no wildcard) still matches by
	// length-capped prefix, per the discovery client's answer scan:
	// a WHO-HAS for "org.alljoyn.Bus" must match an IS-AT answer for
	// "org.alljoyn.Bus.sample" (Testable Property 9).
	assert.True(t, MatchesPrefix("org.alljoyn.Bus", "org.alljoyn.Bus.sample"))
	assert.True(t, MatchesPrefix("org.example.service", "org.example.service"))
	assert.False(t, MatchesPrefix("org.example.service2", "org.example.service"))
}
