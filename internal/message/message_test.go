package message

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alljoyn-go/thinclient/internal/envelope"
	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// loopback wires a TX and RX IOBuf through a shared in-memory slice,
// modeling a zero-latency transport for marshal/unmarshal round trips.
func loopback(size int) (*iobuf.IOBuf, *iobuf.IOBuf) {
	shared := make([]byte, 0, size)
	tx := iobuf.New(size, iobuf.TX, nil, func(b *iobuf.IOBuf) status.Status {
		view, ok := b.Peek(b.Avail())
		if !ok {
			return status.OK
		}
		shared = append(shared, view...)
		b.SkipRead(len(view))
		return status.OK
	})
	rx := iobuf.New(size, iobuf.RX, func(b *iobuf.IOBuf, min int, timeout time.Duration) status.Status {
		view, ok := b.Grow(len(shared))
		if !ok {
			return status.Resources
		}
		copy(view, shared)
		shared = shared[:0]
		return status.OK
	}, nil)
	return tx, rx
}

func u32Bytes(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func TestMethodCallRoundTripNoBody(t *testing.T) {
	tx, rx := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "org.example.dest", "/obj", "org.example.Iface", "DoThing", "", 0, 0)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, MethodCall, got.Header.Type)
	assert.Equal(t, "/obj", got.ObjPath)
	assert.Equal(t, "org.example.Iface", got.Iface)
	assert.Equal(t, "DoThing", got.Member)
	assert.Equal(t, "org.example.dest", got.Destination)
	assert.Equal(t, uint32(2), got.Header.Serial)
}

func TestMethodCallRequiresObjPathAndMember(t *testing.T) {
	tx, _ := loopback(64)
	_, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "dest", "", "iface", "", "", 0, 0)
	assert.Equal(t, status.Invalid, st)
}

func TestSignalRequiresIface(t *testing.T) {
	tx, _ := loopback(64)
	_, st := MarshalSignal(tx, wire.LittleEndian, 2, "", "/obj", "", "Changed", "", 0, 0, 0)
	assert.Equal(t, status.Invalid, st)
}

func TestReplyMsgRequiresReplySerial(t *testing.T) {
	tx, _ := loopback(64)
	_, st := MarshalReplyMsg(tx, wire.LittleEndian, 3, 0, "dest", "", 0, 0)
	assert.Equal(t, status.Invalid, st)
}

func TestErrorMsgRequiresNameAndReplySerial(t *testing.T) {
	tx, _ := loopback(64)
	_, st := MarshalErrorMsg(tx, wire.LittleEndian, 3, 5, "dest", "", "", 0, 0)
	assert.Equal(t, status.Invalid, st)
}

func TestMarshalUnmarshalUint32Arg(t *testing.T) {
	tx, rx := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "u", 0, 0)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(12345)))
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	arg, st := got.UnmarshalArg(wire.Uint32)
	require.Equal(t, status.OK, st)
	assert.Equal(t, uint32(12345), binary.LittleEndian.Uint32(arg.Value))
}

func TestMarshalArgTypeMismatch(t *testing.T) {
	tx, _ := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "u", 0, 0)
	require.Equal(t, status.OK, st)
	st = m.MarshalArg(wire.String, []byte("nope"))
	assert.Equal(t, status.Marshal, st)
}

func TestDeliverMsgFailsWithOpenContainer(t *testing.T) {
	tx, _ := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "(u)", 0, 0)
	require.Equal(t, status.OK, st)
	_, st = m.MarshalContainer(wire.StructOpen, "u")
	require.Equal(t, status.OK, st)

	st = DeliverMsg(m)
	assert.Equal(t, status.Invalid, st)
}

func TestStructContainerRoundTrip(t *testing.T) {
	tx, rx := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "(uu)", 0, 0)
	require.Equal(t, status.OK, st)
	patch, st := m.MarshalContainer(wire.StructOpen, "uu")
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(1)))
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(2)))
	require.Equal(t, status.OK, m.MarshalCloseContainer(patch))
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	_, st = got.UnmarshalContainer(wire.StructOpen)
	require.Equal(t, status.OK, st)
	a1, st := got.UnmarshalArg(wire.Uint32)
	require.Equal(t, status.OK, st)
	a2, st := got.UnmarshalArg(wire.Uint32)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, got.UnmarshalCloseContainer())
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(a1.Value))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(a2.Value))
}

func TestVariantRoundTrip(t *testing.T) {
	tx, rx := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "v", 0, 0)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, m.MarshalVariant("u"))
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(77)))
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	sig, st := got.UnmarshalVariant()
	require.Equal(t, status.OK, st)
	assert.Equal(t, "u", sig)
	arg, st := got.UnmarshalArg(wire.Uint32)
	require.Equal(t, status.OK, st)
	assert.Equal(t, uint32(77), binary.LittleEndian.Uint32(arg.Value))
}

func TestUnknownHeaderFieldIsSkipped(t *testing.T) {
	tx, rx := loopback(256)
	h := Header{Endianness: wire.LittleEndian, Type: MethodCall, ProtoVer: ProtocolVersion, Serial: 9}
	fields := []headerField{
		{id: 200, typ: wire.Uint32, u32: 0xAA}, // unrecognized field id
	}
	if f, ok := strField(fieldObjPath, wire.ObjPath, "/obj"); ok {
		fields = append(fields, f)
	}
	if f, ok := strField(fieldMember, wire.String, "Ping"); ok {
		fields = append(fields, f)
	}
	m, st := newOutboundMessage(tx, h, fields, "")
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	assert.Equal(t, "/obj", got.ObjPath)
	assert.Equal(t, "Ping", got.Member)
}

func TestCloseDrainsUnreadBody(t *testing.T) {
	tx, rx := loopback(256)
	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "", "/obj", "org.example.Iface", "Set", "uu", 0, 0)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(1)))
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(2)))
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, nil, nil, time.Second)
	require.Equal(t, status.OK, st)
	// never call UnmarshalArg; Close must drain both unread uint32s
	require.Equal(t, status.OK, got.Close())
	assert.True(t, got.Closed())
	assert.Equal(t, status.OK, got.Close()) // idempotent
}

func TestEncryptedMethodCallRoundTrip(t *testing.T) {
	tx, rx := loopback(256)
	keys := envelope.NewMemKeyStore()
	keys.SetSessionKey(7, []byte("sessionkey-16byt"))
	sealer := envelope.New(envelope.AESCCM{}, keys, true)
	opener := envelope.New(envelope.AESCCM{}, keys, false)

	m, st := MarshalMethodCall(tx, wire.LittleEndian, 2, "org.example.dest", "/obj", "org.example.Iface", "Set", "u", 7, FlagEncrypted)
	require.Equal(t, status.OK, st)
	require.Equal(t, status.OK, m.MarshalArg(wire.Uint32, u32Bytes(555)))
	m.SetEnvelope(sealer)
	require.Equal(t, status.OK, DeliverMsg(m))

	got, st := UnmarshalMsg(rx, opener, nil, time.Second)
	require.Equal(t, status.OK, st)
	arg, st := got.UnmarshalArg(wire.Uint32)
	require.Equal(t, status.OK, st)
	assert.Equal(t, uint32(555), binary.LittleEndian.Uint32(arg.Value))
}
