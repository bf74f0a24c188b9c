// Package bus is the public entry point to the client: an Attachment
// ties together the wire codec, the secure envelope, and the name
// service over a caller-supplied Transport, exposing the external
// collaborator interfaces the lower internal packages are built
// against.
package bus

import (
	"net"
	"time"

	"github.com/alljoyn-go/thinclient/internal/envelope"
	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/message"
	"github.com/alljoyn-go/thinclient/internal/status"
	"github.com/alljoyn-go/thinclient/internal/wire"
)

// Transport moves marshalled message bytes to and from the bus router
// this attachment is connected to. It is the one collaborator every
// Attachment must be given. Any net.Conn satisfies it; this package
// provides no dialer of its own.
type Transport interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadDeadline(t time.Time) error
}

// CipherSuite performs the CCM authenticated-encryption primitive used
// to seal and open encrypted message bodies.
type CipherSuite = envelope.CipherSuite

// KeyStore resolves the session and group keys CipherSuite operations
// are performed under.
type KeyStore = envelope.KeyStore

// Introspector resolves between an application's logical message
// identifiers and the object path/interface/member header fields
// carried on the wire.
type Introspector = message.Introspector

// Status re-exports the shared error taxonomy so callers never need to
// import the internal status package directly.
type Status = status.Status

// Attachment is a single connection to the bus: one TX buffer, one RX
// buffer, a serial source, and the collaborators needed to marshal,
// seal, send, receive, and parse messages.
type Attachment struct {
	transport    Transport
	tx           *iobuf.IOBuf
	rx           *iobuf.IOBuf
	serial       *message.SerialSource
	env          *envelope.Envelope
	introspector Introspector
	endian       wire.Endianness

	defaultTimeout time.Duration
}

// Option configures an Attachment at construction time.
type Option func(*config) error

type config struct {
	bufSize      int
	timeout      time.Duration
	cipher       CipherSuite
	keys         KeyStore
	introspector Introspector
	initiator    bool
}

// WithBufferSize overrides the default RX/TX region size (4096 bytes).
func WithBufferSize(n int) Option {
	return func(c *config) error {
		if n <= message.HeaderSize {
			return status.Invalid
		}
		c.bufSize = n
		return nil
	}
}

// WithTimeout sets the default deadline applied to blocking calls that
// do not take an explicit one.
func WithTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.timeout = d
		return nil
	}
}

// WithCipherSuite installs a non-default CCM implementation.
func WithCipherSuite(cs CipherSuite) Option {
	return func(c *config) error {
		c.cipher = cs
		return nil
	}
}

// WithKeyStore installs a non-default key store.
func WithKeyStore(ks KeyStore) Option {
	return func(c *config) error {
		c.keys = ks
		return nil
	}
}

// WithIntrospector installs the application's object/interface
// registry, used to resolve parsed messages to logical ids.
func WithIntrospector(in Introspector) Option {
	return func(c *config) error {
		c.introspector = in
		return nil
	}
}

// AsInitiator marks this attachment as the session initiator for
// nonce-role derivation in the secure envelope. Responders should
// leave this unset.
func AsInitiator() Option {
	return func(c *config) error {
		c.initiator = true
		return nil
	}
}

// New creates an Attachment over transport, applying any options.
func New(transport Transport, opts ...Option) (*Attachment, status.Status) {
	cfg := config{bufSize: 4096, timeout: 5 * time.Second}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			if st, ok := err.(status.Status); ok {
				return nil, st
			}
			return nil, status.Invalid
		}
	}
	if cfg.cipher == nil {
		cfg.cipher = envelope.AESCCM{}
	}
	if cfg.keys == nil {
		cfg.keys = envelope.NewMemKeyStore()
	}

	a := &Attachment{
		transport:      transport,
		serial:         message.NewSerialSource(),
		env:            envelope.New(cfg.cipher, cfg.keys, cfg.initiator),
		introspector:   cfg.introspector,
		endian:         wire.LittleEndian,
		defaultTimeout: cfg.timeout,
	}
	a.tx = iobuf.New(cfg.bufSize, iobuf.TX, nil, a.drainTX)
	a.rx = iobuf.New(cfg.bufSize, iobuf.RX, a.fillRX, nil)
	return a, status.OK
}

func (a *Attachment) fillRX(buf *iobuf.IOBuf, min int, timeout time.Duration) status.Status {
	if err := a.transport.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return status.Read
	}
	view, ok := buf.Grow(min)
	if !ok {
		return status.Resources
	}
	total := 0
	for total < min {
		n, err := a.transport.Read(view[total:])
		total += n
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return status.Timeout
			}
			return status.Read
		}
	}
	return status.OK
}

func (a *Attachment) drainTX(buf *iobuf.IOBuf) status.Status {
	view, ok := buf.Peek(buf.Avail())
	if !ok {
		return status.OK
	}
	n, err := a.transport.Write(view)
	if err != nil || n != len(view) {
		return status.Write
	}
	buf.SkipRead(n)
	buf.Reset()
	return status.OK
}

// Close shuts down the transport. Outstanding messages are not
// delivered.
func (a *Attachment) Close() status.Status {
	if err := a.transport.Close(); err != nil {
		return status.Write
	}
	return status.OK
}
