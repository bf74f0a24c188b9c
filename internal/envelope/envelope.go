// Package envelope implements the authenticated-encryption wrapper
// applied to a message body when FLAG_ENCRYPTED is set: nonce
// derivation, key selection, and the encrypt/decrypt calls into a
// CipherSuite collaborator.
package envelope

import (
	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
)

// MACSize is the length, in bytes, reserved at the end of an encrypted
// body for the CCM authentication tag.
const MACSize = 8

// NonceSize is the length of the CCM nonce: a 1-byte role tag followed
// by the 4-byte message serial.
const NonceSize = 5

// role distinguishes the two ends of a session for nonce derivation,
// so a reflected packet never reuses the sender's nonce.
type role byte

const (
	roleInitiator role = 'I'
	roleResponder role = 'R'
)

// CipherSuite performs the CCM authenticated-encryption primitive. Its
// correctness is assumed by this package; it is supplied by the bus
// package's default implementation or a caller-provided one.
type CipherSuite interface {
	// CCMEncrypt encrypts plaintext in place inside buf (appending the
	// MAC at its tail) using key, nonce, and aad as the additional
	// authenticated data.
	CCMEncrypt(key, nonce, aad []byte, buf []byte) status.Status
	// CCMDecrypt verifies and decrypts buf in place (the trailing
	// MACSize bytes are the tag), returning the plaintext length.
	CCMDecrypt(key, nonce, aad []byte, buf []byte) (plainLen int, st status.Status)
}

// KeyStore resolves the symmetric keys a session or multicast group
// was established with.
type KeyStore interface {
	SessionKey(sessionID uint32, destination string) ([]byte, bool)
	GroupKey(destination string) ([]byte, bool)
}

// Envelope applies and removes authenticated encryption from message
// bodies. It holds no per-message state; one Envelope is shared across
// an attachment's whole lifetime.
type Envelope struct {
	cipher   CipherSuite
	keys     KeyStore
	ourRole  role
}

// New returns an Envelope. initiator selects the nonce role tag this
// side writes when encrypting; the peer is assumed to use the other.
func New(cipher CipherSuite, keys KeyStore, initiator bool) *Envelope {
	r := roleResponder
	if initiator {
		r = roleInitiator
	}
	return &Envelope{cipher: cipher, keys: keys, ourRole: r}
}

func nonce(r role, serial uint32) [NonceSize]byte {
	var n [NonceSize]byte
	n[0] = byte(r)
	n[1] = byte(serial >> 24)
	n[2] = byte(serial >> 16)
	n[3] = byte(serial >> 8)
	n[4] = byte(serial)
	return n
}

func (e *Envelope) selectKey(sessionID uint32, destination string, isSignal bool) ([]byte, status.Status) {
	if isSignal && destination == "" {
		if k, ok := e.keys.GroupKey(destination); ok {
			return k, status.OK
		}
		return nil, status.Security
	}
	if k, ok := e.keys.SessionKey(sessionID, destination); ok {
		return k, status.OK
	}
	return nil, status.Security
}

// Seal encrypts the [bodyStart, bodyStart+bodyLen) region of buf in
// place, using hdr as additional authenticated data and a nonce
// derived from the message's own serial number. It is the entry point
// the message layer calls once the plaintext body has been fully
// marshalled and BodyLen in hdr already counts the MAC.
func (e *Envelope) Seal(hdr []byte, bodyStart, bodyLen int, buf *iobuf.IOBuf, serial, sessionID uint32, destination string, isSignal bool) status.Status {
	key, st := e.selectKey(sessionID, destination, isSignal)
	if st != status.OK {
		return st
	}
	if !buf.WriteZeros(MACSize) {
		return status.Resources
	}
	region := buf.Bytes()[bodyStart : bodyStart+bodyLen+MACSize]
	n := nonce(e.ourRole, serial)
	return e.cipher.CCMEncrypt(key, n[:], hdr, region)
}

// peerRole is the role tag the other side used when it sealed a
// message we are about to open.
func (e *Envelope) peerRole() role {
	if e.ourRole == roleInitiator {
		return roleResponder
	}
	return roleInitiator
}

// Decrypt verifies and decrypts a received body in place. rx's read
// cursor must be positioned at the start of the (still encrypted) body,
// and the unread bytes must be exactly the ciphertext followed by the
// MAC: everything unread is treated as part of it. On success it
// returns the plaintext body length (BodyLen minus MACSize) and leaves
// the read cursor unchanged, ready for the message layer to unmarshal
// the now-plaintext body.
func (e *Envelope) Decrypt(hdr []byte, rx *iobuf.IOBuf, serial uint32, sessionID uint32, destination string, isSignal bool) (int, status.Status) {
	key, st := e.selectKey(sessionID, destination, isSignal)
	if st != status.OK {
		return 0, st
	}
	view, ok := rx.Peek(rx.Avail())
	if !ok || len(view) < MACSize {
		return 0, status.Read
	}
	n := nonce(e.peerRole(), serial)
	plainLen, st := e.cipher.CCMDecrypt(key, n[:], hdr, view)
	if st != status.OK {
		return 0, status.Security
	}
	return plainLen, status.OK
}
