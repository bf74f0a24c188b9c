package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// AESCCM is the default CipherSuite: AES in counter mode for
// confidentiality plus a CBC-MAC over the AAD and plaintext for
// authentication, combined CCM-style. No third-party CCM
// implementation was found anywhere in the reference corpus this
// module was grounded on, so this package builds the primitive
// directly on the standard library's crypto/aes block cipher rather
// than pulling in an unrelated dependency to avoid one.
type AESCCM struct{}

// blockSize is fixed by AES; CCM nonces here are padded to it for the
// counter-mode IV and to a full block for the CBC-MAC IV.
const blockSize = aes.BlockSize

func ctrIV(nonce []byte, counter uint16) []byte {
	iv := make([]byte, blockSize)
	copy(iv, nonce)
	iv[blockSize-2] = byte(counter >> 8)
	iv[blockSize-1] = byte(counter)
	return iv
}

func cbcMAC(block cipher.Block, nonce, aad, data []byte) []byte {
	mac := make([]byte, blockSize)
	mix := func(chunk []byte) {
		padded := make([]byte, blockSize)
		copy(padded, chunk)
		for i := range mac {
			mac[i] ^= padded[i]
		}
		block.Encrypt(mac, mac)
	}
	iv := make([]byte, blockSize)
	copy(iv, nonce)
	mix(iv)
	for len(aad) > 0 {
		n := blockSize
		if n > len(aad) {
			n = len(aad)
		}
		mix(aad[:n])
		aad = aad[n:]
	}
	for len(data) > 0 {
		n := blockSize
		if n > len(data) {
			n = len(data)
		}
		mix(data[:n])
		data = data[n:]
	}
	return mac
}

// CCMEncrypt encrypts buf[:len(buf)-MACSize] in place with AES-CTR and
// writes the MACSize-byte authentication tag into buf's final
// MACSize bytes.
func (AESCCM) CCMEncrypt(key, nonce, aad []byte, buf []byte) status.Status {
	if len(buf) < MACSize {
		return status.Invalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return status.Invalid
	}
	plainLen := len(buf) - MACSize
	plaintext := append([]byte(nil), buf[:plainLen]...)

	mac := cbcMAC(block, nonce, aad, plaintext)

	stream := cipher.NewCTR(block, ctrIV(nonce, 0))
	stream.XORKeyStream(buf[:plainLen], plaintext)

	tagStream := cipher.NewCTR(block, ctrIV(nonce, 0xFFFF))
	tag := make([]byte, MACSize)
	tagStream.XORKeyStream(tag, mac[:MACSize])
	copy(buf[plainLen:], tag)
	return status.OK
}

// CCMDecrypt verifies buf's trailing MACSize-byte tag and, if valid,
// decrypts buf[:len(buf)-MACSize] in place, returning its length.
func (AESCCM) CCMDecrypt(key, nonce, aad []byte, buf []byte) (int, status.Status) {
	if len(buf) < MACSize {
		return 0, status.Security
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, status.Security
	}
	cipherLen := len(buf) - MACSize
	ciphertext := append([]byte(nil), buf[:cipherLen]...)
	gotTag := append([]byte(nil), buf[cipherLen:]...)

	stream := cipher.NewCTR(block, ctrIV(nonce, 0))
	plaintext := make([]byte, cipherLen)
	stream.XORKeyStream(plaintext, ciphertext)

	mac := cbcMAC(block, nonce, aad, plaintext)
	tagStream := cipher.NewCTR(block, ctrIV(nonce, 0xFFFF))
	wantTag := make([]byte, MACSize)
	tagStream.XORKeyStream(wantTag, mac[:MACSize])

	if subtle.ConstantTimeCompare(wantTag, gotTag) != 1 {
		return 0, status.Security
	}
	copy(buf[:cipherLen], plaintext)
	return cipherLen, status.OK
}
