package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeyBytes is the size of every symmetric key derived here.
	KeyBytes = 32
	// SaltBytes is the per-message random salt length.
	SaltBytes = 16
	// MACBytes is the keyed BLAKE2b digest length.
	MACBytes = 32
)

// HKDF context labels. The receiver must use the same labels to reproduce
// the sender's keys.
var (
	messageKeyInfo = []byte("veil message encryption")
	chainKeyInfo   = []byte("veil chain rotation")
)

// DeriveMessageKeys stretches a shared secret and a per-message salt into
// two independent 256-bit keys via HKDF-SHA512: one for the AEAD, one for
// the keyed MAC. The salt travels in the envelope so the receiver derives
// the same pair.
func DeriveMessageKeys(sharedSecret [32]byte, salt []byte) (encKey, macKey [KeyBytes]byte, err error) {
	r := hkdf.New(sha512.New, sharedSecret[:], salt, messageKeyInfo)
	if _, err = io.ReadFull(r, encKey[:]); err != nil {
		return
	}
	_, err = io.ReadFull(r, macKey[:])
	return
}

// RotateChainKey stretches a chain key into the next send/receive chain
// pair. Used by the per-peer rotation state after each decrypt.
func RotateChainKey(chainKey []byte) (nextSend, nextRecv []byte) {
	r := hkdf.New(sha256.New, chainKey, nil, chainKeyInfo)
	nextSend = make([]byte, KeyBytes)
	nextRecv = make([]byte, KeyBytes)
	_, _ = io.ReadFull(r, nextSend)
	_, _ = io.ReadFull(r, nextRecv)
	return
}

// MessageMAC computes the keyed BLAKE2b-256 MAC over data. The MAC key is
// independent from the encryption key, so a forged ciphertext fails here
// before any decryption is attempted.
func MessageMAC(macKey [KeyBytes]byte, data ...[]byte) []byte {
	h, _ := blake2b.New256(macKey[:])
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
