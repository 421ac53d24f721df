// Package envelope builds and opens the authenticated encrypted envelopes
// exchanged between peers.
//
// Layering on the encrypt path, innermost first:
//
//  1. AES-256-GCM over the plaintext with a metadata blob as associated
//     data (the AEAD's own tag rides inside the ciphertext field).
//  2. A keyed BLAKE2b-256 MAC over (ciphertext || nonce || metadata) under
//     a key independent from the encryption key.
//  3. An Ed25519 signature over (ciphertext || nonce || mac) under the
//     sender's long-term identity key.
//
// The external MAC and the AEAD tag are two independent authenticity
// layers; the MAC is never passed into the AEAD. Decrypt checks the MAC in
// constant time, then the signature, then opens the AEAD. No plaintext is
// exposed before all three checks pass.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"veil/internal/crypto"
	"veil/internal/domain"
	"veil/internal/keymgr"
	"veil/internal/ratchet"
	"veil/internal/util/memzero"
)

const (
	systemTag  = "veil"
	nonceBytes = 12
)

// Codec encrypts and decrypts envelopes for one local identity.
type Codec struct {
	keys     *keymgr.Manager
	sessions *ratchet.Store
}

// New returns a codec bound to the local key manager and ratchet store.
func New(keys *keymgr.Manager, sessions *ratchet.Store) *Codec {
	return &Codec{keys: keys, sessions: sessions}
}

// Encrypt seals plaintext for the recipient's long-term key.
//
// A fresh ephemeral X25519 pair is generated per call and its private half
// is wiped as soon as the shared secret exists, so two encryptions of the
// same plaintext never share key material, salt or nonce.
func (c *Codec) Encrypt(plaintext string, recipient domain.PublicIdentity) (domain.Envelope, error) {
	id, err := c.keys.Identity()
	if err != nil {
		return domain.Envelope{}, err
	}

	eph, err := c.keys.GenerateEphemeral()
	if err != nil {
		return domain.Envelope{}, err
	}
	secret, err := crypto.DeriveSharedSecret(eph.Priv, recipient.XPub)
	memzero.Zero32((*[32]byte)(&eph.Priv))
	if err != nil {
		return domain.Envelope{}, err
	}
	defer memzero.Zero32(&secret)

	salt := make([]byte, crypto.SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return domain.Envelope{}, err
	}
	encKey, macKey, err := crypto.DeriveMessageKeys(secret, salt)
	if err != nil {
		return domain.Envelope{}, err
	}
	defer memzero.Zero32(&encKey)
	defer memzero.Zero32(&macKey)

	now := time.Now()
	metadata, err := json.Marshal(domain.EnvelopeMetadata{
		System:    systemTag,
		Tier:      c.keys.Tier(),
		Timestamp: now.Unix(),
	})
	if err != nil {
		return domain.Envelope{}, err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return domain.Envelope{}, err
	}
	aead, err := newAEAD(encKey)
	if err != nil {
		return domain.Envelope{}, err
	}
	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), metadata)

	mac := crypto.MessageMAC(macKey, ciphertext, nonce, metadata)
	signature := crypto.Sign(id.EdPriv, signedBytes(ciphertext, nonce, mac))

	return domain.Envelope{
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		Salt:         salt,
		EphemeralPub: eph.Pub,
		MAC:          mac,
		Metadata:     metadata,
		Signature:    signature,
		Algorithm:    keymgr.Profile(c.keys.Tier()).Algorithm,
		MessageID:    "veil_" + uuid.NewString(),
		Timestamp:    now.Unix(),
	}, nil
}

// Decrypt opens an envelope from the named peer.
//
// The check order is fixed: constant-time MAC comparison, signature
// verification, AEAD open. Any failure aborts with a typed error before
// plaintext exists. On success the peer's rotation state advances; the
// advancement only affects future messages, so decrypting the same
// envelope again still succeeds.
func (c *Codec) Decrypt(env domain.Envelope, from string, sender domain.PublicIdentity) (string, error) {
	id, err := c.keys.Identity()
	if err != nil {
		return "", err
	}

	// Shape checks before any crypto: a peer who completed the DH holds
	// the MAC key, so a valid MAC does not make the nonce trustworthy.
	if len(env.Nonce) != nonceBytes || len(env.Ciphertext) == 0 {
		return "", domain.ErrIntegrity
	}

	secret, err := crypto.DeriveSharedSecret(id.XPriv, env.EphemeralPub)
	if err != nil {
		return "", err
	}
	defer memzero.Zero32(&secret)

	encKey, macKey, err := crypto.DeriveMessageKeys(secret, env.Salt)
	if err != nil {
		return "", err
	}
	defer memzero.Zero32(&encKey)
	defer memzero.Zero32(&macKey)

	expected := crypto.MessageMAC(macKey, env.Ciphertext, env.Nonce, env.Metadata)
	if !hmac.Equal(expected, env.MAC) {
		return "", domain.ErrIntegrity
	}

	if !crypto.Verify(sender.EdPub, signedBytes(env.Ciphertext, env.Nonce, env.MAC), env.Signature) {
		return "", domain.ErrSignature
	}

	aead, err := newAEAD(encKey)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.Metadata)
	if err != nil {
		return "", domain.ErrAeadAuth
	}

	if !utf8.Valid(plaintext) {
		return "", domain.ErrMalformedPlaintext
	}

	if c.sessions != nil {
		c.sessions.Advance(from, secret)
	}
	return string(plaintext), nil
}

// newAEAD builds the AES-256-GCM cipher for a derived message key.
func newAEAD(key [crypto.KeyBytes]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return cipher.NewGCM(block)
}

// signedBytes is the exact byte string the identity signature covers.
func signedBytes(ciphertext, nonce, mac []byte) []byte {
	out := make([]byte, 0, len(ciphertext)+len(nonce)+len(mac))
	out = append(out, ciphertext...)
	out = append(out, nonce...)
	out = append(out, mac...)
	return out
}
