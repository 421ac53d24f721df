package keymgr

import (
	"encoding/json"
	"errors"
	"fmt"

	"veil/internal/crypto"
	"veil/internal/domain"
)

// ErrNoIdentity is returned when an operation needs the long-term identity
// before one has been generated or imported.
var ErrNoIdentity = errors.New("no identity keypair; generate or import one first")

// Manager owns the long-term identity keypair and hands out single-use
// ephemeral keypairs. The identity's private halves never leave the
// manager except through the password-protected Export path.
type Manager struct {
	tier     domain.SecurityTier
	identity *domain.Identity
}

// New returns a key manager at the given security tier.
func New(tier domain.SecurityTier) (*Manager, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid security tier %d", tier)
	}
	return &Manager{tier: tier}, nil
}

// Tier returns the manager's security tier.
func (m *Manager) Tier() domain.SecurityTier { return m.tier }

// GenerateIdentity creates a fresh long-term identity: an X25519 pair for
// key agreement and an Ed25519 pair for signatures. Any previous identity
// is replaced.
func (m *Manager) GenerateIdentity() (domain.Identity, error) {
	xpriv, xpub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate x25519 identity: %w", err)
	}
	edpriv, edpub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate ed25519 identity: %w", err)
	}
	id := domain.Identity{XPub: xpub, XPriv: xpriv, EdPub: edpub, EdPriv: edpriv}
	m.identity = &id
	return id, nil
}

// Identity returns the current identity, or ErrNoIdentity.
func (m *Manager) Identity() (domain.Identity, error) {
	if m.identity == nil {
		return domain.Identity{}, ErrNoIdentity
	}
	return *m.identity, nil
}

// GenerateEphemeral returns a fresh X25519 pair for exactly one key
// agreement. The caller must wipe the private half immediately after the
// shared secret is derived.
func (m *Manager) GenerateEphemeral() (domain.EphemeralKeyPair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.EphemeralKeyPair{}, fmt.Errorf("generate ephemeral keypair: %w", err)
	}
	return domain.EphemeralKeyPair{Priv: priv, Pub: pub}, nil
}

// ExportPublicKey serializes the shareable half of the identity.
func (m *Manager) ExportPublicKey() ([]byte, error) {
	if m.identity == nil {
		return nil, ErrNoIdentity
	}
	return json.Marshal(m.identity.Public())
}

// ParsePublicKey is the inverse of ExportPublicKey.
func ParsePublicKey(data []byte) (domain.PublicIdentity, error) {
	var pub domain.PublicIdentity
	if err := json.Unmarshal(data, &pub); err != nil {
		return domain.PublicIdentity{}, fmt.Errorf("parse public key: %w", err)
	}
	return pub, nil
}

// Fingerprint returns the fingerprint of the local identity's key-agreement
// public key.
func (m *Manager) Fingerprint() (string, error) {
	if m.identity == nil {
		return "", ErrNoIdentity
	}
	return crypto.Fingerprint(m.identity.XPub.Slice()), nil
}
