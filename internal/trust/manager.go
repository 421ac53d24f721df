// Package trust tracks peer public keys on a trust-on-first-use basis and
// supports out-of-band fingerprint verification.
package trust

import (
	"time"

	"veil/internal/crypto"
	"veil/internal/domain"
)

// Manager records known peer keys and their verification state. The
// backing store is a capability interface, so persistence is swappable
// without touching this logic.
type Manager struct {
	store domain.TrustStore
}

// New returns a trust manager over the given store.
func New(store domain.TrustStore) *Manager { return &Manager{store: store} }

// AddKey records a peer's public identity on first sight, computing its
// fingerprint. Re-adding the same username overwrites the record and
// resets verification, since a changed key must be re-verified.
func (m *Manager) AddKey(username string, key domain.PublicIdentity) (domain.TrustedKeyRecord, error) {
	rec := domain.TrustedKeyRecord{
		Username:    username,
		Key:         key,
		Fingerprint: crypto.Fingerprint(key.XPub.Slice()),
		Verified:    false,
		AddedAt:     time.Now(),
	}
	if existing, ok, err := m.store.Get(username); err != nil {
		return domain.TrustedKeyRecord{}, err
	} else if ok && existing.Key == key {
		// Same key seen again: keep the original record, including its
		// verification state and age.
		return existing, nil
	}
	if err := m.store.Put(rec); err != nil {
		return domain.TrustedKeyRecord{}, err
	}
	return rec, nil
}

// VerifyFingerprint marks the peer's key verified when candidate exactly
// matches the stored fingerprint. It reports the outcome and never errors;
// an unknown peer or store failure simply reads as unverified.
func (m *Manager) VerifyFingerprint(username, candidate string) bool {
	rec, ok, err := m.store.Get(username)
	if err != nil || !ok {
		return false
	}
	if rec.Fingerprint != candidate {
		return false
	}
	if !rec.Verified {
		rec.Verified = true
		if err := m.store.Put(rec); err != nil {
			return false
		}
	}
	return true
}

// Status is a pure read of what is known about a peer's key.
func (m *Manager) Status(username string) domain.SecurityStatus {
	rec, ok, err := m.store.Get(username)
	if err != nil || !ok {
		return domain.SecurityStatus{}
	}
	return domain.SecurityStatus{
		HasKey:      true,
		Verified:    rec.Verified,
		Fingerprint: rec.Fingerprint,
		AgeDays:     time.Since(rec.AddedAt).Hours() / 24,
	}
}

// Key returns the stored public identity for a peer.
func (m *Manager) Key(username string) (domain.PublicIdentity, bool) {
	rec, ok, err := m.store.Get(username)
	if err != nil || !ok {
		return domain.PublicIdentity{}, false
	}
	return rec.Key, true
}
