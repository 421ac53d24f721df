package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"veil/internal/domain"
)

// Authority issues and validates session tokens. Tokens are high-entropy
// opaque strings: a hash over the user id, device info, issue time and 16
// random bytes, so nothing secret can be recovered from one. Tokens are
// never logged and never relayed to third parties.
type Authority struct {
	store domain.AccountStore
	ttl   time.Duration
}

// NewAuthority returns a token authority persisting through store with
// the given token lifetime.
func NewAuthority(store domain.AccountStore, ttl time.Duration) *Authority {
	return &Authority{store: store, ttl: ttl}
}

// Issue mints a token for an authenticated user and persists it.
func (a *Authority) Issue(userID, username, deviceInfo string) (domain.SessionToken, error) {
	now := time.Now()

	var entropy [16]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return domain.SessionToken{}, err
	}
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte(deviceInfo))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))
	h.Write(ts[:])
	h.Write(entropy[:])

	tok := domain.SessionToken{
		Token:      hex.EncodeToString(h.Sum(nil)),
		UserID:     userID,
		Username:   username,
		DeviceInfo: deviceInfo,
		IssuedAt:   now,
		ExpiresAt:  now.Add(a.ttl),
		Active:     true,
	}
	if err := a.store.CreateSession(tok); err != nil {
		return domain.SessionToken{}, fmt.Errorf("persist session: %w", err)
	}
	return tok, nil
}

// Validate returns the user id bound to an active, unexpired token, or
// domain.ErrSessionExpired.
func (a *Authority) Validate(token string) (string, error) {
	return a.store.ValidateSession(token)
}

// Resume returns the full record for an active, unexpired token, for
// session resumption at login.
func (a *Authority) Resume(token string) (domain.SessionToken, error) {
	return a.store.GetSession(token)
}

// Revoke deactivates a token. Revoking an unknown token is a no-op.
func (a *Authority) Revoke(token string) error {
	return a.store.RevokeSession(token)
}
