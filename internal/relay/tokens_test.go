package relay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/domain"
	"veil/internal/relay"
	"veil/internal/store"
)

func TestAuthority_IssueValidateResume(t *testing.T) {
	mem := store.NewMemory()
	a := relay.NewAuthority(mem, time.Hour)

	tok, err := a.Issue("uid-1", "alice", "device X")
	require.NoError(t, err)
	assert.Len(t, tok.Token, 64, "hex of a sha256 digest")
	assert.Equal(t, "uid-1", tok.UserID)
	assert.Equal(t, "alice", tok.Username)
	assert.True(t, tok.Active)
	assert.True(t, tok.ExpiresAt.After(tok.IssuedAt))

	uid, err := a.Validate(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	full, err := a.Resume(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, full.Token)
	assert.Equal(t, "alice", full.Username)
}

func TestAuthority_TokensAreUnique(t *testing.T) {
	a := relay.NewAuthority(store.NewMemory(), time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		tok, err := a.Issue("uid", "alice", "same device")
		require.NoError(t, err)
		assert.False(t, seen[tok.Token], "token reuse")
		seen[tok.Token] = true
	}
}

func TestAuthority_RevokeAndExpiry(t *testing.T) {
	mem := store.NewMemory()
	a := relay.NewAuthority(mem, time.Hour)

	tok, err := a.Issue("uid-1", "alice", "d")
	require.NoError(t, err)

	require.NoError(t, a.Revoke(tok.Token))
	_, err = a.Validate(tok.Token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	_, err = a.Resume(tok.Token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	assert.NoError(t, a.Revoke("unknown-token"))

	// Expired tokens read as gone even while still stored.
	fresh, err := a.Issue("uid-2", "bob", "d")
	require.NoError(t, err)
	mem.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = a.Validate(fresh.Token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}
