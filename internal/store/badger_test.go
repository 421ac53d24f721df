package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/domain"
	"veil/internal/store"
)

func openTestBadger(t *testing.T) *store.Badger {
	t.Helper()
	s, err := store.OpenBadger(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadger_RegisterAndAuthenticate(t *testing.T) {
	s := openTestBadger(t)
	id := registerTestUser(t, s, "alice", "hunter2hunter2")

	got, err := s.Authenticate("alice", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = s.Authenticate("alice", "wrong password")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	_, err = s.Authenticate("nobody", "whatever")
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestBadger_RegisterConflict(t *testing.T) {
	s := openTestBadger(t)
	registerTestUser(t, s, "alice", "passwordpassword")

	hash, err := store.HashPassword("other")
	require.NoError(t, err)
	_, err = s.RegisterUser("alice", "", makePublicIdentity(t), hash, domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrRegistrationConflict)
}

func TestBadger_PublicKeySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	pub := makePublicIdentity(t)

	s, err := store.OpenBadger(dir, nil)
	require.NoError(t, err)
	hash, err := store.HashPassword("passwordpassword")
	require.NoError(t, err)
	_, err = s.RegisterUser("bob", "Bobby", pub, hash, domain.TierMaximum)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.OpenBadger(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetPublicKey("bob")
	require.NoError(t, err)
	assert.Equal(t, pub, got)
}

func TestBadger_OnlineStatus(t *testing.T) {
	s := openTestBadger(t)
	registerTestUser(t, s, "alice", "passwordpassword")
	registerTestUser(t, s, "bob", "passwordpassword")
	require.NoError(t, s.SetUserStatus("alice", false))

	users, err := s.GetOnlineUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	// Marking an unknown user is a no-op.
	assert.NoError(t, s.SetUserStatus("nobody", true))
}

func TestBadger_SessionLifecycle(t *testing.T) {
	s := openTestBadger(t)
	id := registerTestUser(t, s, "alice", "passwordpassword")

	tok := sessionFor(id, "alice", time.Hour)
	require.NoError(t, s.CreateSession(tok))

	gotID, err := s.ValidateSession(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	full, err := s.GetSession(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", full.Username)
	assert.Equal(t, id, full.UserID)

	require.NoError(t, s.RevokeSession(tok.Token))
	_, err = s.ValidateSession(tok.Token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	assert.NoError(t, s.RevokeSession("no-such-token"))
}

func TestBadger_SessionAlreadyExpired(t *testing.T) {
	s := openTestBadger(t)
	tok := sessionFor("uid", "alice", -time.Minute)
	assert.Error(t, s.CreateSession(tok), "an already expired token must not be stored")
}

func TestBadger_UnknownSession(t *testing.T) {
	s := openTestBadger(t)
	_, err := s.ValidateSession("missing")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	_, err = s.GetSession("missing")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestBadger_Stats(t *testing.T) {
	s := openTestBadger(t)
	id := registerTestUser(t, s, "alice", "passwordpassword")
	registerTestUser(t, s, "bob", "passwordpassword")
	require.NoError(t, s.SetUserStatus("bob", false))
	require.NoError(t, s.CreateSession(sessionFor(id, "alice", time.Hour)))
	require.NoError(t, s.LogMessageMetadata(domain.MessageMetadata{
		MessageID: "veil_1", Sender: "alice", Receiver: "bob",
		ContentHash: "abc", Type: "text", Timestamp: time.Now(),
	}))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalUsers)
	assert.Equal(t, 1, st.OnlineUsers)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, 1, st.TotalMessages)

	// A revoked session still has a record but must not count as active.
	revoked := sessionFor(id, "alice-laptop", time.Hour)
	require.NoError(t, s.CreateSession(revoked))
	require.NoError(t, s.RevokeSession(revoked.Token))

	st, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveSessions)
}
