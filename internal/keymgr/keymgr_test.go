package keymgr_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/domain"
	"veil/internal/keymgr"
)

func newManagerWithIdentity(t *testing.T, tier domain.SecurityTier) *keymgr.Manager {
	t.Helper()
	m, err := keymgr.New(tier)
	require.NoError(t, err)
	_, err = m.GenerateIdentity()
	require.NoError(t, err)
	return m
}

func TestNew_RejectsInvalidTier(t *testing.T) {
	_, err := keymgr.New(domain.SecurityTier(0))
	assert.Error(t, err)
	_, err = keymgr.New(domain.SecurityTier(4))
	assert.Error(t, err)
}

func TestIdentity_RequiresGeneration(t *testing.T) {
	m, err := keymgr.New(domain.TierStandard)
	require.NoError(t, err)

	_, err = m.Identity()
	assert.ErrorIs(t, err, keymgr.ErrNoIdentity)

	id, err := m.GenerateIdentity()
	require.NoError(t, err)
	got, err := m.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestGenerateEphemeral_Unique(t *testing.T) {
	m := newManagerWithIdentity(t, domain.TierBasic)

	a, err := m.GenerateEphemeral()
	require.NoError(t, err)
	b, err := m.GenerateEphemeral()
	require.NoError(t, err)
	assert.NotEqual(t, a.Pub, b.Pub)
}

func TestPublicKey_ExportParseRoundTrip(t *testing.T) {
	m := newManagerWithIdentity(t, domain.TierStandard)

	data, err := m.ExportPublicKey()
	require.NoError(t, err)

	pub, err := keymgr.ParsePublicKey(data)
	require.NoError(t, err)

	id, err := m.Identity()
	require.NoError(t, err)
	assert.Equal(t, id.Public(), pub)
}

func TestParsePublicKey_Malformed(t *testing.T) {
	_, err := keymgr.ParsePublicKey([]byte("not json"))
	assert.Error(t, err)
}

func TestExportImport_RoundTrip(t *testing.T) {
	m := newManagerWithIdentity(t, domain.TierBasic)
	id, err := m.Identity()
	require.NoError(t, err)

	blob, err := m.Export("correct horse battery staple")
	require.NoError(t, err)

	restored, err := keymgr.New(domain.TierStandard)
	require.NoError(t, err)
	require.NoError(t, restored.Import(blob, "correct horse battery staple"))

	got, err := restored.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	// The blob carries its own tier.
	assert.Equal(t, domain.TierBasic, restored.Tier())
}

func TestExport_SaltedPerCall(t *testing.T) {
	m := newManagerWithIdentity(t, domain.TierBasic)

	a, err := m.Export("pw")
	require.NoError(t, err)
	b, err := m.Export("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestImport_WrongPasswordLeavesIdentityIntact(t *testing.T) {
	src := newManagerWithIdentity(t, domain.TierBasic)
	blob, err := src.Export("right")
	require.NoError(t, err)

	dst := newManagerWithIdentity(t, domain.TierBasic)
	before, err := dst.Identity()
	require.NoError(t, err)

	err = dst.Import(blob, "wrong")
	require.ErrorIs(t, err, domain.ErrKeyImport)

	after, err := dst.Identity()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImport_MalformedBlob(t *testing.T) {
	m, err := keymgr.New(domain.TierStandard)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Import([]byte("{"), "pw"), domain.ErrKeyImport)
}

func TestImport_WrongLengthNonceAndSalt(t *testing.T) {
	src := newManagerWithIdentity(t, domain.TierBasic)
	blob, err := src.Export("pw")
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(blob, &fields))

	corrupt := func(field string, val []byte) []byte {
		t.Helper()
		raw, err := json.Marshal(val)
		require.NoError(t, err)
		mutated := make(map[string]json.RawMessage, len(fields))
		for k, v := range fields {
			mutated[k] = v
		}
		mutated[field] = raw
		out, err := json.Marshal(mutated)
		require.NoError(t, err)
		return out
	}

	dst, err := keymgr.New(domain.TierStandard)
	require.NoError(t, err)

	// A wrong-length nonce or salt must fail typed, never panic.
	assert.ErrorIs(t, dst.Import(corrupt("nonce", []byte{1, 2, 3}), "pw"), domain.ErrKeyImport)
	assert.ErrorIs(t, dst.Import(corrupt("salt", []byte{1, 2, 3}), "pw"), domain.ErrKeyImport)
	_, err = dst.Identity()
	assert.ErrorIs(t, err, keymgr.ErrNoIdentity)
}

func TestProfile_TierTable(t *testing.T) {
	basic := keymgr.Profile(domain.TierBasic)
	max := keymgr.Profile(domain.TierMaximum)

	assert.Less(t, basic.Argon2MemoryK, max.Argon2MemoryK)
	assert.Greater(t, basic.KeyRotation, max.KeyRotation)
	assert.NotEqual(t, basic.Algorithm, max.Algorithm)

	// Unknown tiers fall back to the standard profile.
	assert.Equal(t, keymgr.Profile(domain.TierStandard), keymgr.Profile(domain.SecurityTier(99)))
}

func TestFingerprint_StableForIdentity(t *testing.T) {
	m := newManagerWithIdentity(t, domain.TierStandard)

	fp1, err := m.Fingerprint()
	require.NoError(t, err)
	fp2, err := m.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	other := newManagerWithIdentity(t, domain.TierStandard)
	fpOther, err := other.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fpOther)
}
