package keymgr

import (
	"time"

	"veil/internal/domain"
)

// TierProfile is the strength profile selected by a security tier. The
// table is fixed; nothing here is computed at runtime.
type TierProfile struct {
	// Argon2id cost parameters for password-based key derivation.
	Argon2Time    uint32
	Argon2MemoryK uint32
	Argon2Threads uint8

	// Recommended interval between identity key rotations.
	KeyRotation time.Duration

	// Algorithm identifies the tier's primitive suite on the wire.
	Algorithm string
}

var tierProfiles = map[domain.SecurityTier]TierProfile{
	domain.TierBasic: {
		Argon2Time:    1,
		Argon2MemoryK: 64 * 1024,
		Argon2Threads: 2,
		KeyRotation:   24 * time.Hour,
		Algorithm:     "VEIL-X25519-AES256GCM-BLAKE2b-T1",
	},
	domain.TierStandard: {
		Argon2Time:    2,
		Argon2MemoryK: 128 * 1024,
		Argon2Threads: 4,
		KeyRotation:   12 * time.Hour,
		Algorithm:     "VEIL-X25519-AES256GCM-BLAKE2b-T2",
	},
	domain.TierMaximum: {
		Argon2Time:    4,
		Argon2MemoryK: 256 * 1024,
		Argon2Threads: 4,
		KeyRotation:   6 * time.Hour,
		Algorithm:     "VEIL-X25519-AES256GCM-BLAKE2b-T3",
	},
}

// Profile returns the fixed strength profile for a tier. Unknown tiers
// fall back to the standard profile.
func Profile(t domain.SecurityTier) TierProfile {
	if p, ok := tierProfiles[t]; ok {
		return p
	}
	return tierProfiles[domain.TierStandard]
}
