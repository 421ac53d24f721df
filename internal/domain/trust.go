package domain

import "time"

// TrustedKeyRecord is a trust-on-first-use entry for a peer's long-term
// public identity. Verified flips to true only through an explicit
// out-of-band fingerprint confirmation and is never auto-downgraded.
type TrustedKeyRecord struct {
	Username    string         `json:"username"`
	Key         PublicIdentity `json:"key"`
	Fingerprint string         `json:"fingerprint"`
	Verified    bool           `json:"verified"`
	AddedAt     time.Time      `json:"added_at"`
}

// SecurityStatus summarizes what is known about a peer's key.
type SecurityStatus struct {
	HasKey      bool    `json:"has_key"`
	Verified    bool    `json:"verified"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	AgeDays     float64 `json:"key_age_days,omitempty"`
}

// TrustStore is the persistence capability behind the trust manager.
// Implementations may be in-memory, file-backed or database-backed; the
// manager logic does not change.
type TrustStore interface {
	Put(rec TrustedKeyRecord) error
	Get(username string) (TrustedKeyRecord, bool, error)
	List() ([]TrustedKeyRecord, error)
}
