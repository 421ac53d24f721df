package domain

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Identity holds a user's long-term key material: an X25519 pair for key
// agreement and an Ed25519 pair for message signatures. The private halves
// never leave the owning process except through the password-protected
// export path.
type Identity struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// PublicIdentity is the shareable half of an Identity.
type PublicIdentity struct {
	XPub  X25519Public  `json:"xpub"`
	EdPub Ed25519Public `json:"edpub"`
}

// Public returns the shareable half of the identity.
func (id Identity) Public() PublicIdentity {
	return PublicIdentity{XPub: id.XPub, EdPub: id.EdPub}
}

// EphemeralKeyPair is a single-use X25519 pair. The private half must be
// wiped as soon as the shared secret has been derived; reuse breaks the
// forward-secrecy guarantee.
type EphemeralKeyPair struct {
	Priv X25519Private
	Pub  X25519Public
}

// SecurityTier selects the strength profile for key derivation and
// rotation. It is a fixed lookup, not a computed value.
type SecurityTier int

const (
	TierBasic    SecurityTier = 1
	TierStandard SecurityTier = 2
	TierMaximum  SecurityTier = 3
)

// Valid reports whether t is one of the three defined tiers.
func (t SecurityTier) Valid() bool { return t >= TierBasic && t <= TierMaximum }
