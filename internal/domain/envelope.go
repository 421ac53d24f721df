package domain

// Envelope is the authenticated, encrypted unit relayed between peers.
// Binary fields marshal as base64 via encoding/json. The relay treats the
// whole structure as an opaque blob; routing uses only the frame fields
// carried alongside it.
//
// Immutable once constructed. The MAC covers (ciphertext || nonce ||
// metadata) under a key independent from the encryption key; the signature
// covers (ciphertext || nonce || mac) under the sender's identity key.
type Envelope struct {
	Ciphertext   []byte       `json:"ciphertext"`
	Nonce        []byte       `json:"iv"`
	Salt         []byte       `json:"salt"`
	EphemeralPub X25519Public `json:"ephemeral_public_key"`
	MAC          []byte       `json:"hmac"`
	Metadata     []byte       `json:"metadata"`
	Signature    []byte       `json:"signature"`
	Algorithm    string       `json:"algorithm"`
	MessageID    string       `json:"message_id"`
	Timestamp    int64        `json:"timestamp"`
}

// EnvelopeMetadata is the additional authenticated data bound into the
// AEAD. It is serialized to JSON and carried verbatim in Envelope.Metadata
// so the receiver authenticates exactly the bytes the sender produced.
type EnvelopeMetadata struct {
	System    string       `json:"system"`
	Tier      SecurityTier `json:"security_tier"`
	Timestamp int64        `json:"timestamp"`
}
