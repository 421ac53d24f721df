package domain

import "errors"

// Cryptographic failures. Every one of these aborts the operation before
// any plaintext is exposed to the caller.
var (
	// ErrKeyAgreement indicates ECDH failed, usually a malformed peer key.
	ErrKeyAgreement = errors.New("key agreement failed")

	// ErrIntegrity indicates the keyed MAC over the envelope did not match.
	ErrIntegrity = errors.New("envelope integrity check failed")

	// ErrSignature indicates the sender's identity signature did not verify.
	ErrSignature = errors.New("envelope signature verification failed")

	// ErrAeadAuth indicates the AEAD authentication tag was rejected.
	ErrAeadAuth = errors.New("aead authentication failed")

	// ErrKeyImport indicates an identity blob could not be opened, most
	// commonly because the password was wrong.
	ErrKeyImport = errors.New("key import failed")

	// ErrMalformedPlaintext indicates decryption succeeded but the result
	// was not valid UTF-8 text.
	ErrMalformedPlaintext = errors.New("plaintext is not valid UTF-8")
)

// Protocol and relay failures.
var (
	// ErrProtocolVersion indicates a frame with an unsupported protocol tag.
	ErrProtocolVersion = errors.New("protocol version mismatch")

	// ErrPeerOffline indicates the receiver has no live connection. There
	// is no store-and-forward: the message is dropped.
	ErrPeerOffline = errors.New("peer is offline; message will not be queued")

	// ErrSessionExpired indicates a session token that is revoked or past
	// its expiry.
	ErrSessionExpired = errors.New("session token expired or revoked")

	// ErrRegistrationConflict indicates the username is already taken.
	ErrRegistrationConflict = errors.New("username already registered")

	// ErrAuthentication indicates bad credentials.
	ErrAuthentication = errors.New("authentication failed")
)
