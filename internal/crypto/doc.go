// Package crypto exposes the primitives the veil engine is built from.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519,
//     DeriveSharedSecret)
//   - Ed25519 signing and verification (GenerateEd25519, Sign, Verify)
//   - HKDF-SHA512 message-key derivation (DeriveMessageKeys) and the chain
//     rotation KDF (RotateChainKey)
//   - Keyed BLAKE2b MACs (MessageMAC) and public-key fingerprints
//     (Fingerprint)
//
// All functions operate on the fixed-size key types in internal/domain.
// Callers should treat returned secrets as sensitive and wipe them with
// memzero when practical.
package crypto
