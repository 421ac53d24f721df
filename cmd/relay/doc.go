// Package main runs the veil relay: an untrusted forwarding server for
// end-to-end encrypted traffic between online users.
//
// Protocol
//
// Clients speak newline-delimited JSON frames over TCP (optionally TLS).
// Each frame carries a protocol version, a type and a type-specific
// payload; see the protocol package for the full set.
//
// Behaviour
//
//   - Accounts, sessions and message metadata persist in BadgerDB, or in
//     memory with -mem for local testing.
//   - The relay forwards encrypted envelopes between online users without
//     decrypting them; it records only routing metadata and a ciphertext
//     hash. Messages to offline users are rejected, never queued.
//   - Idle connections are dropped after the read timeout; session tokens
//     survive and allow password-less resumption within their lifetime.
//
// The relay never sees plaintext or private keys. It is designed to run as
// an untrusted middleman: compromising it exposes who talked to whom and
// when, not what was said.
package main
