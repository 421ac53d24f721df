// Package store implements the account persistence the relay delegates
// to: user records, session tokens and message routing metadata.
//
// Two implementations of domain.AccountStore are provided: a Badger-backed
// store for real deployments and an in-memory store for tests and dev
// servers. Neither ever sees plaintext messages or private keys.
package store
