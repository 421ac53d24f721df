// Package domain defines the core types shared across veil: key material,
// the encrypted envelope, per-peer session state, trust records, account
// store records and the error taxonomy.
//
// The package has no dependencies on other veil packages so that every
// layer (crypto, codec, relay, stores) can import it freely.
package domain
