// Package app wires application dependencies for the CLI.
//
// It builds the trust store, key manager and client engine from Config and
// handles identity and session persistence in the config directory, so
// commands share one dependency graph instead of constructing their own.
package app
