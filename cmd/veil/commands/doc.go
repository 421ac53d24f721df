// Package commands defines the veil CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init         Create the local identity and store it encrypted
//   - fingerprint  Print the identity fingerprint
//   - export       Write the password-protected identity blob to a file
//   - import       Restore an identity from an exported blob
//   - verify       Confirm a peer's fingerprint after out-of-band comparison
//   - status       Show what is known about a peer's key
//   - register     Create an account on a relay
//   - chat         Connect, log in and chat interactively
//
// # Implementation
//
// The root command builds a shared app context (trust store, key manager,
// client engine) before any subcommand runs. Commands that talk to a relay
// load the identity with the passphrase first; purely local commands never
// touch the network.
package commands
