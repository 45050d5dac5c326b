// Package commands defines the fadirect CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init        Generate and publish the local key set
//   - fingerprint Print the identity fingerprint and public key
//   - send        Encrypt and send a message in an arrangement
//   - recv        List and decrypt the messages of an arrangement
//   - watch       Stream new messages of an arrangement
//   - reset       Drop the sessions with a peer
//   - trust       Show or re-pin a peer's identity key
//   - prekeys     Show or replenish the one-time prekey supply
//   - rotate      Replace the signed prekey
//
// # Implementation
//
// The root command loads the configuration from flags, FADIRECT_* variables
// and config.yaml, then builds the dependency graph (vault, key store,
// document store, services) before any subcommand runs.
package commands
