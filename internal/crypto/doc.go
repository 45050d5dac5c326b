// Package crypto exposes the minimal primitives used by FADirect.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Key set generation: identities, registration ids, signed and one-time
//     prekeys
//   - Short public-key fingerprints for display/logging (Fingerprint,
//     IdentityFingerprint)
//   - Base64 helpers used by the published bundle format
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with internal/util/memzero when practical.
package crypto
