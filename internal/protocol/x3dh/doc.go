// Package x3dh implements the X3DH key-agreement used to bootstrap a Double Ratchet
// session between two parties.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte secret with a responder who has
// published a prekey bundle. The bundle contains:
//   - Identity key (X25519 agreement key plus Ed25519 signing key)
//   - Signed prekey (X25519) and its Ed25519 signature
//   - Optionally one one-time prekey (X25519), claimed from the directory
//
// # Flows
//
// Initiator (Initiate):
//  1. Verify the signed prekey signature.
//  2. Generate an ephemeral X25519 key pair (the base key).
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over 0xff*32 || transcript to produce the shared secret.
//  5. Return the secret, the base key, the prekey ids used and the session
//     associated data.
//
// Responder (Respond):
//  1. Receive the initiator identity, base key and prekey ids in a PREKEY message.
//  2. Look up SPK and the referenced OPK.
//  3. Compute the symmetric DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  4. HKDF the same transcript to the identical secret.
//
// # Errors
//
// domain.ErrInvalidSignature is returned when the SPK signature fails
// verification. Other errors wrap lower-level crypto failures.
//
// # Security notes
//
// Only public material is sent over the wire. One-time prekeys, when present,
// improve forward secrecy by ensuring the handshake mixes in a value that is
// deleted after first use.
package x3dh
