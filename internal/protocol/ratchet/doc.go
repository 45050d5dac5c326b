// Package ratchet implements the Double Ratchet algorithm following Signal's design.
//
// The algorithm maintains a root key and two message chains (send and receive).
// Each message advances a KDF chain so that keys are forward secure. When a party
// changes its DH ratchet public key, both sides derive new chain keys from a new
// root derived via DH.
//
// Messages are sealed with XChaCha20-Poly1305 under a fresh random nonce, so a
// message key is never paired with a repeated nonce even if a send is retried.
// The caller supplies the associated data (the session's identity binding) and
// a HeaderEncoder; the encoded header is appended to the associated data so
// every header bit is authenticated.
//
// Keys for messages that arrive out of order are kept in a bounded skipped-key
// list (MaxSkip per gap, the oldest evicted first).
//
// Concurrency: RatchetState is NOT safe for concurrent use. Callers must
// serialise access per conversation. Encrypt and Decrypt leave the state
// untouched when they fail.
package ratchet
