// Package store provides the per-device persistence for FADirect's key
// material.
//
// KeyStore is a typed layer over a domain.SecureStorage vault. Each value is
// one of a closed set of records (identity, registration id, one-time prekey,
// signed prekey, session, pinned peer identity, prekey counter, cached message
// content) written as a kind byte followed by CBOR, under a namespaced key:
//
//	identity            registration         meta:prekeys
//	preKey:<id>         signedPreKey:<id>    session:<name>.<device>
//	trusted:<name>.<device>                  message:<id>
//
// Three vaults are provided:
//   - FileVault: one scrypt/XChaCha20-Poly1305 sealed file, replaced atomically
//   - KeyringVault: the OS keyring via github.com/99designs/keyring
//   - MemoryVault: process memory, for tests
//
// AccountFileStore keeps the non-secret account profile next to the vault.
// All types are safe for concurrent use.
package store
