// Package identity generates the local key set and publishes its public half.
//
// A key set is an X25519/Ed25519 identity, a registration id, a batch of
// one-time prekeys and a signed prekey. Everything is persisted to the
// KeyStore before anything is published, so a published bundle always has
// its private halves on the device.
package identity
