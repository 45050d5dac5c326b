// Package directory publishes and fetches prekey bundles in the shared
// document store.
//
// Each account owns one document in the "encryption_keys" table, keyed by
// user id. Fetching a bundle claims exactly one published one-time prekey,
// oldest first, through the store's atomic take.
package directory
