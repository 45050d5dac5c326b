// Package session owns pairwise sessions: X3DH bootstrap in both directions,
// identity pinning and the double ratchet inside each session.
//
// Operations on one peer are serialised by a per-address lock; different
// peers proceed in parallel. Ratchet state is only committed to the KeyStore
// after a message authenticates (receive) or is delivered (send).
package session
