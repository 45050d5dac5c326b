package domain

import "errors"

// Error taxonomy shared by every layer. Callers classify failures with
// errors.Is; wrapping layers add context with fmt.Errorf("...: %w").
var (
	// ErrKeyGeneration is returned when a key set could not be created or
	// persisted. Nothing is published when it occurs.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrNoIdentity means the local device has not generated keys yet.
	ErrNoIdentity = errors.New("no local identity; generate keys first")

	// ErrBundleNotFound means the recipient never published a bundle.
	ErrBundleNotFound = errors.New("recipient has no published key bundle")

	// ErrInvalidSignature means a signed prekey signature did not verify.
	ErrInvalidSignature = errors.New("signed prekey signature verification failed")

	// ErrUntrustedIdentity means the peer presented an identity key that
	// differs from the one pinned for them.
	ErrUntrustedIdentity = errors.New("peer identity key does not match pinned identity")

	// ErrSessionDecrypt covers authentication failures, malformed bodies,
	// replays and missing prekeys on the receive path.
	ErrSessionDecrypt = errors.New("unable to decrypt message")

	// ErrSessionNotFound means an ordinary message arrived with no session.
	ErrSessionNotFound = errors.New("no session with peer")

	// ErrStorage wraps failures of the local key store.
	ErrStorage = errors.New("key store failure")

	// ErrDocumentNotFound is returned by document stores for missing documents.
	ErrDocumentNotFound = errors.New("document not found")
)
