// Package wire defines the transport encoding of encrypted messages.
//
// An envelope is the base64 encoding of the JSON object
//
//	{"type": 3|1, "body": "<base64>"}
//
// where type 3 (PREKEY) bootstraps a session and type 1 (WHISPER) is an
// ordinary ratchet message. The body is
//
//	version(1) || headerLen(uint16, big endian) || header || nonce || ciphertext
//
// with the header CBOR-encoded as an array: [dhPub, pn, n] for WHISPER and
// [registrationId, preKeyId|null, signedPreKeyId, baseKey, identityKey,
// [dhPub, pn, n]] for PREKEY. Receivers authenticate the raw header bytes as
// AEAD associated data, so the header is never re-encoded on the receive path.
package wire
