package types

import (
	"crypto/subtle"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// IdentityPublicKeySize is the encoded length of an IdentityPublicKey.
const IdentityPublicKeySize = 64

// IdentityPublicKey is the published half of an identity: the agreement key
// followed by the signing key.
type IdentityPublicKey struct {
	DH      X25519Public  `json:"dh"`
	Signing Ed25519Public `json:"signing"`
}

// Bytes encodes the key as DH || Signing.
func (k IdentityPublicKey) Bytes() []byte {
	out := make([]byte, 0, IdentityPublicKeySize)
	out = append(out, k.DH[:]...)
	return append(out, k.Signing[:]...)
}

// Equal compares two identity keys in constant time.
func (k IdentityPublicKey) Equal(other IdentityPublicKey) bool {
	return subtle.ConstantTimeCompare(k.Bytes(), other.Bytes()) == 1
}

// ParseIdentityPublicKey decodes the output of IdentityPublicKey.Bytes.
func ParseIdentityPublicKey(b []byte) (IdentityPublicKey, error) {
	var k IdentityPublicKey
	if len(b) != IdentityPublicKeySize {
		return k, fmt.Errorf("identity key: want %d bytes, got %d", IdentityPublicKeySize, len(b))
	}
	copy(k.DH[:], b[:32])
	copy(k.Signing[:], b[32:])
	return k, nil
}
