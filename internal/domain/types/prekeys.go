package types

import (
	"time"

	"github.com/alecthomas/types/optional"
)

// OneTimePreKey is a single-use X25519 pair published in batches.
type OneTimePreKey struct {
	ID      PreKeyID      `json:"id"`
	Private X25519Private `json:"priv"`
	Public  X25519Public  `json:"pub"`
}

// PublicPart drops the private half.
func (k OneTimePreKey) PublicPart() OneTimePreKeyPublic {
	return OneTimePreKeyPublic{ID: k.ID, Public: k.Public}
}

// OneTimePreKeyPublic is the published half of a one-time prekey.
type OneTimePreKeyPublic struct {
	ID     PreKeyID     `json:"id"`
	Public X25519Public `json:"pub"`
}

// SignedPreKey is a medium-term X25519 pair whose public half is signed by
// the identity's Ed25519 key.
type SignedPreKey struct {
	ID        SignedPreKeyID `json:"id"`
	Private   X25519Private  `json:"priv"`
	Public    X25519Public   `json:"pub"`
	Signature []byte         `json:"sig"`
	CreatedAt time.Time      `json:"created_at"`
}

// PublicPart drops the private half.
func (k SignedPreKey) PublicPart() SignedPreKeyPublic {
	return SignedPreKeyPublic{ID: k.ID, Public: k.Public, Signature: k.Signature}
}

// SignedPreKeyPublic is the published half of a signed prekey.
type SignedPreKeyPublic struct {
	ID        SignedPreKeyID `json:"id"`
	Public    X25519Public   `json:"pub"`
	Signature []byte         `json:"sig"`
}

// PreKeyBundle is what an initiator needs to start a session with a peer.
// OneTimePreKey is None once the peer's published pool is exhausted.
type PreKeyBundle struct {
	UserID         UserID
	RegistrationID RegistrationID
	DeviceID       DeviceID
	IdentityKey    IdentityPublicKey
	SignedPreKey   SignedPreKeyPublic
	OneTimePreKey  optional.Option[OneTimePreKeyPublic]
}

// PublishedKeys is the public projection of a freshly generated key set.
type PublishedKeys struct {
	IdentityKey    IdentityPublicKey
	RegistrationID RegistrationID
	PreKeys        []OneTimePreKeyPublic
	SignedPreKey   SignedPreKeyPublic
	CreatedAt      time.Time
}

// PreKeyStatus summarises the prekey supply of the local account.
type PreKeyStatus struct {
	LocalPreKeys        int
	PublishedPreKeys    int
	SignedPreKeyID      SignedPreKeyID
	SignedPreKeyCreated time.Time
}
