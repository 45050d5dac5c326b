package directory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
)

const (
	fieldIdentityKey    = "identityKey"
	fieldRegistrationID = "registrationId"
	fieldPreKeys        = "preKeys"
	fieldSignedPreKey   = "signedPreKey"
	fieldCreatedAt      = "createdAt"
)

// bundleRecord is the JSON document stored per account.
type bundleRecord struct {
	IdentityKey    string            `json:"identityKey"`
	RegistrationID uint32            `json:"registrationId"`
	PreKeys        []preKeyEntry     `json:"preKeys"`
	SignedPreKey   signedPreKeyEntry `json:"signedPreKey"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type preKeyEntry struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

type signedPreKeyEntry struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

func newRecord(keys domain.PublishedKeys) bundleRecord {
	return bundleRecord{
		IdentityKey:    crypto.B64(keys.IdentityKey.Bytes()),
		RegistrationID: uint32(keys.RegistrationID),
		PreKeys:        preKeyEntries(keys.PreKeys),
		SignedPreKey:   signedEntry(keys.SignedPreKey),
		CreatedAt:      keys.CreatedAt.UTC(),
	}
}

func preKeyEntries(keys []domain.OneTimePreKeyPublic) []preKeyEntry {
	out := make([]preKeyEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, preKeyEntry{KeyID: uint32(k.ID), PublicKey: crypto.B64(k.Public.Slice())})
	}
	return out
}

func signedEntry(k domain.SignedPreKeyPublic) signedPreKeyEntry {
	return signedPreKeyEntry{
		KeyID:     uint32(k.ID),
		PublicKey: crypto.B64(k.Public.Slice()),
		Signature: crypto.B64(k.Signature),
	}
}

// document converts v into a top-level field map.
func document(v any) (domain.Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeRecord(doc domain.Document) (bundleRecord, error) {
	var r bundleRecord
	b, err := json.Marshal(doc)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("malformed bundle record: %w", err)
	}
	return r, nil
}

func (r bundleRecord) identity() (domain.IdentityPublicKey, error) {
	b, err := crypto.FromB64Fixed(r.IdentityKey, domain.IdentityPublicKeySize)
	if err != nil {
		return domain.IdentityPublicKey{}, fmt.Errorf("identity key: %w", err)
	}
	return domain.ParseIdentityPublicKey(b)
}

func (e signedPreKeyEntry) decode() (domain.SignedPreKeyPublic, error) {
	pub, err := crypto.FromB64Fixed(e.PublicKey, 32)
	if err != nil {
		return domain.SignedPreKeyPublic{}, fmt.Errorf("signed prekey: %w", err)
	}
	sig, err := crypto.FromB64(e.Signature)
	if err != nil {
		return domain.SignedPreKeyPublic{}, fmt.Errorf("signed prekey signature: %w", err)
	}
	out := domain.SignedPreKeyPublic{ID: domain.SignedPreKeyID(e.KeyID), Signature: sig}
	copy(out.Public[:], pub)
	return out, nil
}

func (e preKeyEntry) decode() (domain.OneTimePreKeyPublic, error) {
	pub, err := crypto.FromB64Fixed(e.PublicKey, 32)
	if err != nil {
		return domain.OneTimePreKeyPublic{}, fmt.Errorf("one-time prekey %d: %w", e.KeyID, err)
	}
	out := domain.OneTimePreKeyPublic{ID: domain.PreKeyID(e.KeyID)}
	copy(out.Public[:], pub)
	return out, nil
}
