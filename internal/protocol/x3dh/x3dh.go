package x3dh

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/util/memzero"
)

const (
	// SharedKeySize is the length of the derived secret.
	SharedKeySize = 32
	info          = "FADirect-x3dh"
)

// InitiatorResult is what the initiator keeps after the agreement.
type InitiatorResult struct {
	SharedKey      []byte
	BaseKey        domain.X25519Public
	SignedPreKeyID domain.SignedPreKeyID
	PreKeyID       *domain.PreKeyID
	AssociatedData []byte
}

// Initiate runs X3DH against bundle. The signed prekey signature is checked
// before any secret is derived.
func Initiate(id domain.IdentityKeyPair, bundle domain.PreKeyBundle) (InitiatorResult, error) {
	if !VerifySignedPreKey(bundle.IdentityKey, bundle.SignedPreKey) {
		return InitiatorResult{}, domain.ErrInvalidSignature
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return InitiatorResult{}, err
	}
	defer memzero.Key(&ephPriv)

	spk := bundle.SignedPreKey.Public

	// DH(IKa, SPKb) || DH(EKa, IKb) || DH(EKa, SPKb) [|| DH(EKa, OPKb)]
	privs := []domain.X25519Private{id.XPriv, ephPriv, ephPriv}
	pubs := []domain.X25519Public{spk, bundle.IdentityKey.DH, spk}
	var opkID *domain.PreKeyID
	if opk, ok := bundle.OneTimePreKey.Get(); ok {
		privs = append(privs, ephPriv)
		pubs = append(pubs, opk.Public)
		keyID := opk.ID
		opkID = &keyID
	}
	transcript, err := agree(privs, pubs)
	for i := range privs {
		memzero.Key(&privs[i])
	}
	if err != nil {
		return InitiatorResult{}, err
	}

	sk, err := derive(transcript)
	memzero.Zero(transcript)
	if err != nil {
		return InitiatorResult{}, err
	}
	return InitiatorResult{
		SharedKey:      sk,
		BaseKey:        ephPub,
		SignedPreKeyID: bundle.SignedPreKey.ID,
		PreKeyID:       opkID,
		AssociatedData: AssociatedData(id.Public(), bundle.IdentityKey),
	}, nil
}

// Respond derives the initiator's shared key from the responder side. opk is
// nil when the initiator used no one-time prekey.
func Respond(
	id domain.IdentityKeyPair,
	spk domain.SignedPreKey,
	opk *domain.OneTimePreKey,
	peerIdentity domain.IdentityPublicKey,
	baseKey domain.X25519Public,
) ([]byte, error) {
	// DH(SPKb, IKa) || DH(IKb, EKa) || DH(SPKb, EKa) [|| DH(OPKb, EKa)]
	privs := []domain.X25519Private{spk.Private, id.XPriv, spk.Private}
	pubs := []domain.X25519Public{peerIdentity.DH, baseKey, baseKey}
	if opk != nil {
		privs = append(privs, opk.Private)
		pubs = append(pubs, baseKey)
	}
	transcript, err := agree(privs, pubs)
	for i := range privs {
		memzero.Key(&privs[i])
	}
	if err != nil {
		return nil, err
	}

	sk, err := derive(transcript)
	memzero.Zero(transcript)
	return sk, err
}

// VerifySignedPreKey checks the Ed25519 signature over the signed prekey.
func VerifySignedPreKey(identity domain.IdentityPublicKey, spk domain.SignedPreKeyPublic) bool {
	return crypto.VerifyEd25519(identity.Signing, spk.Public.Slice(), spk.Signature)
}

// AssociatedData binds both identities to every message of a session, the
// initiator's first.
func AssociatedData(initiator, responder domain.IdentityPublicKey) []byte {
	ad := make([]byte, 0, 2*domain.IdentityPublicKeySize)
	ad = append(ad, initiator.Bytes()...)
	return append(ad, responder.Bytes()...)
}

// agree concatenates a fixed 32-byte 0xff prefix with each DH output.
func agree(privs []domain.X25519Private, pubs []domain.X25519Public) ([]byte, error) {
	transcript := make([]byte, 0, 32*(len(privs)+1))
	transcript = append(transcript, bytes.Repeat([]byte{0xff}, 32)...)
	for i := range privs {
		out, err := crypto.DH(privs[i], pubs[i])
		if err != nil {
			memzero.Zero(transcript)
			return nil, fmt.Errorf("x3dh: %w", err)
		}
		transcript = append(transcript, out[:]...)
		memzero.Key(&out)
	}
	return transcript, nil
}

func derive(ikm []byte) ([]byte, error) {
	salt := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, ikm, salt, []byte(info))
	sk := make([]byte, SharedKeySize)
	if _, err := io.ReadFull(r, sk); err != nil {
		return nil, err
	}
	return sk, nil
}
