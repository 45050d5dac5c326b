package crypto

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/madcrx/FADirect/internal/domain"
)

// GenerateIdentity creates a new identity key pair.
func GenerateIdentity() (domain.IdentityKeyPair, error) {
	xPriv, xPub, err := GenerateX25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}, nil
}

// GenerateRegistrationID returns a random non-zero 31-bit value.
func GenerateRegistrationID() (domain.RegistrationID, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if id := binary.BigEndian.Uint32(b[:]) & 0x7fffffff; id != 0 {
			return domain.RegistrationID(id), nil
		}
	}
}

// GenerateSignedPreKey creates a signed prekey with the given id.
func GenerateSignedPreKey(id domain.IdentityKeyPair, keyID domain.SignedPreKeyID) (domain.SignedPreKey, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	return domain.SignedPreKey{
		ID:        keyID,
		Private:   priv,
		Public:    pub,
		Signature: SignEd25519(id.EdPriv, pub.Slice()),
	}, nil
}

// GeneratePreKeys creates n one-time prekeys with sequential ids from start.
func GeneratePreKeys(start domain.PreKeyID, n int) ([]domain.OneTimePreKey, error) {
	keys := make([]domain.OneTimePreKey, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := GenerateX25519()
		if err != nil {
			return nil, err
		}
		keys = append(keys, domain.OneTimePreKey{ID: start + domain.PreKeyID(i), Private: priv, Public: pub})
	}
	return keys, nil
}
