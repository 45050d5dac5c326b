package x3dh_test

import (
	"errors"
	"testing"

	"github.com/alecthomas/types/optional"
	"github.com/stretchr/testify/require"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/protocol/x3dh"
)

type responder struct {
	id  domain.IdentityKeyPair
	spk domain.SignedPreKey
	opk domain.OneTimePreKey
}

func makeResponder(t *testing.T) responder {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(id, 1)
	require.NoError(t, err)
	opks, err := crypto.GeneratePreKeys(10, 1)
	require.NoError(t, err)
	return responder{id: id, spk: spk, opk: opks[0]}
}

func (r responder) bundle(withOPK bool) domain.PreKeyBundle {
	b := domain.PreKeyBundle{
		UserID:         "bob",
		RegistrationID: 42,
		DeviceID:       domain.DefaultDeviceID,
		IdentityKey:    r.id.Public(),
		SignedPreKey:   r.spk.PublicPart(),
	}
	if withOPK {
		b.OneTimePreKey = optional.Some(r.opk.PublicPart())
	}
	return b
}

func TestAgreement_WithOneTimePreKey(t *testing.T) {
	alice, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	bob := makeResponder(t)

	res, err := x3dh.Initiate(alice, bob.bundle(true))
	require.NoError(t, err)
	require.NotNil(t, res.PreKeyID)
	require.Equal(t, bob.opk.ID, *res.PreKeyID)
	require.Equal(t, bob.spk.ID, res.SignedPreKeyID)

	sk, err := x3dh.Respond(bob.id, bob.spk, &bob.opk, alice.Public(), res.BaseKey)
	require.NoError(t, err)
	require.Equal(t, res.SharedKey, sk)
	require.Len(t, sk, x3dh.SharedKeySize)
}

func TestAgreement_SignedPreKeyOnly(t *testing.T) {
	alice, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	bob := makeResponder(t)

	res, err := x3dh.Initiate(alice, bob.bundle(false))
	require.NoError(t, err)
	require.Nil(t, res.PreKeyID)

	sk, err := x3dh.Respond(bob.id, bob.spk, nil, alice.Public(), res.BaseKey)
	require.NoError(t, err)
	require.Equal(t, res.SharedKey, sk)

	// Mixing in a one-time key the initiator did not use yields a different secret.
	other, err := x3dh.Respond(bob.id, bob.spk, &bob.opk, alice.Public(), res.BaseKey)
	require.NoError(t, err)
	require.NotEqual(t, res.SharedKey, other)
}

func TestInitiate_RejectsBadSignature(t *testing.T) {
	alice, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	bob := makeResponder(t)

	b := bob.bundle(true)
	b.SignedPreKey.Signature = append([]byte(nil), b.SignedPreKey.Signature...)
	b.SignedPreKey.Signature[3] ^= 0x80

	_, err = x3dh.Initiate(alice, b)
	require.True(t, errors.Is(err, domain.ErrInvalidSignature))
}

func TestInitiate_RejectsSignatureFromOtherIdentity(t *testing.T) {
	alice, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	bob := makeResponder(t)
	mallory, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	b := bob.bundle(false)
	b.IdentityKey = mallory.Public()

	_, err = x3dh.Initiate(alice, b)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestAssociatedData_OrderMatters(t *testing.T) {
	a, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	b, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	ab := x3dh.AssociatedData(a.Public(), b.Public())
	require.Len(t, ab, 2*domain.IdentityPublicKeySize)
	require.NotEqual(t, ab, x3dh.AssociatedData(b.Public(), a.Public()))
}
