package ratchet_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/protocol/ratchet"
)

var ad = []byte("alice-identity||bob-identity")

type sealed struct {
	h      domain.RatchetHeader
	header []byte
	ct     []byte
}

// encodeHeader is a fixed-width stand-in for the wire codec.
func encodeHeader(h domain.RatchetHeader) ([]byte, error) {
	out := append([]byte(nil), h.DHPub[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PN)
	return binary.BigEndian.AppendUint32(out, h.N), nil
}

// makePair returns initiator and responder states seeded from the same secret.
func makePair(t *testing.T) (alice, bob domain.RatchetState) {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(id, 1)
	require.NoError(t, err)

	sk := bytes.Repeat([]byte{0x42}, 32)
	alice, err = ratchet.InitAsInitiator(sk, spk.Public)
	require.NoError(t, err)
	bob = ratchet.InitAsResponder(sk, spk)
	return alice, bob
}

func send(t *testing.T, st *domain.RatchetState, msg string) sealed {
	t.Helper()
	header, ct, err := ratchet.Encrypt(st, ad, []byte(msg), encodeHeader)
	require.NoError(t, err)
	return sealed{h: domain.RatchetHeader{
		DHPub: domain.X25519Public(header[:32]),
		PN:    binary.BigEndian.Uint32(header[32:36]),
		N:     binary.BigEndian.Uint32(header[36:40]),
	}, header: header, ct: ct}
}

func recv(st *domain.RatchetState, m sealed) (string, error) {
	pt, err := ratchet.Decrypt(st, ad, m.h, m.header, m.ct)
	return string(pt), err
}

func TestDoubleRatchet_OneRoundTrip(t *testing.T) {
	alice, bob := makePair(t)

	got, err := recv(&bob, send(t, &alice, "hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	got, err = recv(&alice, send(t, &bob, "hi back"))
	require.NoError(t, err)
	require.Equal(t, "hi back", got)
}

func TestDoubleRatchet_ManyTurns(t *testing.T) {
	alice, bob := makePair(t)
	for turn := 0; turn < 5; turn++ {
		for i := 0; i < 3; i++ {
			msg := fmt.Sprintf("a%d-%d", turn, i)
			got, err := recv(&bob, send(t, &alice, msg))
			require.NoError(t, err)
			require.Equal(t, msg, got)
		}
		msg := fmt.Sprintf("b%d", turn)
		got, err := recv(&alice, send(t, &bob, msg))
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}
}

func TestResponder_CannotSendFirst(t *testing.T) {
	_, bob := makePair(t)
	_, _, err := ratchet.Encrypt(&bob, ad, []byte("x"), encodeHeader)
	require.ErrorIs(t, err, ratchet.ErrNoSendingChain)
}

func TestDecrypt_OutOfOrder(t *testing.T) {
	alice, bob := makePair(t)
	m0 := send(t, &alice, "m0")
	m1 := send(t, &alice, "m1")
	m2 := send(t, &alice, "m2")

	got, err := recv(&bob, m2)
	require.NoError(t, err)
	require.Equal(t, "m2", got)
	require.Len(t, bob.Skipped, 2)

	got, err = recv(&bob, m0)
	require.NoError(t, err)
	require.Equal(t, "m0", got)

	got, err = recv(&bob, m1)
	require.NoError(t, err)
	require.Equal(t, "m1", got)
	require.Empty(t, bob.Skipped)
}

func TestDecrypt_OutOfOrderAcrossRatchetStep(t *testing.T) {
	alice, bob := makePair(t)
	_, err := recv(&bob, send(t, &alice, "first"))
	require.NoError(t, err)

	late := send(t, &alice, "late")
	_, err = recv(&alice, send(t, &bob, "reply"))
	require.NoError(t, err)

	// Alice is on a new chain now; Bob must keep the key for "late".
	next := send(t, &alice, "next")
	got, err := recv(&bob, next)
	require.NoError(t, err)
	require.Equal(t, "next", got)

	got, err = recv(&bob, late)
	require.NoError(t, err)
	require.Equal(t, "late", got)
}

func TestDecrypt_ReplayRejected(t *testing.T) {
	alice, bob := makePair(t)
	m := send(t, &alice, "once")
	_, err := recv(&bob, m)
	require.NoError(t, err)

	_, err = recv(&bob, m)
	require.ErrorIs(t, err, ratchet.ErrReplay)
}

// Keys derived later in a chain cannot open earlier messages.
func TestForwardSecrecy_LaterStateCannotOpenEarlier(t *testing.T) {
	alice, bob := makePair(t)
	msgs := []sealed{send(t, &alice, "a"), send(t, &alice, "b"), send(t, &alice, "c")}
	for _, m := range msgs {
		_, err := recv(&bob, m)
		require.NoError(t, err)
	}
	snapshot := bob.Clone()
	for _, m := range msgs {
		_, err := recv(&snapshot, m)
		require.Error(t, err)
	}
	require.Empty(t, snapshot.Skipped)
}

func TestDecrypt_TamperLeavesStateUntouched(t *testing.T) {
	alice, bob := makePair(t)
	m := send(t, &alice, "payload")
	before := bob.Clone()

	bad := m
	bad.ct = append([]byte(nil), m.ct...)
	bad.ct[len(bad.ct)-1] ^= 1
	_, err := recv(&bob, bad)
	require.ErrorIs(t, err, ratchet.ErrAuth)
	require.Equal(t, before, bob)

	badHeader := m
	badHeader.header = append([]byte(nil), m.header...)
	badHeader.header[0] ^= 1
	_, err = recv(&bob, badHeader)
	require.Error(t, err)
	require.Equal(t, before, bob)

	got, err := recv(&bob, m)
	require.NoError(t, err)
	require.Equal(t, "payload", got)
}

func TestDecrypt_TooManySkipped(t *testing.T) {
	alice, bob := makePair(t)
	m := send(t, &alice, "far")
	m.h.N = ratchet.MaxSkip + 1
	_, err := recv(&bob, m)
	require.ErrorIs(t, err, ratchet.ErrTooManySkipped)
}

func TestEncrypt_RandomNonce(t *testing.T) {
	alice, _ := makePair(t)
	snapshot := alice.Clone()
	_, ct1, err := ratchet.Encrypt(&alice, ad, []byte("same"), encodeHeader)
	require.NoError(t, err)
	_, ct2, err := ratchet.Encrypt(&snapshot, ad, []byte("same"), encodeHeader)
	require.NoError(t, err)
	require.NotEqual(t, ct1, ct2)
}
