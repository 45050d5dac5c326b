package ratchet

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/util/memzero"
)

const (
	// MaxSkip bounds how far ahead of the receiving chain a single message may be.
	MaxSkip = 1000
	// maxSkippedMK bounds the number of retained skipped message keys.
	maxSkippedMK = 1000

	keySize   = 32
	nonceSize = chacha20poly1305.NonceSizeX
)

var (
	ErrNoSendingChain = errors.New("ratchet: no sending chain yet")
	ErrTooManySkipped = errors.New("ratchet: too many skipped messages")
	ErrReplay         = errors.New("ratchet: message key already used")
	ErrAuth           = errors.New("ratchet: message authentication failed")
)

// HeaderEncoder turns a ratchet header into the exact bytes that travel with
// the ciphertext. Those bytes are authenticated as associated data.
type HeaderEncoder func(domain.RatchetHeader) ([]byte, error)

// InitAsInitiator seeds the sending chain from the X3DH secret and the peer's
// signed prekey, which serves as the peer's first ratchet key.
func InitAsInitiator(sharedKey []byte, peerSignedPreKey domain.X25519Public) (domain.RatchetState, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(priv, peerSignedPreKey)
	if err != nil {
		return domain.RatchetState{}, err
	}
	rk, sendCK := kdfRK(sharedKey, dh[:])
	memzero.Key(&dh)

	return domain.RatchetState{
		RootKey:   rk,
		DHPriv:    priv,
		DHPub:     pub,
		PeerDHPub: peerSignedPreKey,
		SendCK:    sendCK,
	}, nil
}

// InitAsResponder starts from the X3DH secret with the signed prekey as the
// local ratchet key. Neither chain exists until the first message arrives.
func InitAsResponder(sharedKey []byte, spk domain.SignedPreKey) domain.RatchetState {
	return domain.RatchetState{
		RootKey: append([]byte(nil), sharedKey...),
		DHPriv:  spk.Private,
		DHPub:   spk.Public,
	}
}

// Encrypt advances the sending chain and seals plaintext under ad || header.
// st is only modified on success.
func Encrypt(st *domain.RatchetState, ad, plaintext []byte, encode HeaderEncoder) (header, ciphertext []byte, err error) {
	if len(st.SendCK) == 0 {
		return nil, nil, ErrNoSendingChain
	}
	work := st.Clone()

	var mk []byte
	work.SendCK, mk = kdfCK(work.SendCK)
	defer memzero.Zero(mk)

	header, err = encode(domain.RatchetHeader{DHPub: work.DHPub, PN: work.PN, N: work.Ns})
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = seal(mk, concat(ad, header), plaintext)
	if err != nil {
		return nil, nil, err
	}
	work.Ns++
	*st = work
	return header, ciphertext, nil
}

// Decrypt opens a message, using a skipped key or stepping the DH ratchet as
// needed. st is only modified when the message authenticates.
func Decrypt(st *domain.RatchetState, ad []byte, h domain.RatchetHeader, header, ciphertext []byte) ([]byte, error) {
	work := st.Clone()
	fullAD := concat(ad, header)

	// Key held back for an earlier out-of-order message.
	if i := findSkipped(work.Skipped, h.DHPub, h.N); i >= 0 {
		pt, err := open(work.Skipped[i].Key, fullAD, ciphertext)
		if err != nil {
			return nil, err
		}
		memzero.Zero(work.Skipped[i].Key)
		work.Skipped = append(work.Skipped[:i:i], work.Skipped[i+1:]...)
		*st = work
		return pt, nil
	}

	// New ratchet key from the peer: close the current receiving chain and step.
	if len(work.RecvCK) == 0 || h.DHPub != work.PeerDHPub {
		if err := skipUntil(&work, h.PN); err != nil {
			return nil, err
		}
		if err := dhRatchet(&work, h.DHPub); err != nil {
			return nil, err
		}
	}

	if h.N < work.Nr {
		return nil, ErrReplay
	}
	if err := skipUntil(&work, h.N); err != nil {
		return nil, err
	}

	var mk []byte
	work.RecvCK, mk = kdfCK(work.RecvCK)
	defer memzero.Zero(mk)
	work.Nr++

	pt, err := open(mk, fullAD, ciphertext)
	if err != nil {
		return nil, err
	}
	*st = work
	return pt, nil
}

// --- helpers ---

func dhRatchet(st *domain.RatchetState, peer domain.X25519Public) error {
	st.PN = st.Ns
	st.Ns, st.Nr = 0, 0
	st.PeerDHPub = peer

	dh, err := crypto.DH(st.DHPriv, peer)
	if err != nil {
		return err
	}
	var recvCK []byte
	st.RootKey, recvCK = kdfRK(st.RootKey, dh[:])
	memzero.Key(&dh)

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	dh2, err := crypto.DH(newPriv, peer)
	if err != nil {
		return err
	}
	var sendCK []byte
	st.RootKey, sendCK = kdfRK(st.RootKey, dh2[:])
	memzero.Key(&dh2)

	st.DHPriv, st.DHPub = newPriv, newPub
	st.SendCK, st.RecvCK = sendCK, recvCK
	return nil
}

// skipUntil derives and stores message keys up to n with a hard cap.
func skipUntil(st *domain.RatchetState, n uint32) error {
	if len(st.RecvCK) == 0 {
		return nil
	}
	if n > st.Nr && n-st.Nr > MaxSkip {
		return ErrTooManySkipped
	}
	for st.Nr < n {
		var mk []byte
		st.RecvCK, mk = kdfCK(st.RecvCK)
		st.Skipped = append(st.Skipped, domain.SkippedKey{DHPub: st.PeerDHPub, N: st.Nr, Key: mk})
		st.Nr++
	}
	if over := len(st.Skipped) - maxSkippedMK; over > 0 {
		for _, k := range st.Skipped[:over] {
			memzero.Zero(k.Key)
		}
		st.Skipped = append([]domain.SkippedKey(nil), st.Skipped[over:]...)
	}
	return nil
}

func findSkipped(skipped []domain.SkippedKey, pub domain.X25519Public, n uint32) int {
	for i, k := range skipped {
		if k.N == n && k.DHPub == pub {
			return i
		}
	}
	return -1
}

func seal(mk, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(mk[:keySize])
	if err != nil {
		return nil, err
	}
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:nonceSize], plaintext, ad), nil
}

func open(mk, ad, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(mk[:keySize])
	if err != nil {
		return nil, err
	}
	if len(sealed) < nonceSize+aead.Overhead() {
		return nil, ErrAuth
	}
	pt, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], ad)
	if err != nil {
		return nil, ErrAuth
	}
	return pt, nil
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, keySize)
	ck = make([]byte, keySize)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, keySize)
	mk = make([]byte, keySize)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}
