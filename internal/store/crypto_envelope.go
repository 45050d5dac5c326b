package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the encrypted blob format stored on disk.
	vaultFormatVersion = 2
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the
	// ciphertext has been modified / corrupted.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted vault")
)

// blob is the on-disk JSON structure holding the ciphertext and KDF parameters.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// ScryptParams tunes passphrase key derivation.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams are used for vaults created without explicit params.
func DefaultScryptParams() ScryptParams { return ScryptParams{N: 1 << 15, R: 8, P: 1} }

// sealer holds a passphrase-derived key so every write does not pay for scrypt.
type sealer struct {
	key    []byte
	salt   []byte
	params ScryptParams
}

func newSealer(passphrase string, salt []byte, params ScryptParams) (*sealer, error) {
	if salt == nil {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	}
	key, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return &sealer{key: key, salt: salt, params: params}, nil
}

// seal encrypts raw under a fresh random nonce and returns the JSON blob.
func (s *sealer) seal(raw []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(blob{
		V:      vaultFormatVersion,
		Salt:   s.salt,
		N:      s.params.N,
		R:      s.params.R,
		P:      s.params.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, s.salt),
	})
}

// unseal opens a JSON blob with a key derived from passphrase and returns
// the plaintext plus a sealer bound to the same salt and parameters.
func unseal(passphrase string, b []byte) ([]byte, *sealer, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, nil, err
	}
	if bl.V != vaultFormatVersion {
		return nil, nil, fmt.Errorf("unsupported vault version %d", bl.V)
	}
	s, err := newSealer(passphrase, bl.Salt, ScryptParams{N: bl.N, R: bl.R, P: bl.P})
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, nil, err
	}
	if len(bl.Nonce) != aead.NonceSize() {
		return nil, nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, bl.Nonce, bl.Cipher, bl.Salt)
	if err != nil {
		return nil, nil, ErrWrongPassphrase
	}
	return pt, s, nil
}
