package store

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileVault stores all entries in a single passphrase-encrypted file. The
// whole map is re-sealed and atomically replaced on every write.
type FileVault struct {
	path string

	mu     sync.RWMutex
	sealer *sealer
	data   map[string][]byte
}

// FileVaultOption customises a FileVault.
type FileVaultOption func(*fileVaultOptions)

type fileVaultOptions struct {
	params ScryptParams
}

// WithScryptParams overrides the key derivation cost for newly created vaults.
// Existing vaults keep the parameters recorded in their header.
func WithScryptParams(p ScryptParams) FileVaultOption {
	return func(o *fileVaultOptions) { o.params = p }
}

// OpenFileVault opens the vault at path, creating it on first write if it
// does not exist. ErrWrongPassphrase is returned for a bad passphrase.
func OpenFileVault(path, passphrase string, opts ...FileVaultOption) (*FileVault, error) {
	o := fileVaultOptions{params: DefaultScryptParams()}
	for _, opt := range opts {
		opt(&o)
	}

	v := &FileVault{path: path, data: make(map[string][]byte)}
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}
	if raw == nil {
		if v.sealer, err = newSealer(passphrase, nil, o.params); err != nil {
			return nil, err
		}
		return v, nil
	}

	pt, s, err := unseal(passphrase, raw)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(pt, &v.data); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	v.sealer = s
	return v, nil
}

func (v *FileVault) Get(key string) ([]byte, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (v *FileVault) Set(key string, value []byte) error {
	return v.SetMany(map[string][]byte{key: value})
}

func (v *FileVault) SetMany(entries map[string][]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := make(map[string][]byte, len(v.data)+len(entries))
	for k, b := range v.data {
		next[k] = b
	}
	for k, b := range entries {
		next[k] = append([]byte(nil), b...)
	}
	if err := v.flush(next); err != nil {
		return err
	}
	v.data = next
	return nil
}

func (v *FileVault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.data[key]; !ok {
		return nil
	}
	next := make(map[string][]byte, len(v.data))
	for k, b := range v.data {
		if k != key {
			next[k] = b
		}
	}
	if err := v.flush(next); err != nil {
		return err
	}
	v.data = next
	return nil
}

func (v *FileVault) Keys(prefix string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return matchPrefix(v.data, prefix), nil
}

// flush seals data and replaces the file. The caller holds mu.
func (v *FileVault) flush(data map[string][]byte) error {
	raw, err := cbor.Marshal(data)
	if err != nil {
		return err
	}
	sealed, err := v.sealer.seal(raw)
	if err != nil {
		return err
	}
	return writeFile(v.path, sealed, 0o600)
}
