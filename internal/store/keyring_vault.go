package store

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/99designs/keyring"
)

// KeyringVault stores each entry as an item in an OS keyring (Keychain,
// Secret Service, KWallet, WinCred) or the keyring library's encrypted file
// backend.
type KeyringVault struct {
	ring keyring.Keyring
}

// KeyringConfig selects and configures the keyring backend.
type KeyringConfig struct {
	ServiceName string
	FileDir     string
	Passphrase  string
	Backends    []keyring.BackendType
}

// OpenKeyringVault opens the configured keyring.
func OpenKeyringVault(cfg KeyringConfig) (*KeyringVault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      cfg.ServiceName,
		AllowedBackends:  cfg.Backends,
		FileDir:          cfg.FileDir,
		FilePasswordFunc: keyring.FixedStringPrompt(cfg.Passphrase),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringVault(ring), nil
}

// NewKeyringVault wraps an already opened keyring.
func NewKeyringVault(ring keyring.Keyring) *KeyringVault {
	return &KeyringVault{ring: ring}
}

func (k *KeyringVault) Get(key string) ([]byte, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q from keyring: %w", key, err)
	}
	return item.Data, true, nil
}

func (k *KeyringVault) Set(key string, value []byte) error {
	err := k.ring.Set(keyring.Item{
		Key:         key,
		Data:        value,
		Label:       "FADirect " + key,
		Description: "FADirect key material",
	})
	if err != nil {
		return fmt.Errorf("failed to store %q in keyring: %w", key, err)
	}
	return nil
}

// SetMany writes entries in key order. Keyrings have no transactions, so a
// failed write restores the entries already written to their previous
// values on a best-effort basis.
func (k *KeyringVault) SetMany(entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var written []priorEntry
	for _, key := range keys {
		data, ok, err := k.Get(key)
		if err == nil {
			err = k.Set(key, entries[key])
		}
		if err != nil {
			k.restore(written)
			return err
		}
		written = append(written, priorEntry{key: key, data: data, exists: ok})
	}
	return nil
}

// priorEntry is the value a key held before SetMany overwrote it.
type priorEntry struct {
	key    string
	data   []byte
	exists bool
}

func (k *KeyringVault) restore(written []priorEntry) {
	for _, p := range written {
		if p.exists {
			_ = k.Set(p.key, p.data)
		} else {
			_ = k.Delete(p.key)
		}
	}
}

func (k *KeyringVault) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %q from keyring: %w", key, err)
	}
	return nil
}

func (k *KeyringVault) Keys(prefix string) ([]string, error) {
	all, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, key := range all {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
