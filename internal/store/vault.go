package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/madcrx/FADirect/internal/domain"
)

// batchSetter is implemented by vaults that can persist several entries in
// one durable write.
type batchSetter interface {
	SetMany(entries map[string][]byte) error
}

// MemoryVault keeps entries in process memory. It is meant for tests and
// throwaway sessions.
type MemoryVault struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryVault returns an empty MemoryVault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{data: make(map[string][]byte)}
}

func (v *MemoryVault) Get(key string) ([]byte, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (v *MemoryVault) Set(key string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = append([]byte(nil), value...)
	return nil
}

func (v *MemoryVault) SetMany(entries map[string][]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, b := range entries {
		v.data[k] = append([]byte(nil), b...)
	}
	return nil
}

func (v *MemoryVault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data, key)
	return nil
}

func (v *MemoryVault) Keys(prefix string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return matchPrefix(v.data, prefix), nil
}

func matchPrefix(data map[string][]byte, prefix string) []string {
	keys := make([]string, 0)
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Compile-time assertions that the vaults implement domain.SecureStorage.
var (
	_ domain.SecureStorage = (*MemoryVault)(nil)
	_ domain.SecureStorage = (*FileVault)(nil)
	_ domain.SecureStorage = (*KeyringVault)(nil)
	_ batchSetter          = (*MemoryVault)(nil)
	_ batchSetter          = (*FileVault)(nil)
	_ batchSetter          = (*KeyringVault)(nil)
)
