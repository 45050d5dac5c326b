package store

import (
	"path/filepath"
	"sync"

	"github.com/madcrx/FADirect/internal/domain"
)

const accountFile = "account.json"

// AccountFileStore persists the account profile of this device to disk. The
// profile holds no secrets.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccountProfile stores or replaces the profile.
func (s *AccountFileStore) SaveAccountProfile(profile domain.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, accountFile), profile, 0o600)
}

// LoadAccountProfile reads the profile, reporting false if none was saved.
func (s *AccountFileStore) LoadAccountProfile() (domain.AccountProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profile domain.AccountProfile
	ok, err := readJSON(filepath.Join(s.dir, accountFile), &profile)
	return profile, ok, err
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)
