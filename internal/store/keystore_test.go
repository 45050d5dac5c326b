package store_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/store"
)

func newKeyStore(t *testing.T) (*store.KeyStore, *store.MemoryVault) {
	t.Helper()
	vault := store.NewMemoryVault()
	return store.NewKeyStore(vault, zaptest.NewLogger(t).Sugar()), vault
}

func makeIdentity(t *testing.T) domain.IdentityKeyPair {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return id
}

func TestKeyStore_IdentityMissing(t *testing.T) {
	ks, _ := newKeyStore(t)

	_, err := ks.IdentityKeyPair()
	require.ErrorIs(t, err, domain.ErrNoIdentity)
	_, err = ks.LocalRegistrationID()
	require.ErrorIs(t, err, domain.ErrNoIdentity)

	ok, err := ks.HasIdentity()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeyStore_IdentityRoundTrip(t *testing.T) {
	ks, vault := newKeyStore(t)
	id := makeIdentity(t)

	require.NoError(t, ks.StoreIdentityKeyPair(id))
	require.NoError(t, ks.StoreLocalRegistrationID(1234))

	got, err := ks.IdentityKeyPair()
	require.NoError(t, err)
	require.Equal(t, id, got)

	reg, err := ks.LocalRegistrationID()
	require.NoError(t, err)
	require.EqualValues(t, 1234, reg)

	// A second KeyStore over the same vault sees the same data.
	fresh := store.NewKeyStore(vault, zaptest.NewLogger(t).Sugar())
	got, err = fresh.IdentityKeyPair()
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestKeyStore_TrustOnFirstUse(t *testing.T) {
	ks, _ := newKeyStore(t)
	addr := domain.NewAddress("bob")
	first := makeIdentity(t).Public()
	second := makeIdentity(t).Public()

	trusted, err := ks.IsTrustedIdentity(addr, first, domain.Sending)
	require.NoError(t, err)
	require.True(t, trusted, "unknown peers are trusted on first use")

	changed, err := ks.SaveIdentity(addr, first)
	require.NoError(t, err)
	require.False(t, changed)

	trusted, err = ks.IsTrustedIdentity(addr, first, domain.Receiving)
	require.NoError(t, err)
	require.True(t, trusted)

	trusted, err = ks.IsTrustedIdentity(addr, second, domain.Sending)
	require.NoError(t, err)
	require.False(t, trusted)

	changed, err = ks.SaveIdentity(addr, second)
	require.NoError(t, err)
	require.True(t, changed)

	pinned, ok, err := ks.LoadIdentity(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pinned.Equal(second))
}

func TestKeyStore_PreKeys(t *testing.T) {
	ks, vault := newKeyStore(t)

	next, err := ks.NextPreKeyID()
	require.NoError(t, err)
	require.Zero(t, next)

	keys, err := crypto.GeneratePreKeys(0, 5)
	require.NoError(t, err)
	require.NoError(t, ks.StorePreKeys(keys))

	n, err := ks.CountPreKeys()
	require.NoError(t, err)
	require.Equal(t, 5, n)

	next, err = ks.NextPreKeyID()
	require.NoError(t, err)
	require.EqualValues(t, 5, next)

	got, ok, err := ks.LoadPreKey(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, keys[3], got)

	require.NoError(t, ks.RemovePreKey(3))
	_, ok, err = ks.LoadPreKey(3)
	require.NoError(t, err)
	require.False(t, ok)

	// Removing does not recycle ids.
	next, err = ks.NextPreKeyID()
	require.NoError(t, err)
	require.EqualValues(t, 5, next)

	vaultKeys, err := vault.Keys("preKey:")
	require.NoError(t, err)
	require.Equal(t, []string{"preKey:0", "preKey:1", "preKey:2", "preKey:4"}, vaultKeys)
}

func TestKeyStore_SignedPreKeysOrdered(t *testing.T) {
	ks, _ := newKeyStore(t)
	id := makeIdentity(t)
	for _, keyID := range []domain.SignedPreKeyID{3, 1, 2} {
		spk, err := crypto.GenerateSignedPreKey(id, keyID)
		require.NoError(t, err)
		require.NoError(t, ks.StoreSignedPreKey(spk))
	}
	require.NoError(t, ks.RemoveSignedPreKey(2))

	all, err := ks.SignedPreKeys()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.EqualValues(t, 1, all[0].ID)
	require.EqualValues(t, 3, all[1].ID)
}

func TestKeyStore_Sessions(t *testing.T) {
	ks, _ := newKeyStore(t)
	bob := domain.NewAddress("bob")
	bobby := domain.NewAddress("bobby")
	dotted := domain.NewAddress("bob.x")

	sess := domain.Session{
		AssociatedData: []byte("ad"),
		State:          domain.RatchetState{RootKey: []byte{1, 2, 3}, Ns: 4},
	}
	require.NoError(t, ks.StoreSession(bob, sess))
	require.NoError(t, ks.StoreSession(bobby, sess))
	require.NoError(t, ks.StoreSession(dotted, sess))

	got, ok, err := ks.LoadSession(bob)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sess.State.RootKey, got.State.RootKey)
	require.EqualValues(t, 4, got.State.Ns)

	// Loads are independent copies.
	got.State.RootKey[0] = 0xff
	again, _, err := ks.LoadSession(bob)
	require.NoError(t, err)
	require.Equal(t, byte(1), again.State.RootKey[0])

	require.NoError(t, ks.RemoveAllSessions("bob"))
	_, ok, err = ks.LoadSession(bob)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = ks.LoadSession(bobby)
	require.NoError(t, err)
	require.True(t, ok, "prefix match must stop at the device separator")
	_, ok, err = ks.LoadSession(dotted)
	require.NoError(t, err)
	require.True(t, ok, "bob.x.1 belongs to user bob.x, not to a device of bob")

	require.NoError(t, ks.ClearSessions())
	for _, addr := range []domain.Address{bobby, dotted} {
		_, ok, err = ks.LoadSession(addr)
		require.NoError(t, err)
		require.False(t, ok, addr.String())
	}
}

func TestKeyStore_MessageContent(t *testing.T) {
	ks, _ := newKeyStore(t)
	_, ok, err := ks.LoadMessageContent("m1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, ks.StoreMessageContent("m1", "hello"))
	got, ok, err := ks.LoadMessageContent("m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got)
}

func TestKeyStore_KindMismatchIsStorageError(t *testing.T) {
	ks, vault := newKeyStore(t)
	require.NoError(t, ks.StoreLocalRegistrationID(7))

	raw, ok, err := vault.Get("registration")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, vault.Set("identity", raw))

	_, err = store.NewKeyStore(vault, zaptest.NewLogger(t).Sugar()).IdentityKeyPair()
	require.ErrorIs(t, err, domain.ErrStorage)
}

// failingVault accepts reads but rejects every write.
type failingVault struct{ inner *store.MemoryVault }

func (v failingVault) Get(key string) ([]byte, bool, error) { return v.inner.Get(key) }
func (v failingVault) Set(string, []byte) error             { return errors.New("disk full") }
func (v failingVault) Delete(key string) error              { return v.inner.Delete(key) }
func (v failingVault) Keys(prefix string) ([]string, error) { return v.inner.Keys(prefix) }

func TestKeyStore_WriteFailureWrapsStorage(t *testing.T) {
	ks := store.NewKeyStore(failingVault{store.NewMemoryVault()}, zaptest.NewLogger(t).Sugar())
	err := ks.StoreLocalRegistrationID(1)
	require.ErrorIs(t, err, domain.ErrStorage)

	_, err = ks.LocalRegistrationID()
	require.ErrorIs(t, err, domain.ErrNoIdentity)
}

func TestKeyStore_ConcurrentAccess(t *testing.T) {
	ks, _ := newKeyStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := domain.NewAddress(domain.UserID([]string{"a", "b", "c", "d"}[i%4]))
			_ = ks.StoreSession(addr, domain.Session{State: domain.RatchetState{Ns: uint32(i)}})
			_, _, _ = ks.LoadSession(addr)
		}(i)
	}
	wg.Wait()
	for _, name := range []domain.UserID{"a", "b", "c", "d"} {
		_, ok, err := ks.LoadSession(domain.NewAddress(name))
		require.NoError(t, err)
		require.True(t, ok)
	}
}
