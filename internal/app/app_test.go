package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madcrx/FADirect/internal/domain"
	identitysvc "github.com/madcrx/FADirect/internal/services/identity"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	v := NewViper()
	v.Set("home", home)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, home, cfg.Home)
	require.Equal(t, VaultFile, cfg.Vault)
	require.Equal(t, StoreSQLite, cfg.Store)
	require.Equal(t, filepath.Join(home, "fadirect.db"), cfg.DSN)
	require.Equal(t, 100, cfg.PreKeys.Batch)
	require.Equal(t, 10, cfg.PreKeys.Threshold)
	require.Equal(t, 2, cfg.SignedPreKey.Retain)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	home := t.TempDir()
	yaml := "user: alice\nstore: memory\nprekeys:\n  batch: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("FADIRECT_PREKEYS_THRESHOLD", "3")
	t.Setenv("FADIRECT_VAULT", "memory")

	v := NewViper()
	v.Set("home", home)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.User)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, VaultMemory, cfg.Vault)
	require.Equal(t, 5, cfg.PreKeys.Batch)
	require.Equal(t, 3, cfg.PreKeys.Threshold)
	require.Empty(t, cfg.DSN)
}

func TestValidate(t *testing.T) {
	base := Config{Vault: VaultMemory, Store: StoreMemory, PreKeys: PreKeyConfig{Batch: 1}}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"vault":         func(c *Config) { c.Vault = "usb" },
		"store":         func(c *Config) { c.Store = "mongo" },
		"postgres dsn":  func(c *Config) { c.Store = StorePostgres },
		"relay url":     func(c *Config) { c.Store = StoreRelay },
		"batch":         func(c *Config) { c.PreKeys.Batch = 0 },
		"neg threshold": func(c *Config) { c.PreKeys.Threshold = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "chatty"})
	require.Error(t, err)

	log, err := NewLogger(LogConfig{Level: "debug", JSON: true})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestOpenVaultPassphrasePolicy(t *testing.T) {
	cfg := Config{Home: t.TempDir(), Vault: VaultFile}
	_, err := OpenVault(cfg)
	require.ErrorIs(t, err, ErrPassphraseRequired)

	cfg.Passphrase = "short"
	_, err = OpenVault(cfg)
	require.ErrorIs(t, err, identitysvc.ErrWeakPassphrase)
}

func newTestApp(t *testing.T, user, dsn string) *App {
	t.Helper()
	cfg := Config{
		Home:         t.TempDir(),
		User:         user,
		Vault:        VaultMemory,
		Store:        StoreSQLite,
		DSN:          dsn,
		PreKeys:      PreKeyConfig{Batch: 5, Threshold: 3},
		SignedPreKey: SignedPreKeyConfig{Retain: 2},
	}
	require.NoError(t, cfg.Validate())
	w, err := NewWire(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return New(w)
}

func TestInitSendReceive(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "shared.db")
	alice := newTestApp(t, "alice", dsn)
	bob := newTestApp(t, "bob", dsn)

	profile, err := alice.Init(ctx, false)
	require.NoError(t, err)
	require.Equal(t, domain.UserID("alice"), profile.UserID)
	require.NotEmpty(t, profile.Fingerprint)
	require.Equal(t, StoreSQLite, profile.Directory)
	_, err = bob.Init(ctx, false)
	require.NoError(t, err)

	_, err = alice.Init(ctx, false)
	require.ErrorIs(t, err, identitysvc.ErrIdentityExists)

	sent, err := alice.Send(ctx, "arr-1", "bob", "hello")
	require.NoError(t, err)
	require.Equal(t, domain.UserID("bob"), sent.RecipientID)

	got, err := bob.Receive(ctx, "arr-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Decrypted)
	require.Equal(t, "hello", got[0].Content)
	require.NotNil(t, got[0].ReadAt)

	status, err := bob.PreKeyStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, status.LocalPreKeys)
	require.Equal(t, 4, status.PublishedPreKeys)

	_, err = bob.Send(ctx, "arr-1", "alice", "hi back")
	require.NoError(t, err)

	got, err = alice.Receive(ctx, "arr-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "hello", got[0].Content)
	require.Equal(t, "hi back", got[1].Content)
	require.True(t, got[1].Decrypted)

	// Already opened messages come from the local cache.
	got, err = bob.Receive(ctx, "arr-1")
	require.NoError(t, err)
	require.Equal(t, "hello", got[0].Content)
}

func TestReceiveReplenishesBelowThreshold(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "shared.db")
	bob := newTestApp(t, "bob", dsn)
	_, err := bob.Init(ctx, false)
	require.NoError(t, err)

	for _, name := range []string{"carol", "dave", "erin"} {
		peer := newTestApp(t, name, dsn)
		_, err := peer.Init(ctx, false)
		require.NoError(t, err)
		_, err = peer.Send(ctx, "arr-"+name, "bob", "hi from "+name)
		require.NoError(t, err)
	}

	got, err := bob.Receive(ctx, "arr-erin")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "hi from erin", got[0].Content)

	// Three claimed leaves two published, below the threshold of three.
	status, err := bob.PreKeyStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, status.PublishedPreKeys)
}

func TestUserFallsBackToProfile(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "alice", filepath.Join(t.TempDir(), "docs.db"))
	_, err := a.Init(ctx, false)
	require.NoError(t, err)

	a.Config.User = ""
	user, err := a.User()
	require.NoError(t, err)
	require.Equal(t, domain.UserID("alice"), user)

	_, err = a.Init(ctx, false)
	require.ErrorIs(t, err, ErrNoUser)
}

func TestRotateAndReplenish(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "alice", filepath.Join(t.TempDir(), "docs.db"))
	_, err := a.Init(ctx, false)
	require.NoError(t, err)

	n, err := a.Replenish(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	id, err := a.Rotate(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SignedPreKeyID(1), id)

	status, err := a.PreKeyStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, status.LocalPreKeys)
	require.Equal(t, 10, status.PublishedPreKeys)
	require.Equal(t, domain.SignedPreKeyID(1), status.SignedPreKeyID)
}
