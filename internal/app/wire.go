package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/directory"
	"github.com/madcrx/FADirect/internal/docstore"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/relay"
	ciphersvc "github.com/madcrx/FADirect/internal/services/cipher"
	identitysvc "github.com/madcrx/FADirect/internal/services/identity"
	messagesvc "github.com/madcrx/FADirect/internal/services/message"
	prekeysvc "github.com/madcrx/FADirect/internal/services/prekey"
	sessionsvc "github.com/madcrx/FADirect/internal/services/session"
	"github.com/madcrx/FADirect/internal/store"
)

const (
	vaultFile      = "vault.bin"
	keyringDir     = "keyring"
	keyringService = "fadirect"
)

// ErrPassphraseRequired is returned when a vault needs a passphrase and none
// was configured.
var ErrPassphraseRequired = errors.New("passphrase required (use -p or FADIRECT_PASSPHRASE)")

// Wire bundles all stores and services for the CLI.
type Wire struct {
	Config Config
	Log    *zap.SugaredLogger

	Keys      *store.KeyStore
	Accounts  domain.AccountStore
	Docs      domain.DocumentStore
	Directory domain.BundleDirectory

	PreKeys  *prekeysvc.Service
	Sessions *sessionsvc.Service
	Cipher   *ciphersvc.Service
	Messages *messagesvc.Service

	closers []func() error
}

// NewWire constructs the dependency graph from cfg.
func NewWire(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home %s: %w", cfg.Home, err)
	}

	vault, err := OpenVault(cfg)
	if err != nil {
		return nil, err
	}
	docs, closeDocs, err := OpenDocuments(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	keys := store.NewKeyStore(vault, log.Named("keystore"))
	dir := directory.New(docs, log.Named("directory"))
	sessions := sessionsvc.New(keys, dir, log.Named("session"))
	cipher := ciphersvc.New(sessions, keys, log.Named("cipher"))

	w := &Wire{
		Config:    cfg,
		Log:       log,
		Keys:      keys,
		Accounts:  store.NewAccountFileStore(cfg.Home),
		Docs:      docs,
		Directory: dir,
		PreKeys:   prekeysvc.New(keys, dir, log.Named("prekey"), prekeysvc.Options{Retain: cfg.SignedPreKey.Retain}),
		Sessions:  sessions,
		Cipher:    cipher,
		Messages:  messagesvc.New(docs, cipher, keys, log.Named("message")),
	}
	if closeDocs != nil {
		w.closers = append(w.closers, closeDocs)
	}
	return w, nil
}

// KeyGenerator returns the key generation service. force allows replacing an
// existing identity.
func (w *Wire) KeyGenerator(force bool) *identitysvc.Service {
	return identitysvc.New(w.Keys, w.Directory, w.Log.Named("identity"), identitysvc.Options{
		PreKeyBatch: w.Config.PreKeys.Batch,
		Force:       force,
	})
}

// Close releases the document store.
func (w *Wire) Close() error {
	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c())
	}
	w.closers = nil
	return errors.Join(errs...)
}

// OpenVault opens the secure storage selected by cfg.Vault. A new file vault
// must satisfy the passphrase policy.
func OpenVault(cfg Config) (domain.SecureStorage, error) {
	switch cfg.Vault {
	case VaultMemory:
		return store.NewMemoryVault(), nil
	case VaultKeyring:
		return store.OpenKeyringVault(store.KeyringConfig{
			ServiceName: keyringService,
			FileDir:     filepath.Join(cfg.Home, keyringDir),
			Passphrase:  cfg.Passphrase,
		})
	case VaultFile:
		if cfg.Passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		path := filepath.Join(cfg.Home, vaultFile)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := identitysvc.CheckPassphrase(cfg.Passphrase); err != nil {
				return nil, err
			}
		}
		return store.OpenFileVault(path, cfg.Passphrase)
	default:
		return nil, fmt.Errorf("unknown vault %q", cfg.Vault)
	}
}

// OpenDocuments opens the document store selected by cfg.Store. The returned
// close function may be nil.
func OpenDocuments(ctx context.Context, cfg Config, log *zap.SugaredLogger) (domain.DocumentStore, func() error, error) {
	switch cfg.Store {
	case StoreMemory:
		return docstore.NewMemory(log.Named("docstore")), nil, nil
	case StoreSQLite, StorePostgres:
		dialect := docstore.SQLite
		if cfg.Store == StorePostgres {
			dialect = docstore.Postgres
		}
		db, err := docstore.OpenSQL(ctx, dialect, cfg.DSN, log.Named("docstore"))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case StoreRelay:
		httpClient := cfg.HTTP
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		return relay.NewHTTP(cfg.Relay, httpClient, log.Named("relay")), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
