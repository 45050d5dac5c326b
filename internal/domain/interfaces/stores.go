package interfaces

import (
	"context"
	"encoding/json"

	domaintypes "github.com/madcrx/FADirect/internal/domain/types"
)

// SecureStorage is an encrypted-at-rest key/value store. Keys are plain
// namespaced strings; values are opaque.
type SecureStorage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// IdentityKeyStore holds the local identity and the identities pinned for peers.
type IdentityKeyStore interface {
	IdentityKeyPair() (domaintypes.IdentityKeyPair, error)
	HasIdentity() (bool, error)
	StoreIdentityKeyPair(id domaintypes.IdentityKeyPair) error
	LocalRegistrationID() (domaintypes.RegistrationID, error)
	StoreLocalRegistrationID(id domaintypes.RegistrationID) error

	IsTrustedIdentity(
		addr domaintypes.Address,
		key domaintypes.IdentityPublicKey,
		direction domaintypes.Direction,
	) (bool, error)
	LoadIdentity(addr domaintypes.Address) (domaintypes.IdentityPublicKey, bool, error)
	SaveIdentity(addr domaintypes.Address, key domaintypes.IdentityPublicKey) (changed bool, err error)
}

// PreKeyStore holds one-time prekeys.
type PreKeyStore interface {
	LoadPreKey(id domaintypes.PreKeyID) (domaintypes.OneTimePreKey, bool, error)
	StorePreKeys(keys []domaintypes.OneTimePreKey) error
	RemovePreKey(id domaintypes.PreKeyID) error
	CountPreKeys() (int, error)
	NextPreKeyID() (domaintypes.PreKeyID, error)
}

// SignedPreKeyStore holds the current and retained signed prekeys.
type SignedPreKeyStore interface {
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKey, bool, error)
	StoreSignedPreKey(key domaintypes.SignedPreKey) error
	RemoveSignedPreKey(id domaintypes.SignedPreKeyID) error
	SignedPreKeys() ([]domaintypes.SignedPreKey, error)
}

// SessionStore holds one session per peer address.
type SessionStore interface {
	LoadSession(addr domaintypes.Address) (domaintypes.Session, bool, error)
	StoreSession(addr domaintypes.Address, session domaintypes.Session) error
	RemoveSession(addr domaintypes.Address) error
	RemoveAllSessions(name domaintypes.UserID) error
	ClearSessions() error
}

// MessageCache keeps opened message content so history can be shown again
// after the ratchet has moved past it.
type MessageCache interface {
	LoadMessageContent(messageID string) (string, bool, error)
	StoreMessageContent(messageID, content string) error
}

// KeyStore is the complete per-device store.
type KeyStore interface {
	IdentityKeyStore
	PreKeyStore
	SignedPreKeyStore
	SessionStore
	MessageCache
}

// DocumentStore is the shared store holding published bundles and messages.
type DocumentStore interface {
	Get(ctx context.Context, table, id string) (domaintypes.Stored, error)
	Set(ctx context.Context, table, id string, doc domaintypes.Document) error
	Update(ctx context.Context, table, id string, patch domaintypes.Document) error
	Insert(ctx context.Context, table string, doc domaintypes.Document) (string, error)
	Find(ctx context.Context, table string, filter domaintypes.Filter) ([]domaintypes.Stored, error)
	TakeOne(ctx context.Context, table, id, field string, pick domaintypes.Pick) (json.RawMessage, bool, error)
	Append(ctx context.Context, table, id, field string, items []json.RawMessage) error
	Delete(ctx context.Context, table, id string) error
	Subscribe(ctx context.Context, table string, filter domaintypes.Filter) (Subscription, error)
}

// Subscription delivers change notifications until cancelled. After Cancel
// returns no further value is sent on C and C is closed.
type Subscription interface {
	C() <-chan domaintypes.Change
	Cancel()
}
