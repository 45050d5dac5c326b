package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
)

// KeyStore is the typed per-device store of identity, prekeys, sessions and
// pinned peer identities, layered over a SecureStorage vault.
//
// Encoded records are cached after the first read; every load decodes a
// fresh value so callers may mutate what they get back.
type KeyStore struct {
	vault domain.SecureStorage
	log   *zap.SugaredLogger
	now   func() time.Time

	mu    sync.Mutex
	cache map[string][]byte
}

// NewKeyStore returns a KeyStore over vault.
func NewKeyStore(vault domain.SecureStorage, log *zap.SugaredLogger) *KeyStore {
	return &KeyStore{
		vault: vault,
		log:   log,
		now:   time.Now,
		cache: make(map[string][]byte),
	}
}

// --- local identity ---

// IdentityKeyPair returns the local identity key pair, or domain.ErrNoIdentity
// before one was generated.
func (s *KeyStore) IdentityKeyPair() (domain.IdentityKeyPair, error) {
	r, ok, err := load[identityRecord](s, identityKey())
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	if !ok {
		return domain.IdentityKeyPair{}, domain.ErrNoIdentity
	}
	return r.Pair, nil
}

// HasIdentity reports whether a local identity key pair is stored.
func (s *KeyStore) HasIdentity() (bool, error) {
	_, ok, err := load[identityRecord](s, identityKey())
	return ok, err
}

// StoreIdentityKeyPair replaces the local identity key pair. Sessions built
// with the previous pair are not touched; see ClearSessions.
func (s *KeyStore) StoreIdentityKeyPair(id domain.IdentityKeyPair) error {
	return s.put(identityKey(), identityRecord{Pair: id})
}

// LocalRegistrationID returns the registration id generated with the
// identity, or domain.ErrNoIdentity if there is none.
func (s *KeyStore) LocalRegistrationID() (domain.RegistrationID, error) {
	r, ok, err := load[registrationRecord](s, registrationKey())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrNoIdentity
	}
	return r.ID, nil
}

// StoreLocalRegistrationID replaces the local registration id.
func (s *KeyStore) StoreLocalRegistrationID(id domain.RegistrationID) error {
	return s.put(registrationKey(), registrationRecord{ID: id})
}

// --- peer identities ---

// IsTrustedIdentity implements trust on first use: an address with no pinned
// key is trusted, otherwise key must equal the pinned one.
func (s *KeyStore) IsTrustedIdentity(addr domain.Address, key domain.IdentityPublicKey, _ domain.Direction) (bool, error) {
	pinned, ok, err := s.LoadIdentity(addr)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return pinned.Equal(key), nil
}

// LoadIdentity returns the identity key pinned for addr, if any.
func (s *KeyStore) LoadIdentity(addr domain.Address) (domain.IdentityPublicKey, bool, error) {
	r, ok, err := load[trustedIdentityRecord](s, trustedKey(addr))
	return r.Key, ok, err
}

// SaveIdentity pins key for addr and reports whether it replaced a different key.
func (s *KeyStore) SaveIdentity(addr domain.Address, key domain.IdentityPublicKey) (bool, error) {
	prev, ok, err := s.LoadIdentity(addr)
	if err != nil {
		return false, err
	}
	if ok && prev.Equal(key) {
		return false, nil
	}
	if err := s.put(trustedKey(addr), trustedIdentityRecord{Key: key, PinnedAt: s.now()}); err != nil {
		return false, err
	}
	if ok {
		s.log.Infof("pinned identity for %s replaced", addr)
	}
	return ok, nil
}

// --- one-time prekeys ---

// LoadPreKey returns the private one-time prekey id. A missing key means it
// was never generated or has already been consumed.
func (s *KeyStore) LoadPreKey(id domain.PreKeyID) (domain.OneTimePreKey, bool, error) {
	r, ok, err := load[preKeyRecord](s, preKeyKey(id))
	return r.Key, ok, err
}

// StorePreKeys writes keys and advances the next free prekey id past them.
func (s *KeyStore) StorePreKeys(keys []domain.OneTimePreKey) error {
	if len(keys) == 0 {
		return nil
	}
	next, err := s.NextPreKeyID()
	if err != nil {
		return err
	}
	records := make(map[RecordKey]record, len(keys)+1)
	for _, k := range keys {
		records[preKeyKey(k.ID)] = preKeyRecord{Key: k}
		if k.ID >= next {
			next = k.ID + 1
		}
	}
	records[preKeyMetaKey()] = preKeyMetaRecord{NextID: next}
	return s.putMany(records)
}

// RemovePreKey consumes the one-time prekey id. Removing an unknown id is not
// an error.
func (s *KeyStore) RemovePreKey(id domain.PreKeyID) error {
	return s.remove(preKeyKey(id))
}

// CountPreKeys returns how many unconsumed one-time prekeys are stored.
func (s *KeyStore) CountPreKeys() (int, error) {
	keys, err := s.keys(KindPreKey, "")
	return len(keys), err
}

// NextPreKeyID returns the first id not yet used by any generated prekey.
func (s *KeyStore) NextPreKeyID() (domain.PreKeyID, error) {
	r, _, err := load[preKeyMetaRecord](s, preKeyMetaKey())
	return r.NextID, err
}

// --- signed prekeys ---

// LoadSignedPreKey returns the signed prekey id if it is still retained.
func (s *KeyStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKey, bool, error) {
	r, ok, err := load[signedPreKeyRecord](s, signedPreKeyKey(id))
	return r.Key, ok, err
}

// StoreSignedPreKey adds key, replacing any signed prekey with the same id.
func (s *KeyStore) StoreSignedPreKey(key domain.SignedPreKey) error {
	return s.put(signedPreKeyKey(key.ID), signedPreKeyRecord{Key: key})
}

// RemoveSignedPreKey drops a retired signed prekey. PREKEY messages that
// still reference it can no longer be opened.
func (s *KeyStore) RemoveSignedPreKey(id domain.SignedPreKeyID) error {
	return s.remove(signedPreKeyKey(id))
}

// SignedPreKeys lists every retained signed prekey ordered by id.
func (s *KeyStore) SignedPreKeys() ([]domain.SignedPreKey, error) {
	ids, err := s.keys(KindSignedPreKey, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignedPreKey, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			s.log.Warnf("skipping malformed signed prekey entry %q", id)
			continue
		}
		k, ok, err := s.LoadSignedPreKey(domain.SignedPreKeyID(n))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- sessions ---

// LoadSession returns the session with addr. The returned value is decoded
// afresh, so a caller may advance it and only StoreSession commits the change.
func (s *KeyStore) LoadSession(addr domain.Address) (domain.Session, bool, error) {
	r, ok, err := load[sessionRecord](s, sessionKey(addr))
	return r.Session, ok, err
}

// StoreSession replaces the session with addr.
func (s *KeyStore) StoreSession(addr domain.Address, session domain.Session) error {
	return s.put(sessionKey(addr), sessionRecord{Session: session})
}

// RemoveSession deletes the session with a single device.
func (s *KeyStore) RemoveSession(addr domain.Address) error {
	return s.remove(sessionKey(addr))
}

// RemoveAllSessions deletes the sessions of every device of name. Only ids of
// the exact form "<name>.<device>" match, so "bob" never touches "bob.x".
func (s *KeyStore) RemoveAllSessions(name domain.UserID) error {
	prefix := string(name) + "."
	ids, err := s.keys(KindSession, prefix)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := strconv.ParseUint(id[len(prefix):], 10, 32); err != nil {
			continue
		}
		if err := s.remove(RecordKey{Kind: KindSession, ID: id}); err != nil {
			return err
		}
	}
	return nil
}

// ClearSessions deletes every stored session. It is used when the local
// identity is replaced, since sessions stay bound to the identity they were
// built with.
func (s *KeyStore) ClearSessions() error {
	ids, err := s.keys(KindSession, "")
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.remove(RecordKey{Kind: KindSession, ID: id}); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		s.log.Infof("cleared %d sessions", len(ids))
	}
	return nil
}

// --- message content cache ---

// LoadMessageContent returns the cached plaintext of a message.
func (s *KeyStore) LoadMessageContent(messageID string) (string, bool, error) {
	r, ok, err := load[messageContentRecord](s, messageKey(messageID))
	return r.Content, ok, err
}

// StoreMessageContent caches the plaintext of a message. Once a message has
// been decrypted its ratchet keys are gone, so this copy is the only way to
// show it again.
func (s *KeyStore) StoreMessageContent(messageID, content string) error {
	return s.put(messageKey(messageID), messageContentRecord{Content: content})
}

// --- plumbing ---

// load fetches and decodes key, checking the stored kind matches T.
func load[T record](s *KeyStore, key RecordKey) (T, bool, error) {
	var zero T
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return zero, ok, err
	}
	r, err := decodeRecord(raw)
	if err != nil {
		return zero, false, fmt.Errorf("%w: decode %s: %w", domain.ErrStorage, key, err)
	}
	v, ok := r.(T)
	if !ok || r.kind() != key.Kind {
		return zero, false, fmt.Errorf("%w: %s holds a %s record", domain.ErrStorage, key, r.kind())
	}
	return v, true, nil
}

func (s *KeyStore) get(key RecordKey) ([]byte, bool, error) {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.cache[k]; ok {
		return raw, true, nil
	}

	raw, ok, err := s.vault.Get(k)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %w", domain.ErrStorage, k, err)
	}
	if ok {
		s.cache[k] = raw
	}
	return raw, ok, nil
}

func (s *KeyStore) put(key RecordKey, r record) error {
	return s.putMany(map[RecordKey]record{key: r})
}

// putMany writes records as one unit:
//  1. every record is checked against its key kind and encoded, so a bad
//     record fails before anything is written;
//  2. vaults implementing batchSetter get a single SetMany, which is all or
//     nothing; other vaults are written entry by entry and the cache is
//     invalidated for the batch if one write fails;
//  3. the cache is updated only after the vault accepted the writes.
func (s *KeyStore) putMany(records map[RecordKey]record) error {
	entries := make(map[string][]byte, len(records))
	for key, r := range records {
		if r.kind() != key.Kind {
			return fmt.Errorf("%w: %s cannot hold a %s record", domain.ErrStorage, key, r.kind())
		}
		raw, err := encodeRecord(r)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", domain.ErrStorage, key, err)
		}
		entries[key.String()] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bs, ok := s.vault.(batchSetter); ok {
		if err := bs.SetMany(entries); err != nil {
			return fmt.Errorf("%w: write: %w", domain.ErrStorage, err)
		}
	} else {
		for k, raw := range entries {
			if err := s.vault.Set(k, raw); err != nil {
				for k := range entries {
					delete(s.cache, k)
				}
				return fmt.Errorf("%w: write %s: %w", domain.ErrStorage, k, err)
			}
		}
	}
	for k, raw := range entries {
		s.cache[k] = raw
	}
	return nil
}

func (s *KeyStore) remove(key RecordKey) error {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, k)
	if err := s.vault.Delete(k); err != nil {
		return fmt.Errorf("%w: delete %s: %w", domain.ErrStorage, k, err)
	}
	return nil
}

// keys lists the ids of kind whose id starts with idPrefix.
func (s *KeyStore) keys(kind RecordKind, idPrefix string) ([]string, error) {
	prefix := namespace[kind] + idPrefix
	all, err := s.vault.Keys(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", domain.ErrStorage, prefix, err)
	}
	ids := make([]string, 0, len(all))
	for _, k := range all {
		ids = append(ids, k[len(namespace[kind]):])
	}
	return ids, nil
}

// Compile-time assertion that KeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyStore)(nil)
