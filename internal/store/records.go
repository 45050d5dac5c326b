package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/madcrx/FADirect/internal/domain"
)

// RecordKind tags every value written to the vault.
type RecordKind byte

const (
	KindIdentity RecordKind = iota + 1
	KindRegistration
	KindPreKey
	KindSignedPreKey
	KindSession
	KindTrustedIdentity
	KindPreKeyMeta
	KindMessageContent
)

// namespace is the vault key prefix of each kind. Singleton kinds have no id.
var namespace = map[RecordKind]string{
	KindIdentity:        "identity",
	KindRegistration:    "registration",
	KindPreKey:          "preKey:",
	KindSignedPreKey:    "signedPreKey:",
	KindSession:         "session:",
	KindTrustedIdentity: "trusted:",
	KindPreKeyMeta:      "meta:prekeys",
	KindMessageContent:  "message:",
}

func (k RecordKind) String() string {
	if ns, ok := namespace[k]; ok {
		return strings.TrimSuffix(ns, ":")
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// RecordKey addresses one record in the vault.
type RecordKey struct {
	Kind RecordKind
	ID   string
}

// String renders the vault key, e.g. "preKey:5" or "session:bob.1".
func (k RecordKey) String() string { return namespace[k.Kind] + k.ID }

func identityKey() RecordKey     { return RecordKey{Kind: KindIdentity} }
func registrationKey() RecordKey { return RecordKey{Kind: KindRegistration} }
func preKeyMetaKey() RecordKey   { return RecordKey{Kind: KindPreKeyMeta} }

func preKeyKey(id domain.PreKeyID) RecordKey {
	return RecordKey{Kind: KindPreKey, ID: fmt.Sprint(uint32(id))}
}

func signedPreKeyKey(id domain.SignedPreKeyID) RecordKey {
	return RecordKey{Kind: KindSignedPreKey, ID: fmt.Sprint(uint32(id))}
}

func sessionKey(addr domain.Address) RecordKey {
	return RecordKey{Kind: KindSession, ID: addr.String()}
}

func trustedKey(addr domain.Address) RecordKey {
	return RecordKey{Kind: KindTrustedIdentity, ID: addr.String()}
}

func messageKey(id string) RecordKey {
	return RecordKey{Kind: KindMessageContent, ID: id}
}

// record is the closed set of values the KeyStore persists.
type record interface {
	kind() RecordKind
}

type identityRecord struct {
	Pair domain.IdentityKeyPair `json:"pair"`
}

type registrationRecord struct {
	ID domain.RegistrationID `json:"id"`
}

type preKeyRecord struct {
	Key domain.OneTimePreKey `json:"key"`
}

type signedPreKeyRecord struct {
	Key domain.SignedPreKey `json:"key"`
}

type sessionRecord struct {
	Session domain.Session `json:"session"`
}

type trustedIdentityRecord struct {
	Key      domain.IdentityPublicKey `json:"key"`
	PinnedAt time.Time                `json:"pinned_at"`
}

type preKeyMetaRecord struct {
	NextID domain.PreKeyID `json:"next_id"`
}

type messageContentRecord struct {
	Content string `json:"content"`
}

func (identityRecord) kind() RecordKind        { return KindIdentity }
func (registrationRecord) kind() RecordKind    { return KindRegistration }
func (preKeyRecord) kind() RecordKind          { return KindPreKey }
func (signedPreKeyRecord) kind() RecordKind    { return KindSignedPreKey }
func (sessionRecord) kind() RecordKind         { return KindSession }
func (trustedIdentityRecord) kind() RecordKind { return KindTrustedIdentity }
func (preKeyMetaRecord) kind() RecordKind      { return KindPreKeyMeta }
func (messageContentRecord) kind() RecordKind  { return KindMessageContent }

var errUnknownKind = errors.New("unknown record kind")

var (
	recordEnc cbor.EncMode
	recordDec cbor.DecMode
)

func init() {
	var err error
	recordEnc, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	recordDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// encodeRecord writes the kind byte followed by the CBOR body.
func encodeRecord(r record) ([]byte, error) {
	body, err := recordEnc.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(r.kind())}, body...), nil
}

// decodeRecord reverses encodeRecord. Every value returned is freshly
// decoded and shares no memory with other loads.
func decodeRecord(b []byte) (record, error) {
	if len(b) == 0 {
		return nil, errUnknownKind
	}
	body := b[1:]
	switch kind := RecordKind(b[0]); kind {
	case KindIdentity:
		return decodeAs[identityRecord](body)
	case KindRegistration:
		return decodeAs[registrationRecord](body)
	case KindPreKey:
		return decodeAs[preKeyRecord](body)
	case KindSignedPreKey:
		return decodeAs[signedPreKeyRecord](body)
	case KindSession:
		return decodeAs[sessionRecord](body)
	case KindTrustedIdentity:
		return decodeAs[trustedIdentityRecord](body)
	case KindPreKeyMeta:
		return decodeAs[preKeyMetaRecord](body)
	case KindMessageContent:
		return decodeAs[messageContentRecord](body)
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownKind, byte(kind))
	}
}

func decodeAs[T record](body []byte) (record, error) {
	var r T
	if err := recordDec.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return r, nil
}
