package domain

import (
	interfaces "github.com/madcrx/FADirect/internal/domain/interfaces"
	types "github.com/madcrx/FADirect/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID              = types.UserID
	DeviceID            = types.DeviceID
	Address             = types.Address
	Direction           = types.Direction
	Fingerprint         = types.Fingerprint
	RegistrationID      = types.RegistrationID
	PreKeyID            = types.PreKeyID
	SignedPreKeyID      = types.SignedPreKeyID
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	IdentityPublicKey   = types.IdentityPublicKey
	IdentityKeyPair     = types.IdentityKeyPair
	OneTimePreKey       = types.OneTimePreKey
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	SignedPreKey        = types.SignedPreKey
	SignedPreKeyPublic  = types.SignedPreKeyPublic
	PreKeyBundle        = types.PreKeyBundle
	PublishedKeys       = types.PublishedKeys
	PreKeyStatus        = types.PreKeyStatus
	RatchetHeader       = types.RatchetHeader
	RatchetState        = types.RatchetState
	SkippedKey          = types.SkippedKey
	PendingPreKey       = types.PendingPreKey
	Session             = types.Session
	EnvelopeType        = types.EnvelopeType
	Envelope            = types.Envelope
	MessageKind         = types.MessageKind
	Message             = types.Message
	DecryptedMessage    = types.DecryptedMessage
	OutgoingMessage     = types.OutgoingMessage
	Document            = types.Document
	Stored              = types.Stored
	ChangeKind          = types.ChangeKind
	Change              = types.Change
	Filter              = types.Filter
	Pick                = types.Pick
	AccountProfile      = types.AccountProfile
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SecureStorage     = interfaces.SecureStorage
	IdentityKeyStore  = interfaces.IdentityKeyStore
	PreKeyStore       = interfaces.PreKeyStore
	SignedPreKeyStore = interfaces.SignedPreKeyStore
	SessionStore      = interfaces.SessionStore
	MessageCache      = interfaces.MessageCache
	KeyStore          = interfaces.KeyStore
	DocumentStore     = interfaces.DocumentStore
	Subscription      = interfaces.Subscription
	AccountStore      = interfaces.AccountStore
	KeyGenerator      = interfaces.KeyGenerator
	PreKeyService     = interfaces.PreKeyService
	BundleDirectory   = interfaces.BundleDirectory
	DeliverFunc       = interfaces.DeliverFunc
	SessionManager    = interfaces.SessionManager
	MessageCipher     = interfaces.MessageCipher
	MessageService    = interfaces.MessageService
)

// Re-exported constants.
const (
	DefaultDeviceID = types.DefaultDeviceID

	Sending   = types.Sending
	Receiving = types.Receiving

	EnvelopeWhisper = types.EnvelopeWhisper
	EnvelopePreKey  = types.EnvelopePreKey

	MessageText     = types.MessageText
	MessageImage    = types.MessageImage
	MessageDocument = types.MessageDocument
	MessageForm     = types.MessageForm
	MessageSystem   = types.MessageSystem

	ChangeInsert = types.ChangeInsert
	ChangeUpdate = types.ChangeUpdate
	ChangeDelete = types.ChangeDelete

	PickLowest  = types.PickLowest
	PickHighest = types.PickHighest

	IdentityPublicKeySize = types.IdentityPublicKeySize
)

// NewAddress returns the address of user's only device.
func NewAddress(user UserID) Address { return types.NewAddress(user) }

// ParseIdentityPublicKey decodes the output of IdentityPublicKey.Bytes.
func ParseIdentityPublicKey(b []byte) (IdentityPublicKey, error) {
	return types.ParseIdentityPublicKey(b)
}
