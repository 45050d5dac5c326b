package interfaces

import (
	"context"

	domaintypes "github.com/madcrx/FADirect/internal/domain/types"
)

// KeyGenerator creates the local key set and publishes its public half.
type KeyGenerator interface {
	GenerateUserKeys(ctx context.Context, userID domaintypes.UserID) (domaintypes.Fingerprint, error)
	Fingerprint() (domaintypes.Fingerprint, error)
}

// PreKeyService keeps the published prekey supply healthy.
type PreKeyService interface {
	Replenish(ctx context.Context, userID domaintypes.UserID, n int) (int, error)
	ReplenishIfBelow(ctx context.Context, userID domaintypes.UserID, threshold, n int) (int, error)
	RotateSignedPreKey(ctx context.Context, userID domaintypes.UserID) (domaintypes.SignedPreKeyID, error)
	Republish(ctx context.Context, userID domaintypes.UserID) error
	Status(ctx context.Context, userID domaintypes.UserID) (domaintypes.PreKeyStatus, error)
}

// BundleDirectory publishes and fetches prekey bundles.
type BundleDirectory interface {
	Publish(ctx context.Context, userID domaintypes.UserID, keys domaintypes.PublishedKeys) error
	Fetch(ctx context.Context, userID domaintypes.UserID) (domaintypes.PreKeyBundle, error)
	Remaining(ctx context.Context, userID domaintypes.UserID) (int, error)
	AppendPreKeys(ctx context.Context, userID domaintypes.UserID, keys []domaintypes.OneTimePreKeyPublic) error
	ReplaceSignedPreKey(ctx context.Context, userID domaintypes.UserID, key domaintypes.SignedPreKeyPublic) error
}

// DeliverFunc hands an encrypted envelope to the transport. The session only
// advances when it returns nil.
type DeliverFunc func(ctx context.Context, env domaintypes.Envelope) error

// SessionManager owns pairwise sessions and the ratchet state inside them.
type SessionManager interface {
	HasSession(ctx context.Context, peer domaintypes.UserID) (bool, error)
	Encrypt(
		ctx context.Context,
		peer domaintypes.UserID,
		plaintext []byte,
		deliver DeliverFunc,
	) (domaintypes.Envelope, error)
	Decrypt(ctx context.Context, peer domaintypes.UserID, env domaintypes.Envelope) ([]byte, error)
	Reset(ctx context.Context, peer domaintypes.UserID) error
	PeerIdentity(ctx context.Context, peer domaintypes.UserID) (domaintypes.IdentityPublicKey, bool, error)
	TrustIdentity(ctx context.Context, peer domaintypes.UserID, key domaintypes.IdentityPublicKey) error
}

// MessageCipher converts between plaintext and transport-encoded envelopes.
type MessageCipher interface {
	EncryptMessage(ctx context.Context, recipientID domaintypes.UserID, plaintext string) (string, error)
	EncryptAndDeliver(
		ctx context.Context,
		recipientID domaintypes.UserID,
		plaintext string,
		deliver func(ctx context.Context, encoded string) error,
	) error
	DecryptMessage(ctx context.Context, senderID domaintypes.UserID, encoded string) (string, error)
	DecryptMessageContent(ctx context.Context, msg domaintypes.Message, localUserID domaintypes.UserID) string
}

// MessageService sends and reads arrangement messages.
type MessageService interface {
	Send(ctx context.Context, msg domaintypes.OutgoingMessage) (domaintypes.Message, error)
	List(
		ctx context.Context,
		arrangementID string,
		localUserID domaintypes.UserID,
	) ([]domaintypes.DecryptedMessage, error)
	Watch(
		ctx context.Context,
		arrangementID string,
		localUserID domaintypes.UserID,
	) (<-chan domaintypes.DecryptedMessage, error)
	MarkDelivered(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID string) error
}
