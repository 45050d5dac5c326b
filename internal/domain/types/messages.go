package types

import "time"

// EnvelopeType distinguishes session-bootstrapping messages from ordinary
// ratchet messages.
type EnvelopeType int

const (
	// EnvelopeWhisper is an ordinary ratchet message.
	EnvelopeWhisper EnvelopeType = 1
	// EnvelopePreKey carries the X3DH parameters needed to build a session.
	EnvelopePreKey EnvelopeType = 3
)

// String returns a short name for the type.
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeWhisper:
		return "whisper"
	case EnvelopePreKey:
		return "prekey"
	default:
		return "unknown"
	}
}

// Envelope is the encrypted unit handed to the document store.
type Envelope struct {
	Type EnvelopeType `json:"type"`
	Body []byte       `json:"body"`
}

// MessageKind is the application-level type of an arrangement message.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageDocument MessageKind = "document"
	MessageForm     MessageKind = "form"
	MessageSystem   MessageKind = "system"
)

// Message is a stored arrangement message. EncryptedContent holds the
// envelope produced by the sender's MessageCipher.
type Message struct {
	ID               string      `json:"id"`
	ArrangementID    string      `json:"arrangementId"`
	SenderID         UserID      `json:"senderId"`
	RecipientID      UserID      `json:"recipientId"`
	EncryptedContent string      `json:"encryptedContent"`
	Type             MessageKind `json:"type"`
	Timestamp        time.Time   `json:"timestamp"`
	DeliveredAt      *time.Time  `json:"deliveredAt,omitempty"`
	ReadAt           *time.Time  `json:"readAt,omitempty"`
}

// DecryptedMessage is a Message with its content opened for the local user.
type DecryptedMessage struct {
	Message
	Content   string `json:"content"`
	Decrypted bool   `json:"decrypted"`
}

// OutgoingMessage is what a caller supplies to send a message.
type OutgoingMessage struct {
	ArrangementID string
	SenderID      UserID
	RecipientID   UserID
	Type          MessageKind
	Content       string
}
