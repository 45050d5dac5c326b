package cipher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/protocol/wire"
)

// UndecryptablePlaceholder replaces content that cannot be opened.
const UndecryptablePlaceholder = "[Unable to decrypt message]"

// Service implements domain.MessageCipher.
type Service struct {
	sessions domain.SessionManager
	cache    domain.MessageCache
	log      *zap.SugaredLogger
}

// New returns a cipher over sessions. Opened content is remembered in cache
// so a message can be shown again after its key is gone.
func New(sessions domain.SessionManager, cache domain.MessageCache, log *zap.SugaredLogger) *Service {
	return &Service{sessions: sessions, cache: cache, log: log}
}

// EncryptMessage encrypts plaintext for recipientID and returns the encoded
// envelope. The session advances immediately; use EncryptAndDeliver when the
// envelope may fail to reach the store.
func (s *Service) EncryptMessage(ctx context.Context, recipientID domain.UserID, plaintext string) (string, error) {
	var encoded string
	err := s.EncryptAndDeliver(ctx, recipientID, plaintext, func(_ context.Context, e string) error {
		encoded = e
		return nil
	})
	return encoded, err
}

// EncryptAndDeliver encrypts plaintext and hands the encoded envelope to
// deliver. The session only advances if deliver succeeds.
func (s *Service) EncryptAndDeliver(
	ctx context.Context,
	recipientID domain.UserID,
	plaintext string,
	deliver func(ctx context.Context, encoded string) error,
) error {
	_, err := s.sessions.Encrypt(ctx, recipientID, []byte(plaintext), func(ctx context.Context, env domain.Envelope) error {
		encoded, err := wire.EncodeEnvelope(env)
		if err != nil {
			return err
		}
		return deliver(ctx, encoded)
	})
	if err != nil {
		return fmt.Errorf("encrypt for %s: %w", recipientID, err)
	}
	return nil
}

// DecryptMessage opens an encoded envelope from senderID.
func (s *Service) DecryptMessage(ctx context.Context, senderID domain.UserID, encoded string) (string, error) {
	env, err := wire.DecodeEnvelope(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSessionDecrypt, err)
	}
	pt, err := s.sessions.Decrypt(ctx, senderID, env)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// DecryptMessageContent returns the content of msg for localUserID. It never
// fails: content that cannot be opened becomes UndecryptablePlaceholder.
func (s *Service) DecryptMessageContent(ctx context.Context, msg domain.Message, localUserID domain.UserID) string {
	if msg.ID != "" {
		content, ok, err := s.cache.LoadMessageContent(msg.ID)
		if err != nil {
			s.log.Warnf("message cache read for %s failed: %s", msg.ID, err)
		} else if ok {
			return content
		}
	}
	if msg.RecipientID != localUserID {
		s.log.Debugf("message %s was not addressed to %s and is not cached", msg.ID, localUserID)
		return UndecryptablePlaceholder
	}

	content, err := s.DecryptMessage(ctx, msg.SenderID, msg.EncryptedContent)
	if err != nil {
		s.log.Warnf("unable to decrypt message %s from %s: %s", msg.ID, msg.SenderID, err)
		return UndecryptablePlaceholder
	}
	if msg.ID != "" {
		if err := s.cache.StoreMessageContent(msg.ID, content); err != nil {
			s.log.Warnf("message cache write for %s failed: %s", msg.ID, err)
		}
	}
	return content
}

// Compile-time assertion that Service implements domain.MessageCipher.
var _ domain.MessageCipher = (*Service)(nil)
