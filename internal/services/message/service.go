package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/services/cipher"
)

// Table holds every arrangement message.
const Table = "messages"

const (
	fieldArrangementID = "arrangementId"
	fieldDeliveredAt   = "deliveredAt"
	fieldReadAt        = "readAt"
)

var (
	// ErrInvalidMessage is returned for messages missing a party or arrangement.
	ErrInvalidMessage = errors.New("message needs an arrangement, a sender and a recipient")
)

// Service sends and reads encrypted arrangement messages.
type Service struct {
	docs   domain.DocumentStore
	cipher domain.MessageCipher
	cache  domain.MessageCache
	log    *zap.SugaredLogger
	now    func() time.Time
}

// New returns a message service.
func New(
	docs domain.DocumentStore,
	c domain.MessageCipher,
	cache domain.MessageCache,
	log *zap.SugaredLogger,
) *Service {
	return &Service{docs: docs, cipher: c, cache: cache, log: log, now: time.Now}
}

// Send encrypts msg for its recipient and stores it. The recipient's session
// only advances if the store accepts the message. The plaintext is kept in
// the local cache so the sender can read its own history.
func (s *Service) Send(ctx context.Context, msg domain.OutgoingMessage) (domain.Message, error) {
	if msg.ArrangementID == "" || msg.SenderID == "" || msg.RecipientID == "" {
		return domain.Message{}, ErrInvalidMessage
	}
	kind := msg.Type
	if kind == "" {
		kind = domain.MessageText
	}

	out := domain.Message{
		ID:            uuid.NewString(),
		ArrangementID: msg.ArrangementID,
		SenderID:      msg.SenderID,
		RecipientID:   msg.RecipientID,
		Type:          kind,
		Timestamp:     s.now().UTC(),
	}
	err := s.cipher.EncryptAndDeliver(ctx, msg.RecipientID, msg.Content, func(ctx context.Context, encoded string) error {
		out.EncryptedContent = encoded
		doc, err := toDocument(out)
		if err != nil {
			return err
		}
		// Cached before the message becomes visible so a watcher on this
		// device never sees it undecryptable.
		if err := s.cache.StoreMessageContent(out.ID, msg.Content); err != nil {
			return err
		}
		return s.docs.Set(ctx, Table, out.ID, doc)
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.log.Debugf("sent message %s in arrangement %s", out.ID, out.ArrangementID)
	return out, nil
}

// List returns the messages of an arrangement, oldest first, decrypted for
// localUserID.
func (s *Service) List(
	ctx context.Context,
	arrangementID string,
	localUserID domain.UserID,
) ([]domain.DecryptedMessage, error) {
	msgs, err := s.find(ctx, arrangementID)
	if err != nil {
		return nil, fmt.Errorf("list arrangement %s: %w", arrangementID, err)
	}
	out := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.open(ctx, m, localUserID))
	}
	return out, nil
}

// Watch streams new messages of an arrangement, decrypted for localUserID,
// until ctx is done. The channel is closed when the stream ends. Messages
// already stored when Watch returns are not replayed.
//
// Change notifications only wake the stream up:
//  1. pending notifications are drained,
//  2. the arrangement is re-read from the store,
//  3. every message not emitted yet is sent, oldest first.
//
// A notification the store dropped for a slow reader is therefore picked up
// by the next re-read and no message is lost.
func (s *Service) Watch(
	ctx context.Context,
	arrangementID string,
	localUserID domain.UserID,
) (<-chan domain.DecryptedMessage, error) {
	sub, err := s.docs.Subscribe(ctx, Table, domain.Filter{Field: fieldArrangementID, Value: arrangementID})
	if err != nil {
		return nil, fmt.Errorf("watch arrangement %s: %w", arrangementID, err)
	}
	existing, err := s.find(ctx, arrangementID)
	if err != nil {
		sub.Cancel()
		return nil, fmt.Errorf("watch arrangement %s: %w", arrangementID, err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}

	out := make(chan domain.DecryptedMessage)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for range sub.C() {
			drain(sub.C())
			msgs, err := s.find(ctx, arrangementID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warnf("re-reading arrangement %s: %s", arrangementID, err)
				continue
			}
			for _, m := range msgs {
				if _, ok := seen[m.ID]; ok {
					continue
				}
				seen[m.ID] = struct{}{}
				select {
				case out <- s.open(ctx, m, localUserID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// find returns the well-formed messages of an arrangement, oldest first.
func (s *Service) find(ctx context.Context, arrangementID string) ([]domain.Message, error) {
	stored, err := s.docs.Find(ctx, Table, domain.Filter{Field: fieldArrangementID, Value: arrangementID})
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(stored))
	for _, st := range stored {
		m, err := fromDocument(st.ID, st.Data)
		if err != nil {
			s.log.Warnf("skipping malformed message %s: %s", st.ID, err)
			continue
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, nil
}

// drain discards the notifications already queued on c.
func drain(c <-chan domain.Change) {
	for {
		select {
		case _, ok := <-c:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// MarkDelivered stamps the delivery time of a message.
func (s *Service) MarkDelivered(ctx context.Context, messageID string) error {
	return s.stamp(ctx, messageID, fieldDeliveredAt)
}

// MarkRead stamps the read time of a message.
func (s *Service) MarkRead(ctx context.Context, messageID string) error {
	return s.stamp(ctx, messageID, fieldReadAt)
}

func (s *Service) stamp(ctx context.Context, messageID, field string) error {
	ts, err := json.Marshal(s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.docs.Update(ctx, Table, messageID, domain.Document{field: ts}); err != nil {
		return fmt.Errorf("mark %s on %s: %w", field, messageID, err)
	}
	return nil
}

func (s *Service) open(ctx context.Context, m domain.Message, localUserID domain.UserID) domain.DecryptedMessage {
	content := s.cipher.DecryptMessageContent(ctx, m, localUserID)
	return domain.DecryptedMessage{
		Message:   m,
		Content:   content,
		Decrypted: content != cipher.UndecryptablePlaceholder,
	}
}

func toDocument(m domain.Message) (domain.Document, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	delete(doc, "id")
	return doc, nil
}

func fromDocument(id string, doc domain.Document) (domain.Message, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.Message{}, err
	}
	m.ID = id
	return m, nil
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
