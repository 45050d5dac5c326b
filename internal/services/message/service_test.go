package message_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madcrx/FADirect/internal/directory"
	"github.com/madcrx/FADirect/internal/docstore"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/services/cipher"
	"github.com/madcrx/FADirect/internal/services/identity"
	"github.com/madcrx/FADirect/internal/services/message"
	"github.com/madcrx/FADirect/internal/services/session"
	"github.com/madcrx/FADirect/internal/store"
)

func account(t *testing.T, docs domain.DocumentStore, name domain.UserID) *message.Service {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar().Named(string(name))
	dir := directory.New(docs, log)
	keys := store.NewKeyStore(store.NewMemoryVault(), log)
	_, err := identity.New(keys, dir, log, identity.Options{PreKeyBatch: 3}).GenerateUserKeys(context.Background(), name)
	require.NoError(t, err)
	c := cipher.New(session.New(keys, dir, log), keys, log)
	return message.New(docs, c, keys, log)
}

func TestSendAndList(t *testing.T) {
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	alice, bob := account(t, docs, "alice"), account(t, docs, "bob")
	ctx := context.Background()

	sent, err := alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "alice", RecipientID: "bob", Content: "hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)
	require.Equal(t, domain.MessageText, sent.Type)
	require.NotContains(t, sent.EncryptedContent, "hello")

	first, err := bob.List(ctx, "arr-1", "bob")
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, "hello", first[0].Content)

	_, err = bob.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "bob", RecipientID: "alice", Content: "hi back",
	})
	require.NoError(t, err)
	_, err = alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-2", SenderID: "alice", RecipientID: "bob", Content: "elsewhere",
	})
	require.NoError(t, err)

	for _, tc := range []struct {
		svc  *message.Service
		user domain.UserID
	}{{bob, "bob"}, {alice, "alice"}} {
		msgs, err := tc.svc.List(ctx, "arr-1", tc.user)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Equal(t, "hello", msgs[0].Content)
		require.Equal(t, "hi back", msgs[1].Content)
		for _, m := range msgs {
			require.True(t, m.Decrypted)
		}
	}
}

func TestWatchDeliversNewMessages(t *testing.T) {
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	alice, bob := account(t, docs, "alice"), account(t, docs, "bob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bob.Watch(ctx, "arr-1", "bob")
	require.NoError(t, err)

	_, err = alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "alice", RecipientID: "bob", Type: domain.MessageSystem, Content: "ping",
	})
	require.NoError(t, err)

	select {
	case m := <-stream:
		require.Equal(t, "ping", m.Content)
		require.Equal(t, domain.MessageSystem, m.Type)
		require.True(t, m.Decrypted)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	select {
	case _, ok := <-stream:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestWatchCatchesUpWithSlowReader(t *testing.T) {
	const n = 100
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	alice, bob := account(t, docs, "alice"), account(t, docs, "bob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "alice", RecipientID: "bob", Content: "before",
	})
	require.NoError(t, err)

	stream, err := bob.Watch(ctx, "arr-1", "bob")
	require.NoError(t, err)

	// Far more than the store buffers for a subscriber that is not reading.
	for i := range n {
		_, err := alice.Send(ctx, domain.OutgoingMessage{
			ArrangementID: "arr-1", SenderID: "alice", RecipientID: "bob", Content: fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}

	for i := range n {
		select {
		case m := <-stream:
			require.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
			require.True(t, m.Decrypted)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d messages delivered", i, n)
		}
	}
	select {
	case m := <-stream:
		t.Fatalf("unexpected message %q", m.Content)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkDeliveredAndRead(t *testing.T) {
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	alice, bob := account(t, docs, "alice"), account(t, docs, "bob")
	ctx := context.Background()

	sent, err := alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "alice", RecipientID: "bob", Content: "hello",
	})
	require.NoError(t, err)
	require.NoError(t, bob.MarkDelivered(ctx, sent.ID))
	require.NoError(t, bob.MarkRead(ctx, sent.ID))

	msgs, err := bob.List(ctx, "arr-1", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].DeliveredAt)
	require.NotNil(t, msgs[0].ReadAt)
	require.Equal(t, "hello", msgs[0].Content)

	require.ErrorIs(t, bob.MarkRead(ctx, "missing"), domain.ErrDocumentNotFound)
}

func TestSendFailuresStoreNothing(t *testing.T) {
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	alice := account(t, docs, "alice")
	ctx := context.Background()

	_, err := alice.Send(ctx, domain.OutgoingMessage{ArrangementID: "arr-1", SenderID: "alice", Content: "x"})
	require.ErrorIs(t, err, message.ErrInvalidMessage)

	_, err = alice.Send(ctx, domain.OutgoingMessage{
		ArrangementID: "arr-1", SenderID: "alice", RecipientID: "nobody", Content: "x",
	})
	require.ErrorIs(t, err, domain.ErrBundleNotFound)

	stored, err := docs.Find(ctx, message.Table, domain.Filter{})
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestUndecryptableMessageShowsPlaceholder(t *testing.T) {
	docs := docstore.NewMemory(zaptest.NewLogger(t).Sugar())
	bob := account(t, docs, "bob")
	ctx := context.Background()

	require.NoError(t, docs.Set(ctx, message.Table, "forged", domain.Document{
		"arrangementId":    []byte(`"arr-1"`),
		"senderId":         []byte(`"mallory"`),
		"recipientId":      []byte(`"bob"`),
		"encryptedContent": []byte(`"Zm9yZ2Vk"`),
		"type":             []byte(`"text"`),
		"timestamp":        []byte(`"2026-01-02T03:04:05Z"`),
	}))
	msgs, err := bob.List(ctx, "arr-1", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.False(t, msgs[0].Decrypted)
	require.Equal(t, cipher.UndecryptablePlaceholder, msgs[0].Content)
}
