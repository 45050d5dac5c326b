package cipher_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madcrx/FADirect/internal/directory"
	"github.com/madcrx/FADirect/internal/docstore"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/services/cipher"
	"github.com/madcrx/FADirect/internal/services/identity"
	"github.com/madcrx/FADirect/internal/services/session"
	"github.com/madcrx/FADirect/internal/store"
)

func pair(t *testing.T) (alice, bob *cipher.Service) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	dir := directory.New(docstore.NewMemory(log), log)
	mk := func(name domain.UserID) *cipher.Service {
		keys := store.NewKeyStore(store.NewMemoryVault(), log)
		_, err := identity.New(keys, dir, log, identity.Options{PreKeyBatch: 3}).GenerateUserKeys(context.Background(), name)
		require.NoError(t, err)
		return cipher.New(session.New(keys, dir, log), keys, log)
	}
	return mk("alice"), mk("bob")
}

func TestEncryptDecryptMessage(t *testing.T) {
	alice, bob := pair(t)
	ctx := context.Background()

	encoded, err := alice.EncryptMessage(ctx, "bob", "hello")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var env struct {
		Type int    `json:"type"`
		Body []byte `json:"body"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, 3, env.Type)
	require.NotEmpty(t, env.Body)

	pt, err := bob.DecryptMessage(ctx, "alice", encoded)
	require.NoError(t, err)
	require.Equal(t, "hello", pt)

	reply, err := bob.EncryptMessage(ctx, "alice", "hi back")
	require.NoError(t, err)
	raw, err = base64.StdEncoding.DecodeString(reply)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, 1, env.Type)
}

func TestDecryptMessageRejectsGarbage(t *testing.T) {
	_, bob := pair(t)
	_, err := bob.DecryptMessage(context.Background(), "alice", "not base64!")
	require.ErrorIs(t, err, domain.ErrSessionDecrypt)
}

func TestEncryptAndDeliverFailureKeepsState(t *testing.T) {
	alice, bob := pair(t)
	ctx := context.Background()

	err := alice.EncryptAndDeliver(ctx, "bob", "lost", func(context.Context, string) error {
		return errors.New("offline")
	})
	require.Error(t, err)

	var delivered string
	require.NoError(t, alice.EncryptAndDeliver(ctx, "bob", "kept", func(_ context.Context, e string) error {
		delivered = e
		return nil
	}))
	pt, err := bob.DecryptMessage(ctx, "alice", delivered)
	require.NoError(t, err)
	require.Equal(t, "kept", pt)
}

func TestDecryptMessageContent(t *testing.T) {
	alice, bob := pair(t)
	ctx := context.Background()

	encoded, err := alice.EncryptMessage(ctx, "bob", "hello")
	require.NoError(t, err)
	msg := domain.Message{ID: "m1", SenderID: "alice", RecipientID: "bob", EncryptedContent: encoded}

	require.Equal(t, "hello", bob.DecryptMessageContent(ctx, msg, "bob"))
	// A second read cannot decrypt again (the key is spent) but is served
	// from the cache.
	require.Equal(t, "hello", bob.DecryptMessageContent(ctx, msg, "bob"))

	// The sender cannot open its own envelope.
	require.Equal(t, cipher.UndecryptablePlaceholder, alice.DecryptMessageContent(ctx, msg, "alice"))

	bad := domain.Message{ID: "m2", SenderID: "alice", RecipientID: "bob", EncryptedContent: "garbage"}
	require.Equal(t, cipher.UndecryptablePlaceholder, bob.DecryptMessageContent(ctx, bad, "bob"))
}
