package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/docstore"
	"github.com/madcrx/FADirect/internal/domain"
)

func publishedKeys(t *testing.T, n int) (domain.PublishedKeys, domain.IdentityKeyPair) {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(id, 0)
	require.NoError(t, err)
	opks, err := crypto.GeneratePreKeys(0, n)
	require.NoError(t, err)
	pubs := make([]domain.OneTimePreKeyPublic, 0, n)
	for _, k := range opks {
		pubs = append(pubs, k.PublicPart())
	}
	return domain.PublishedKeys{
		IdentityKey:    id.Public(),
		RegistrationID: 4242,
		PreKeys:        pubs,
		SignedPreKey:   spk.PublicPart(),
		CreatedAt:      time.Now(),
	}, id
}

func newDirectory(t *testing.T) (*Directory, domain.DocumentStore) {
	log := zaptest.NewLogger(t).Sugar()
	docs := docstore.NewMemory(log)
	return New(docs, log), docs
}

func TestPublishWritesDocumentedRecord(t *testing.T) {
	d, docs := newDirectory(t)
	ctx := context.Background()
	keys, _ := publishedKeys(t, 2)
	require.NoError(t, d.Publish(ctx, "bob", keys))

	st, err := docs.Get(ctx, Table, "bob")
	require.NoError(t, err)
	for _, f := range []string{"identityKey", "registrationId", "preKeys", "signedPreKey", "createdAt"} {
		require.Contains(t, st.Data, f)
	}
	require.JSONEq(t, `4242`, string(st.Data["registrationId"]))
	require.JSONEq(t, `"`+crypto.B64(keys.IdentityKey.Bytes())+`"`, string(st.Data["identityKey"]))
}

func TestFetchClaimsLowestThenExhausts(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	keys, _ := publishedKeys(t, 3)
	require.NoError(t, d.Publish(ctx, "bob", keys))

	for want := range 3 {
		b, err := d.Fetch(ctx, "bob")
		require.NoError(t, err)
		opk, ok := b.OneTimePreKey.Get()
		require.True(t, ok)
		require.Equal(t, domain.PreKeyID(want), opk.ID)
		require.Equal(t, keys.PreKeys[want].Public, opk.Public)
		require.True(t, keys.IdentityKey.Equal(b.IdentityKey))
		require.Equal(t, keys.SignedPreKey.Public, b.SignedPreKey.Public)
		require.Equal(t, domain.DefaultDeviceID, b.DeviceID)
	}

	left, err := d.Remaining(ctx, "bob")
	require.NoError(t, err)
	require.Zero(t, left)

	b, err := d.Fetch(ctx, "bob")
	require.NoError(t, err)
	require.False(t, b.OneTimePreKey.Ok())
	require.True(t, crypto.VerifyEd25519(b.IdentityKey.Signing, b.SignedPreKey.Public.Slice(), b.SignedPreKey.Signature))
}

func TestFetchUnknownUser(t *testing.T) {
	d, _ := newDirectory(t)
	_, err := d.Fetch(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
	_, err = d.Remaining(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
}

func TestConcurrentFetchesClaimDisjointKeys(t *testing.T) {
	const n = 30
	d, _ := newDirectory(t)
	ctx := context.Background()
	keys, _ := publishedKeys(t, n)
	require.NoError(t, d.Publish(ctx, "bob", keys))

	var (
		mu   sync.Mutex
		seen = map[domain.PreKeyID]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			b, err := d.Fetch(gctx, "bob")
			if err != nil {
				return err
			}
			if opk, ok := b.OneTimePreKey.Get(); ok {
				mu.Lock()
				seen[opk.ID]++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, seen, n)
	for id, count := range seen {
		require.Equal(t, 1, count, "prekey %d claimed more than once", id)
	}
}

func TestAppendAndReplaceSignedPreKey(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	keys, id := publishedKeys(t, 1)
	require.NoError(t, d.Publish(ctx, "bob", keys))

	more, err := crypto.GeneratePreKeys(1, 2)
	require.NoError(t, err)
	require.NoError(t, d.AppendPreKeys(ctx, "bob", []domain.OneTimePreKeyPublic{more[0].PublicPart(), more[1].PublicPart()}))
	left, err := d.Remaining(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 3, left)

	spk, err := crypto.GenerateSignedPreKey(id, 1)
	require.NoError(t, err)
	require.NoError(t, d.ReplaceSignedPreKey(ctx, "bob", spk.PublicPart()))
	b, err := d.Fetch(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.SignedPreKeyID(1), b.SignedPreKey.ID)
	require.Equal(t, spk.Public, b.SignedPreKey.Public)

	require.ErrorIs(t, d.AppendPreKeys(ctx, "nobody", more[:1]), domain.ErrBundleNotFound)
	require.ErrorIs(t, d.ReplaceSignedPreKey(ctx, "nobody", spk.PublicPart()), domain.ErrBundleNotFound)
}
