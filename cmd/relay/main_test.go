package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madcrx/FADirect/internal/app"
	"github.com/madcrx/FADirect/internal/domain"
	"github.com/madcrx/FADirect/internal/relay"
)

func startRelay(t *testing.T, store, dsn string) (string, func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, ln, store, dsn, zaptest.NewLogger(t).Sugar()) }()

	stop := func() error {
		cancel()
		return <-errc
	}
	return "http://" + ln.Addr().String(), stop
}

func TestServeAndShutdown(t *testing.T) {
	for _, store := range []string{app.StoreMemory, app.StoreSQLite} {
		t.Run(store, func(t *testing.T) {
			base, stop := startRelay(t, store, filepath.Join(t.TempDir(), "relay.db"))
			ctx := context.Background()
			client := relay.NewHTTP(base, http.DefaultClient, zaptest.NewLogger(t).Sugar())

			doc := domain.Document{"name": json.RawMessage(`"bob"`)}
			require.NoError(t, client.Set(ctx, "users", "bob", doc))
			got, err := client.Get(ctx, "users", "bob")
			require.NoError(t, err)
			require.JSONEq(t, `"bob"`, string(got.Data["name"]))

			_, err = client.Get(ctx, "users", "carol")
			require.ErrorIs(t, err, domain.ErrDocumentNotFound)

			require.NoError(t, stop())
		})
	}
}

func TestServeRejectsRelayBackend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	err = serve(context.Background(), ln, app.StoreRelay, "", zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	v := newViper()
	cmd := newRoot(v)
	require.NoError(t, cmd.Flags().Parse([]string{"--listen", "127.0.0.1:9999", "--store", "memory"}))
	require.Equal(t, "127.0.0.1:9999", v.GetString("listen"))
	require.Equal(t, app.StoreMemory, v.GetString("store"))
	require.Equal(t, "relay.db", v.GetString("dsn"))
}
