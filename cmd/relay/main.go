package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/app"
	"github.com/madcrx/FADirect/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRoot(newViper()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FADIRECT_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("listen", ":8080")
	v.SetDefault("store", app.StoreSQLite)
	v.SetDefault("dsn", "relay.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	return v
}

func newRoot(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Serve a document store over HTTP for FADirect clients",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger(app.LogConfig{Level: v.GetString("log.level"), JSON: v.GetBool("log.json")})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ln, err := net.Listen("tcp", v.GetString("listen"))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), ln, v.GetString("store"), v.GetString("dsn"), log)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "listen address")
	flags.String("store", app.StoreSQLite, "backing store: sqlite, postgres or memory")
	flags.String("dsn", "relay.db", "SQL data source")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("log-json", false, "log as JSON")
	for key, flag := range map[string]string{
		"listen":    "listen",
		"store":     "store",
		"dsn":       "dsn",
		"log.level": "log-level",
		"log.json":  "log-json",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

// serve runs the relay on ln until ctx is done, then drains in-flight
// requests.
func serve(ctx context.Context, ln net.Listener, store, dsn string, log *zap.SugaredLogger) error {
	if store == app.StoreRelay {
		return errors.New("relay cannot be backed by another relay")
	}
	docs, closeDocs, err := app.OpenDocuments(ctx, app.Config{Store: store, DSN: dsn}, log)
	if err != nil {
		return err
	}
	if closeDocs != nil {
		defer func() {
			if err := closeDocs(); err != nil {
				log.Warnf("closing store: %s", err)
			}
		}()
	}

	srv := &http.Server{
		Handler:           relay.NewServer(docs, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Infof("relay listening on %s (store %s)", ln.Addr(), store)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Infof("relay stopped")
	return nil
}
