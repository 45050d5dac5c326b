package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/madcrx/FADirect/internal/app"
)

var appCtx *app.App

// Execute runs the CLI until ctx is done.
func Execute(ctx context.Context) error {
	return NewRoot(app.NewViper()).ExecuteContext(ctx)
}

// NewRoot builds the command tree reading its settings from v.
func NewRoot(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:          "fadirect",
		Short:        "End-to-end encrypted arrangement messaging",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(v)
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			appCtx = app.New(w)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			_ = appCtx.Log.Sync()
			return appCtx.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("home", "", "config dir (default ~/.fadirect)")
	flags.StringP("passphrase", "p", "", "passphrase protecting the vault")
	flags.StringP("user", "u", "", "local account id")
	flags.String("vault", app.VaultFile, "key vault: file, keyring or memory")
	flags.String("store", app.StoreSQLite, "document store: sqlite, postgres, relay or memory")
	flags.String("dsn", "", "SQL data source (default <home>/fadirect.db)")
	flags.String("relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	for key, flag := range map[string]string{
		"home":       "home",
		"passphrase": "passphrase",
		"user":       "user",
		"vault":      "vault",
		"store":      "store",
		"dsn":        "dsn",
		"relay":      "relay",
		"log.level":  "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		sendCmd(),
		recvCmd(),
		watchCmd(),
		resetCmd(),
		trustCmd(),
		prekeysCmd(),
		rotateCmd(),
	)
	return root
}
