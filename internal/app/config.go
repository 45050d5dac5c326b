package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Vault backends.
const (
	VaultFile    = "file"
	VaultKeyring = "keyring"
	VaultMemory  = "memory"
)

// Document store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRelay    = "relay"
	StoreMemory   = "memory"
)

// EnvPrefix is the prefix of environment variables read into the config,
// e.g. FADIRECT_USER or FADIRECT_PREKEYS_BATCH.
const EnvPrefix = "FADIRECT"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string `mapstructure:"home"`       // config directory, e.g. $HOME/.fadirect
	Passphrase string `mapstructure:"passphrase"` // unlocks the file or keyring vault
	User       string `mapstructure:"user"`       // local account id
	Vault      string `mapstructure:"vault"`
	Store      string `mapstructure:"store"`
	DSN        string `mapstructure:"dsn"`   // SQL data source; defaults to fadirect.db in Home
	Relay      string `mapstructure:"relay"` // relay base URL, e.g. http://127.0.0.1:8080

	PreKeys      PreKeyConfig       `mapstructure:"prekeys"`
	SignedPreKey SignedPreKeyConfig `mapstructure:"signed_prekey"`
	Log          LogConfig          `mapstructure:"log"`

	HTTP *http.Client `mapstructure:"-"` // optional; defaults to http.DefaultClient
}

// PreKeyConfig sizes one-time prekey batches.
type PreKeyConfig struct {
	Batch     int `mapstructure:"batch"`
	Threshold int `mapstructure:"threshold"`
}

// SignedPreKeyConfig controls signed prekey rotation.
type SignedPreKeyConfig struct {
	Retain int `mapstructure:"retain"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// NewViper returns a viper instance reading FADIRECT_* environment variables
// on top of the defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every config key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("home", "")
	v.SetDefault("passphrase", "")
	v.SetDefault("user", "")
	v.SetDefault("vault", VaultFile)
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("dsn", "")
	v.SetDefault("relay", "")

	v.SetDefault("prekeys.batch", 100)
	v.SetDefault("prekeys.threshold", 10)
	v.SetDefault("signed_prekey.retain", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load resolves the home directory, merges an optional config.yaml found
// there and returns the validated config.
func Load(v *viper.Viper) (Config, error) {
	home := v.GetString("home")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = filepath.Join(dir, ".fadirect")
		v.Set("home", home)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.DSN == "" && cfg.Store == StoreSQLite {
		cfg.DSN = filepath.Join(cfg.Home, "fadirect.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Vault {
	case VaultFile, VaultKeyring, VaultMemory:
	default:
		return fmt.Errorf("unknown vault %q (want file, keyring or memory)", c.Vault)
	}
	switch c.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.DSN == "" {
			return errors.New("postgres store needs a dsn (use --dsn or FADIRECT_DSN)")
		}
	case StoreRelay:
		if c.Relay == "" {
			return errors.New("relay store needs a relay URL (use --relay or FADIRECT_RELAY)")
		}
	default:
		return fmt.Errorf("unknown store %q (want sqlite, postgres, relay or memory)", c.Store)
	}
	if c.PreKeys.Batch <= 0 {
		return fmt.Errorf("prekeys.batch must be positive, got %d", c.PreKeys.Batch)
	}
	if c.PreKeys.Threshold < 0 {
		return fmt.Errorf("prekeys.threshold must not be negative, got %d", c.PreKeys.Threshold)
	}
	return nil
}
