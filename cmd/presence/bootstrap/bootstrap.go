// Package bootstrap builds the presence component graph from resolved
// configuration. Commands share it so that every entry point wires the
// store, channels and pipeline the same way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/pkg/config"
	"github.com/papercomputeco/presence/pkg/dotdir"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/storage/inmemory"
	"github.com/papercomputeco/presence/pkg/storage/postgres"
	"github.com/papercomputeco/presence/pkg/storage/sqlite"
)

// LoadConfig resolves configuration through the viper precedence chain and
// binds the given registered flags of cmd on top.
func LoadConfig(cmd *cobra.Command, flagKeys []string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	return config.FromViper(v)
}

// NewLogger builds the command logger: human readable on stderr, plus JSON
// lines appended to logFile when set. The returned closer closes the file.
func NewLogger(debug bool, logFile string) (*slog.Logger, io.Closer, error) {
	console := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithPrefix("presence"),
	)
	if logFile == "" {
		return console, nopCloser{}, nil
	}

	file, closer, err := logger.OpenFile(logFile, logger.WithDebug(debug))
	if err != nil {
		return nil, nil, err
	}
	return logger.Multi(console, file), closer, nil
}

// OpenStore opens the configured event store. A SQLite store with no path
// uses presence.db in the resolved .presence/ directory.
func OpenStore(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory", "inmemory":
		log.Warn("using in-memory storage; nothing will persist after this run")
		return inmemory.NewDriver(), nil

	case "postgres", "postgresql":
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		d, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Debug("using postgres storage")
		return d, nil

	case "sqlite", "":
		path := cfg.Storage.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().DBPath(configDir)
			if err != nil {
				return nil, err
			}
			if path == "" {
				return nil, errors.New("no .presence directory found; run presence init or pass --sqlite")
			}
		}
		d, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		log.Debug("using sqlite storage", "path", path)
		return d, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// StoreFlags are the registered flags that select the event store.
var StoreFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

// StoreFlagValues holds the targets of the store flags.
type StoreFlagValues struct {
	Driver   string
	SQLite   string
	Postgres string
}

// AddStoreFlags registers StoreFlags on cmd.
func AddStoreFlags(cmd *cobra.Command, v *StoreFlagValues) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &v.Driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &v.SQLite)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &v.Postgres)
}

// WithStore opens the store selected by cmd's flags and configuration for
// the duration of fn.
func WithStore(cmd *cobra.Command, fn func(ctx context.Context, store storage.Driver) error) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfg, err := LoadConfig(cmd, StoreFlags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, closer, err := NewLogger(debug, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := OpenStore(cmd.Context(), cfg, configDir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing store", "error", err)
		}
	}()

	return fn(cmd.Context(), store)
}
