package setup

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/facts"
)

// StoreFlags are the registry flags every store-backed command registers.
var StoreFlags = []string{config.FlagStorage, config.FlagSQLite, config.FlagPostgres}

// AddStoreFlags registers StoreFlags on cmd.
func AddStoreFlags(cmd *cobra.Command) {
	var driver, sqlitePath, dsn string
	config.AddStringFlag(cmd, config.Registry, config.FlagStorage, &driver)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &sqlitePath)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgres, &dsn)
}

// Env is what a store-backed command runs with.
type Env struct {
	Config    *config.Config
	ConfigDir string
	Logger    *slog.Logger
	Store     facts.Store
}

// Open loads the configuration for cmd and opens the fact store. flagKeys are
// bound in addition to StoreFlags.
func Open(cmd *cobra.Command, flagKeys ...string) (*Env, error) {
	cfg, err := LoadConfig(cmd, append(append([]string(nil), StoreFlags...), flagKeys...)...)
	if err != nil {
		return nil, err
	}

	log := NewLogger(cmd)
	configDir := ConfigDir(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := OpenStore(ctx, cfg, configDir, log)
	if err != nil {
		return nil, err
	}

	return &Env{Config: cfg, ConfigDir: configDir, Logger: log, Store: store}, nil
}

// Close releases the store.
func (e *Env) Close() error {
	return e.Store.Close()
}
