// Package setup builds lokal's runtime components from the effective
// configuration so that every command wires them the same way.
package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/cmd/lokal/sqlitepath"
	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/credentials"
	"github.com/papercomputeco/lokal/pkg/eventstream"
	"github.com/papercomputeco/lokal/pkg/eventstream/kafka"
	"github.com/papercomputeco/lokal/pkg/eventstream/nop"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/facts/inmemory"
	"github.com/papercomputeco/lokal/pkg/facts/postgres"
	"github.com/papercomputeco/lokal/pkg/facts/sqlite"
	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/llm/provider"
	"github.com/papercomputeco/lokal/pkg/logger"
	"github.com/papercomputeco/lokal/pkg/memory"
	"github.com/papercomputeco/lokal/pkg/retriever"
)

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ConfigDir returns the --config-dir persistent flag.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Debug returns the --debug persistent flag.
func Debug(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

// LoadConfig resolves the effective configuration for cmd. flagKeys names the
// config.Registry flags cmd registered; they take precedence over the
// environment, config.toml and the defaults.
func LoadConfig(cmd *cobra.Command, flagKeys ...string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, flagKeys)
	return config.FromViper(v), nil
}

// NewLogger builds the pretty CLI logger honoring --debug. Extra writers, such
// as a log file, receive plain text.
func NewLogger(cmd *cobra.Command, files ...io.Writer) *slog.Logger {
	debug := Debug(cmd)
	console := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
	if len(files) == 0 {
		return console
	}

	return logger.Multi(console, logger.New(
		logger.WithDebug(debug),
		logger.WithWriters(files...),
	))
}

// OpenStore opens the configured fact store.
func OpenStore(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (facts.Store, error) {
	opts := []facts.Option{facts.WithMatchThreshold(cfg.Memory.MatchThreshold)}

	switch cfg.Storage.Driver {
	case DriverMemory:
		log.Debug("using in-memory fact store")
		return inmemory.NewStore(opts...), nil

	case DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the %s driver", DriverPostgres)
		}
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening postgres fact store: %w", err)
		}
		log.Debug("using postgres fact store")
		return store, nil

	case DriverSQLite, "":
		path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, configDir)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.NewStore(ctx, sqlite.Config{Path: path, Logger: log}, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite fact store: %w", err)
		}
		if store.Backup != "" {
			log.Warn("fact database was unreadable and has been replaced", "path", path, "backup", store.Backup)
		}
		log.Debug("using sqlite fact store", "path", path)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// NewGenerator builds the configured model client.
func NewGenerator(cfg *config.Config, configDir string, log *slog.Logger) (llm.Generator, error) {
	timeout, err := parseDuration("llm.timeout", cfg.LLM.Timeout)
	if err != nil {
		return nil, err
	}

	c := provider.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.Target,
		Timeout:  timeout,
		Logger:   log,
	}
	if cfg.LLM.APIKeyEnv != "" {
		c.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		log.Warn("credentials unavailable", "error", err)
	} else {
		c.Credentials = mgr
	}

	return provider.New(c)
}

// NewPublisher builds the configured memory event publisher.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.BrokerList(),
			Topic:   cfg.Events.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing memory events to kafka", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q", cfg.Events.Provider)
	}
}

// NewRetriever builds the prompt-time retriever over store.
func NewRetriever(cfg *config.Config, store facts.Store, log *slog.Logger) (*retriever.Retriever, error) {
	return retriever.New(retriever.Config{
		Store:       store,
		PinIdentity: int(cfg.Memory.PinIdentity),
		Logger:      log,
	})
}

// NewManager starts the background memory manager. It returns
// memory.ErrNotConfigured when memory is disabled.
func NewManager(cfg *config.Config, store facts.Store, gen llm.Generator, pub eventstream.Publisher, log *slog.Logger) (*memory.Manager, error) {
	if !cfg.Memory.Enabled {
		return nil, memory.ErrNotConfigured
	}

	timeout, err := parseDuration("memory.extraction_timeout", cfg.Memory.ExtractionTimeout)
	if err != nil {
		return nil, err
	}

	r, err := NewRetriever(cfg, store, log)
	if err != nil {
		return nil, err
	}

	return memory.New(memory.Config{
		Store:             store,
		Generator:         gen,
		Retriever:         r,
		Publisher:         pub,
		Logger:            log,
		QueueSize:         int(cfg.Memory.QueueSize),
		ExtractionTimeout: timeout,
		ContextFacts:      int(cfg.Memory.ContextFacts),
	})
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
