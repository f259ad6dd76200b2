// Package servecmder provides the serve command, which runs the memory API
// and the background memory manager.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lokal/api"
	"github.com/papercomputeco/lokal/cmd/lokal/setup"
	"github.com/papercomputeco/lokal/pkg/config"
	"github.com/papercomputeco/lokal/pkg/eventstream"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/logger"
	"github.com/papercomputeco/lokal/pkg/memory"
)

const shutdownTimeout = 30 * time.Second

const serveLongDesc string = `Run the lokal memory service.

The service exposes the fact store over HTTP under /v1, accepts finished
conversation turns on POST /v1/turns for background extraction, and serves
the memory_recall and memory_count tools to MCP clients on /mcp.

Memory change events can be published to Kafka with --events kafka.

Examples:
  lokal serve
  lokal serve --listen :9090 --provider openai --model gpt-4o-mini
  lokal serve --storage postgres --postgres "postgres://localhost/lokal"
  lokal serve --events kafka --kafka-brokers localhost:9092 --json-logs`

const serveShortDesc string = "Run the memory API server"

var serveFlags = []string{
	config.FlagListen,
	config.FlagProvider,
	config.FlagModel,
	config.FlagTarget,
	config.FlagEvents,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagContextFacts,
	config.FlagPinIdentity,
}

type serveCommander struct {
	logFile  string
	jsonLogs bool
	noMCP    bool
}

// services are the running parts of the memory service, closed in reverse
// order of construction.
type services struct {
	server    *api.Server
	store     facts.Store
	manager   *memory.Manager
	publisher eventstream.Publisher
	logger    *slog.Logger
	closers   []io.Closer
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	var (
		listen, provider, model, target string
		events, brokers, topic          string
		contextFacts, pin               uint
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagListen, &listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagProvider, &provider)
	config.AddStringFlag(cmd, config.Registry, config.FlagModel, &model)
	config.AddStringFlag(cmd, config.Registry, config.FlagTarget, &target)
	config.AddStringFlag(cmd, config.Registry, config.FlagEvents, &events)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaBrokers, &brokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagKafkaTopic, &topic)
	config.AddUintFlag(cmd, config.Registry, config.FlagContextFacts, &contextFacts)
	config.AddUintFlag(cmd, config.Registry, config.FlagPinIdentity, &pin)
	setup.AddStoreFlags(cmd)

	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append logs to this file")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write JSON logs instead of the console format")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve /mcp without tools")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	svc, err := c.build(cmd)
	if err != nil {
		return err
	}

	svc.logger.Debug("memory service wired", "memory", svc.manager != nil, "mcp", !c.noMCP)

	errChan := make(chan error, 1)
	go func() {
		if err := svc.server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		svc.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, svc.shutdown(ctx))
}

// build wires the service from the effective configuration. On error every
// component opened so far is closed again.
func (c *serveCommander) build(cmd *cobra.Command) (svc *services, err error) {
	cfg, err := setup.LoadConfig(cmd, append(append([]string(nil), setup.StoreFlags...), serveFlags...)...)
	if err != nil {
		return nil, err
	}

	svc = &services{}
	defer func() {
		if err != nil {
			_ = svc.close()
		}
	}()

	svc.logger, err = c.newLogger(cmd, svc)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	configDir := setup.ConfigDir(cmd)

	svc.store, err = setup.OpenStore(ctx, cfg, configDir, svc.logger)
	if err != nil {
		return nil, err
	}

	svc.publisher, err = setup.NewPublisher(cfg, svc.logger)
	if err != nil {
		return nil, err
	}

	gen, err := setup.NewGenerator(cfg, configDir, svc.logger)
	if err != nil {
		return nil, err
	}

	svc.manager, err = setup.NewManager(cfg, svc.store, gen, svc.publisher, svc.logger)
	switch {
	case errors.Is(err, memory.ErrNotConfigured):
		svc.logger.Warn("memory is disabled, POST /v1/turns will answer 503")
		svc.manager, err = nil, nil
	case err != nil:
		return nil, err
	}

	svc.server, err = api.NewServer(api.Config{
		ListenAddr:  cfg.API.Listen,
		PinIdentity: int(cfg.Memory.PinIdentity),
		DisableMCP:  c.noMCP,
	}, svc.store, svc.manager, svc.logger)
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}

	return svc, nil
}

func (c *serveCommander) newLogger(cmd *cobra.Command, svc *services) (*slog.Logger, error) {
	var files []io.Writer
	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		svc.closers = append(svc.closers, f)
		files = append(files, f)
	}

	if !c.jsonLogs {
		return setup.NewLogger(cmd, files...), nil
	}

	return logger.New(
		logger.WithDebug(setup.Debug(cmd)),
		logger.WithJSON(true),
		logger.WithWriters(append([]io.Writer{cmd.ErrOrStderr()}, files...)...),
	), nil
}

// shutdown stops accepting requests, lets the manager drain its queue and
// then releases the publisher and the store.
func (s *services) shutdown(ctx context.Context) error {
	var errs []error

	if s.server != nil {
		if err := s.server.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stopping api server: %w", err))
		}
	}

	if s.manager != nil {
		if err := s.manager.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		s.manager = nil
	}

	errs = append(errs, s.close())
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("shutdown complete")
	return nil
}

func (s *services) close() error {
	var errs []error

	if s.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, s.manager.Close(ctx))
		cancel()
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}
