package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/lokal/api/mcp"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/memory"
	"github.com/papercomputeco/lokal/pkg/retriever"
)

// Server is the API server for querying and managing lokal's memory.
type Server struct {
	config    Config
	store     facts.Store
	manager   *memory.Manager
	retriever *retriever.Retriever
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server. The store is shared with the memory
// manager; manager may be nil when background extraction is disabled, in
// which case /v1/turns answers 503.
func NewServer(config Config, store facts.Store, manager *memory.Manager, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("fact store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	r, err := retriever.New(retriever.Config{
		Store:       store,
		PinIdentity: config.PinIdentity,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:     store,
		Retriever: r,
		Noop:      config.DisableMCP,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		store:     store,
		manager:   manager,
		retriever: r,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/facts", s.handleListFacts)
	v1.Get("/facts/search", s.handleSearchFacts)
	v1.Get("/facts/count", s.handleCountFacts)
	v1.Get("/facts/:id", s.handleGetFact)
	v1.Post("/facts", s.handleAddFact)
	v1.Delete("/facts", s.handleEraseFacts)
	v1.Delete("/facts/:ref", s.handleForgetFact)
	v1.Post("/turns", s.handleRecordTurn)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
