// Package mcp exposes lokal's long-term memory to MCP clients.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/retriever"
	"github.com/papercomputeco/lokal/pkg/utils"
)

type Config struct {
	// Store backs memory_count and the default retriever.
	Store facts.Store

	// Retriever answers memory_recall. Defaults to a retriever over Store
	// without identity pinning.
	Retriever *retriever.Retriever

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "lokal",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	s := &Server{mcpServer: mcpServer}

	if !c.Noop {
		if c.Store == nil {
			return nil, errors.New("fact store is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}
		if c.Retriever == nil {
			r, err := retriever.New(retriever.Config{Store: c.Store, Logger: c.Logger})
			if err != nil {
				return nil, err
			}
			c.Retriever = r
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryRecallToolName,
			Description: memoryRecallDescription,
		}, s.handleMemoryRecall)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryCountToolName,
			Description: memoryCountDescription,
		}, s.handleMemoryCount)
	}

	s.config = c

	// Stateless: every request carries its own session.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
