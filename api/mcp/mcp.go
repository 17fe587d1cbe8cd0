// Package mcp provides an MCP (Model Context Protocol) server exposing the
// presence publish queue to assistants.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/utils"
)

// Recaller finds published work related to a query.
type Recaller interface {
	Recall(ctx context.Context, query string, exclude ...string) ([]string, error)
}

type Config struct {
	// Store holds the drafts the tools read.
	Store storage.DraftStore

	// Recall enables the related_posts tool when set.
	Recall Recaller

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the draft tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "presence",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Store == nil {
			return nil, errors.New("storage driver is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        pendingDraftsToolName,
			Description: pendingDraftsDescription,
		}, s.handlePendingDrafts)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getDraftToolName,
			Description: getDraftDescription,
		}, s.handleGetDraft)

		if c.Recall != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        relatedPostsToolName,
				Description: relatedPostsDescription,
			}, s.handleRelatedPosts)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
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
