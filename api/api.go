package api

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/storage"
	"github.com/papercomputeco/presence/pkg/utils"
)

// Server is the API server for inspecting drafts and templates.
type Server struct {
	config Config
	store  storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// Option configures a Server.
type Option func(*Server)

// WithMCP mounts an MCP handler at POST /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.app.Post("/mcp", adaptor.HTTPHandler(h))
		}
	}
}

// NewServer creates a new API server over store.
func NewServer(config Config, store storage.Driver, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "presence " + utils.Version,
		DisableStartupMessage: true,
		ReadTimeout:           config.ReadTimeout,
	})

	s := &Server{
		config: config,
		store:  store,
		logger: log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/drafts", s.handleListDrafts)
	app.Get("/drafts/:id", s.handleGetDraft)
	app.Get("/templates/:kind", s.handleListTemplates)
	app.Get("/commits/:sha/trace", s.handleCommitTrace)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr, "max_drafts", s.config.maxDrafts())
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
