// Package servecmder provides the serve command, which runs the read API
// and MCP endpoint over the event store.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/presence/api"
	"github.com/papercomputeco/presence/api/mcp"
	"github.com/papercomputeco/presence/cmd/presence/bootstrap"
	"github.com/papercomputeco/presence/pkg/config"
)

type serveCommander struct {
	configDir string
	debug     bool

	listen      string
	store       bootstrap.StoreFlagValues
	vectorProv  string
	vectorTgt   string
	embedProv   string
	embedTgt    string
	embedModel  string
	embedDims   uint
	noKnowledge bool

	logger *slog.Logger
}

var serveFlags = append([]string{
	config.FlagAPIListen,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}, bootstrap.StoreFlags...)

const serveLongDesc string = `Serve drafts and templates over HTTP.

Runs a read-only API over the event store:
  GET  /ping                 Health check
  GET  /drafts               Drafts, filtered by ?state=, ?type=, ?limit=
  GET  /drafts/:id           One draft with its score and rationale
  GET  /templates/:kind      Template versions with their running scores
  POST /mcp                  MCP tools for assistants (pending_drafts,
                             get_draft, and related_posts when knowledge
                             recall is enabled)

Examples:
  presence serve
  presence serve --listen :9000 --sqlite ./presence.db`

const serveShortDesc string = "Serve the presence API"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfg, err := bootstrap.LoadConfig(cmd, serveFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return cmder.run(cmd.Context(), cfg)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorTgt)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embedTgt)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embedDims)
	bootstrap.AddStoreFlags(cmd, &cmder.store)
	cmd.Flags().BoolVar(&cmder.noKnowledge, "no-knowledge", false, "Do not serve related_posts even when knowledge recall is enabled")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	log, closer, err := bootstrap.NewLogger(c.debug, "")
	if err != nil {
		return err
	}
	defer closer.Close()
	c.logger = log

	store, err := bootstrap.OpenStore(ctx, cfg, c.configDir, log)
	if err != nil {
		return err
	}
	defer store.Close()

	mcpConfig := mcp.Config{Store: store, Logger: log}
	if cfg.Knowledge.Enabled && !c.noKnowledge {
		kb, err := bootstrap.OpenKnowledge(cfg, c.configDir, log)
		if err != nil {
			return fmt.Errorf("opening knowledge base: %w", err)
		}
		defer kb.Close()
		mcpConfig.Recall = kb
	}

	mcpServer, err := mcp.NewServer(mcpConfig)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr:  cfg.API.Listen,
		MaxDrafts:   int(cfg.API.MaxDrafts),
		ReadTimeout: 30 * time.Second,
	}, store, log, api.WithMCP(mcpServer.Handler()))

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context done, shutting down")
	}

	return server.Shutdown()
}
