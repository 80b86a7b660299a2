package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/migration"
	"github.com/rendis/flowgraph/pkg/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the flowgraph tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			v, err := newValidator()
			if err != nil {
				return err
			}

			srv, err := mcp.NewFlowgraphServer(mcp.ServerDeps{
				Store:     s,
				Validator: v,
				Chain:     migration.DefaultChain(),
				Runner:    a.runnerConfig(),
				Version:   version,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}

			a.logger.Info("mcp server listening on stdio", "version", version, "db_path", a.cfg.DBPath)
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("mcp server stopped")
			return nil
		},
	}
}
