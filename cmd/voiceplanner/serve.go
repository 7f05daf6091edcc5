package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/jira"
	"github.com/ajz007/ai-voice-planner/internal/mcpserver"
	"github.com/ajz007/ai-voice-planner/internal/server"
)

func serveCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, JIRA proxy and OAuth callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = e.cfg.Server.Address
			}
			opts := []server.Option{
				server.WithLogger(e.logger),
				server.WithMetrics(e.metrics),
				server.WithAllowedOrigins(e.cfg.Server.AllowedOrigins...),
			}

			upstream, err := jira.NewUpstream(e.cfg.Jira.Config, jira.WithMetrics(e.metrics))
			switch {
			case err == nil:
				opts = append(opts, server.WithIssues(upstream))
			case errors.Is(err, jira.ErrNotConfigured):
				e.logger.Warn("JIRA proxy disabled, site credentials missing")
			default:
				return err
			}

			e.logger.Info("Service starting",
				slog.String("version", Version),
				slog.String("address", addr),
				slog.String("store", e.cfg.Store.Path),
			)
			return server.New(e.store, opts...).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func mcpCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve notes and tasks to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stdout carries the protocol.
			logging := e.cfg.Logging
			if logging.Output == "stdout" {
				logging.Output = "stderr"
			}
			logger := initLogger(logging)
			slog.SetDefault(logger)

			logger.Info("MCP server starting", slog.String("version", Version))
			return mcpserver.Serve(mcpserver.New(e.store, Version, logger))
		},
	}
}
