// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	agismcp "github.com/jllopis/agis/pkg/mcp"
	"github.com/jllopis/agis/pkg/runtime"
)

var mcpOpts struct {
	HTTPAddr string
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the orchestrator as MCP tools",
	Long: `mcp exposes submit_request, answer_human, status, deliverable and reset
as MCP tools over stdio, or over streamable HTTP with --http.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		sys, err := runtime.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer sys.Close(context.WithoutCancel(ctx))

		srv := agismcp.NewServer(runtime.ServiceName, runtime.Version, sys.Controller)
		if mcpOpts.HTTPAddr != "" {
			slog.InfoContext(ctx, "mcp.serve", slog.String("transport", "http"), slog.String("addr", mcpOpts.HTTPAddr))
			return srv.ServeHTTP(mcpOpts.HTTPAddr)
		}
		slog.InfoContext(ctx, "mcp.serve", slog.String("transport", "stdio"))
		return srv.ServeStdio()
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpOpts.HTTPAddr, "http", "", "Listen address for streamable HTTP (default: stdio)")
}
