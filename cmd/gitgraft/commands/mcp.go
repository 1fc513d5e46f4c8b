package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/pkg/mcp"
	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes read-only tools over recovery records:
  - import_status: stage and progress of an import
  - import_validate: schema and invariant check of a record`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.Load()
			if err != nil {
				return err
			}

			cfg.Logging.JSON = true

			providers, err := initObservability(cfg, observability.ModeMCP, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			red, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{Logger: providers.Logger, Metrics: red, Tracer: providers.Tracer})

			return srv.Run(cmd.Context())
		},
	}
}
