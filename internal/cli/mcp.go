package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	brainmcp "github.com/valter-silva-au/brain/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the brain MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the brain MCP server on stdio",
	Long: `Start the brain MCP server on stdio transport.

The server exposes the knowledge base as MCP tools that AI assistants can
call: query, entity_context, entity_timeline, entity_at, compare_states,
field_history and event_stats.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueryEngine == nil {
			return fmt.Errorf("query engine not initialized")
		}

		srv := brainmcp.NewServer(mcpServices(), appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func mcpServices() brainmcp.Services {
	return brainmcp.Services{
		Query:    QueryEngine,
		Temporal: Temporal,
		Resolver: Resolver,
		Events:   EventStore,
		Stats:    StatsCalc,
		Defaults: queryDefaults(),
	}
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
