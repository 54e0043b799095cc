package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the knowledge base over an HTTP JSON API",
	Long: `Start an HTTP server exposing queries, entity context, timelines,
point-in-time snapshots, events and statistics as JSON under /api.

The listen address defaults to server_addr from .brainconfig.`,
	Example: `  brain serve
  brain serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueryEngine == nil {
			return fmt.Errorf("query engine not initialized")
		}

		addr := serveAddr
		if addr == "" && Config != nil {
			addr = Config.ServerAddr
		}
		if addr == "" {
			return fmt.Errorf("no listen address: set --addr or server_addr in .brainconfig")
		}

		srv := server.New(server.Deps{
			Query:    QueryEngine,
			Temporal: Temporal,
			Resolver: Resolver,
			Events:   EventStore,
			Stats:    StatsCalc,
			Defaults: queryDefaults(),
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s/api\n", addr)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			return fmt.Errorf("running HTTP server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (host:port)")
	rootCmd.AddCommand(serveCmd)
}
