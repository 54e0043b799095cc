package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/core"
)

var (
	queryLimit   int
	queryNoGraph bool
	queryDecay   float64
	queryDepth   int
	queryFormat  string
)

var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Search the knowledge base",
	Long: `Search the knowledge base for entities matching free text.

Keyword matches on names, aliases, metadata and body text become seeds. The
top seeds are expanded along their relationships: each hop multiplies the
score by --decay unless the relationship carries its own strength. Both
lists are merged into one ranked result with the reasons for every match.

Flags left unset fall back to the query section of .brainconfig.`,
	Example: `  brain query what is Jane working on
  brain query growth --depth 2 --decay 0.7
  brain query "Q3 launch" --no-graph --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueryEngine == nil {
			return fmt.Errorf("query engine not initialized")
		}
		if err := checkFormat(queryFormat, formatText, formatJSON, formatMarkdown); err != nil {
			return err
		}

		text := strings.Join(args, " ")
		result, err := QueryEngine.Query(text, queryOptions(cmd))
		if err != nil {
			return fmt.Errorf("running query: %w", err)
		}

		out := cmd.OutOrStdout()
		switch queryFormat {
		case formatJSON:
			return printJSON(out, result)
		case formatMarkdown:
			renderQueryMarkdown(out, result)
		default:
			renderQueryText(out, result)
		}
		return nil
	},
}

// queryOptions starts from the configured defaults and applies the flags
// the user set explicitly.
func queryOptions(cmd *cobra.Command) core.QueryOptions {
	opts := queryDefaults()
	flags := cmd.Flags()
	if flags.Changed("limit") {
		opts.Limit = queryLimit
	}
	if flags.Changed("decay") {
		opts.Decay = queryDecay
	}
	if flags.Changed("depth") {
		opts.Depth = queryDepth
	}
	if queryNoGraph {
		opts.Graph = false
	}
	return opts
}

// queryDefaults returns the query section of the loaded config, or the
// built-in defaults when no config is loaded.
func queryDefaults() core.QueryOptions {
	if Config == nil {
		return core.DefaultQueryOptions()
	}
	return core.QueryOptions{
		Limit: Config.Query.Limit,
		Graph: Config.Query.Graph,
		Decay: Config.Query.Decay,
		Depth: Config.Query.Depth,
	}
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", core.DefaultLimit, "Maximum number of results")
	queryCmd.Flags().BoolVar(&queryNoGraph, "no-graph", false, "Disable relationship expansion")
	queryCmd.Flags().Float64Var(&queryDecay, "decay", core.DefaultDecay, "Per-hop score multiplier in (0,1]")
	queryCmd.Flags().IntVar(&queryDepth, "depth", core.DefaultDepth, "Relationship hops to follow (>= 1)")
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", formatText, "Output format: text, json or markdown")
	_ = queryCmd.RegisterFlagCompletionFunc("format", completeFormats)
	rootCmd.AddCommand(queryCmd)
}
