package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/core"
)

var (
	contextNeighbors bool
	contextFormat    string
)

var contextCmd = &cobra.Command{
	Use:   "context <entity>",
	Short: "Show an entity's relationships and neighbors",
	Long: `Show one entity's relationships with each target resolved to its
canonical id. Targets that cannot be resolved are listed as warnings.

The entity may be given by id, name or alias.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueryEngine == nil {
			return fmt.Errorf("query engine not initialized")
		}
		if err := checkFormat(contextFormat, formatText, formatJSON); err != nil {
			return err
		}

		ctx, err := QueryEngine.Context(args[0], contextNeighbors)
		if err != nil {
			if errors.Is(err, core.ErrEntityNotFound) {
				return fmt.Errorf("no entity matches %q", args[0])
			}
			return fmt.Errorf("loading context: %w", err)
		}

		if contextFormat == formatJSON {
			return printJSON(cmd.OutOrStdout(), ctx)
		}
		renderContextText(cmd.OutOrStdout(), ctx)
		return nil
	},
}

func init() {
	contextCmd.Flags().BoolVar(&contextNeighbors, "neighbors", false, "Include one-hop neighbors")
	contextCmd.Flags().StringVarP(&contextFormat, "format", "f", formatText, "Output format: text or json")
	rootCmd.AddCommand(contextCmd)
}
