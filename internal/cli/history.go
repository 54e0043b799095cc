package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/pkg/models"
)

var (
	historyJSON bool

	atTime string

	diffFrom string
	diffTo   string

	fieldSince string

	asofAt     string
	asofKind   string
	asofStatus string

	changesFrom string
	changesTo   string
	changesKind string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View entities as they were at earlier times",
	Long: `Reconstruct past states of entities from the event log.

Times accept a date (2025-01-31, read as midnight UTC), an RFC3339 time,
"now", or a relative window such as 3d, 2w or 36h counted back from now.`,
}

var historyAtCmd = &cobra.Command{
	Use:               "at <entity>",
	Short:             "Show an entity as it was at a point in time",
	Example:           `  brain history at "Growth Project" --at 2025-03-01`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Temporal == nil {
			return fmt.Errorf("temporal queries not initialized")
		}
		at, err := parseTimeFlag("at", atTime)
		if err != nil {
			return err
		}
		id := resolveEntity(args[0])

		snap, err := Temporal.GetEntityAt(id, at)
		if err != nil {
			return fmt.Errorf("reconstructing %s: %w", id, err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			return printJSON(out, map[string]any{"entity_id": id, "at": at, "snapshot": snap})
		}
		if snap == nil {
			fmt.Fprintf(out, "%s did not exist at %s\n", id, at.Format(time.RFC3339))
			return nil
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s at %s", id, at.Format(time.RFC3339))))
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("version %d", snap.Version)))
		fmt.Fprintln(out)
		renderMetadata(out, snap.Metadata)
		if len(snap.ChangedFields) > 0 {
			fmt.Fprintf(out, "\nChanged since creation: %v\n", snap.ChangedFields)
		}
		return nil
	},
}

var historyDiffCmd = &cobra.Command{
	Use:               "diff <entity>",
	Short:             "Compare an entity's fields between two times",
	Example:           `  brain history diff bug-7 --from 2w --to now`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Temporal == nil {
			return fmt.Errorf("temporal queries not initialized")
		}
		from, err := parseTimeFlag("from", diffFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", diffTo)
		if err != nil {
			return err
		}
		id := resolveEntity(args[0])

		diffs, err := Temporal.CompareStates(id, from, to)
		if err != nil {
			return fmt.Errorf("comparing %s: %w", id, err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			if diffs == nil {
				diffs = []models.FieldDiff{}
			}
			return printJSON(out, diffs)
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s: %s -> %s", id,
			from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04"))))
		if len(diffs) == 0 {
			fmt.Fprintln(out, "  No differences.")
			return nil
		}
		for _, d := range diffs {
			fmt.Fprintf(out, "  %-20s %s -> %s\n", d.Field, formatValue(d.OldValue), formatValue(d.NewValue))
		}
		return nil
	},
}

var historyFieldCmd = &cobra.Command{
	Use:               "field <entity> <field>",
	Short:             "List every recorded change to one field",
	Example:           `  brain history field "Growth Project" status --since 30d`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Temporal == nil {
			return fmt.Errorf("temporal queries not initialized")
		}
		since, err := optionalTimeFlag("since", fieldSince)
		if err != nil {
			return err
		}
		id := resolveEntity(args[0])
		field := args[1]

		history, err := Temporal.GetFieldHistory(id, field, since)
		if err != nil {
			return fmt.Errorf("loading %s history for %s: %w", field, id, err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			if history == nil {
				history = []models.FieldHistoryEntry{}
			}
			return printJSON(out, history)
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s.%s", id, field)))
		if len(history) == 0 {
			fmt.Fprintln(out, "  No recorded changes.")
			return nil
		}
		for _, h := range history {
			actor := h.Actor
			if actor == "" {
				actor = "unknown"
			}
			fmt.Fprintf(out, "  %s  %-8s %-10s %s -> %s\n",
				dimStyle.Render(h.Timestamp.Format("2006-01-02 15:04")), h.Operation, actor,
				formatValue(h.OldValue), formatValue(h.NewValue))
		}
		return nil
	},
}

var historyAsOfCmd = &cobra.Command{
	Use:   "asof",
	Short: "List every entity as it was at a point in time",
	Example: `  brain history asof --at 2025-01-01 --kind project
  brain history asof --at 30d --status active`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Temporal == nil {
			return fmt.Errorf("temporal queries not initialized")
		}
		at, err := parseTimeFlag("at", asofAt)
		if err != nil {
			return err
		}

		snaps, err := Temporal.QueryEntitiesAt(at, models.EntityKind(asofKind), asofStatus)
		if err != nil {
			return fmt.Errorf("querying entities at %s: %w", at.Format(time.RFC3339), err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			if snaps == nil {
				snaps = []models.EntitySnapshot{}
			}
			return printJSON(out, snaps)
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Entities at %s", at.Format(time.RFC3339))))
		if len(snaps) == 0 {
			fmt.Fprintln(out, "  None.")
			return nil
		}
		for _, s := range snaps {
			fmt.Fprintf(out, "  %-36s %-12s v%d\n", s.EntityID, formatValue(s.Metadata["status"]), s.Version)
		}
		fmt.Fprintf(out, "\n  Total: %d\n", len(snaps))
		return nil
	},
}

var historyChangesCmd = &cobra.Command{
	Use:     "changes",
	Short:   "Summarize activity over a period",
	Example: `  brain history changes --from 7d --kind issue`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Temporal == nil {
			return fmt.Errorf("temporal queries not initialized")
		}
		from, err := parseTimeFlag("from", changesFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", changesTo)
		if err != nil {
			return err
		}

		changes, err := Temporal.GetChangesInPeriod(from, to, models.EntityKind(changesKind))
		if err != nil {
			return fmt.Errorf("summarizing changes: %w", err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			return printJSON(out, changes)
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Changes %s -> %s",
			changes.Since.Format("2006-01-02 15:04"), changes.Until.Format("2006-01-02 15:04"))))
		fmt.Fprintf(out, "\n  %-24s %d\n", "Events:", changes.Total)
		renderCounts(out, "By type:", changes.ByType)
		renderCounts(out, "By actor:", changes.ByActor)
		renderCounts(out, "By entity:", changes.ByEntity)
		return nil
	},
}

// renderMetadata prints metadata fields sorted by key, skipping
// bookkeeping keys.
func renderMetadata(w io.Writer, meta map[string]any) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if models.IsReservedKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %s\n", k+":", formatValue(meta[k]))
	}
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--%s is required", name)
	}
	t, err := core.ParseTimeRef(value, now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return t, nil
}

func optionalTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseTimeFlag(name, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Output as JSON")

	historyAtCmd.Flags().StringVar(&atTime, "at", "now", "Point in time")

	historyDiffCmd.Flags().StringVar(&diffFrom, "from", "", "Earlier time (required)")
	historyDiffCmd.Flags().StringVar(&diffTo, "to", "now", "Later time")

	historyFieldCmd.Flags().StringVar(&fieldSince, "since", "", "Only changes at or after this time")

	historyAsOfCmd.Flags().StringVar(&asofAt, "at", "", "Point in time (required)")
	historyAsOfCmd.Flags().StringVar(&asofKind, "kind", "", "Only entities of this kind")
	historyAsOfCmd.Flags().StringVar(&asofStatus, "status", "", "Only entities with this status at that time")

	historyChangesCmd.Flags().StringVar(&changesFrom, "from", "7d", "Start of the period")
	historyChangesCmd.Flags().StringVar(&changesTo, "to", "now", "End of the period")
	historyChangesCmd.Flags().StringVar(&changesKind, "kind", "", "Only entities of this kind")

	historyCmd.AddCommand(historyAtCmd, historyDiffCmd, historyFieldCmd, historyAsOfCmd, historyChangesCmd)
	rootCmd.AddCommand(historyCmd)
}
