package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

var (
	eventsJSON bool

	recentDays   int
	recentActors []string
	recentTypes  []string
	recentEntity string
	recentLimit  int

	statsSince string
	statsTop   int

	recordType    string
	recordActor   string
	recordMessage string
	recordSet     []string
	recordUnset   []string
)

// now is the clock used to resolve relative times; tests replace it.
var now = time.Now

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and record entity events",
	Long: `Inspect the append-only event log and record new events.

Every change to an entity is kept as an event carrying the changed fields
with their new and previous values.`,
}

var eventsTimelineCmd = &cobra.Command{
	Use:               "timeline <entity>",
	Short:             "Show one entity's events in chronological order",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventStore == nil {
			return fmt.Errorf("event store not initialized")
		}
		id := resolveEntity(args[0])

		timeline, err := EventStore.GetEntityTimeline(id)
		if err != nil {
			return fmt.Errorf("loading timeline for %s: %w", id, err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			return printJSON(out, timeline)
		}
		fmt.Fprintln(out, headingStyle.Render("Timeline: "+id))
		if len(timeline) == 0 {
			fmt.Fprintln(out, "  No events recorded.")
			return nil
		}
		for _, e := range timeline {
			actor := e.Actor
			if actor == "" {
				actor = observability.UnknownActor
			}
			fmt.Fprintf(out, "  %s  %-18s %-10s %s\n",
				dimStyle.Render(e.Time.Format("2006-01-02 15:04")), e.Type, actor, e.Summary)
		}
		return nil
	},
}

var eventsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent events across all entities",
	Example: `  brain events recent --days 3
  brain events recent --actor alice --type field_update
  brain events recent --entity 'entity/issue/*' --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventStore == nil {
			return fmt.Errorf("event store not initialized")
		}
		if recentDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		since := now().UTC().AddDate(0, 0, -recentDays)
		filter := models.EventFilter{
			Since:         &since,
			Actors:        recentActors,
			EntityPattern: recentEntity,
			Limit:         recentLimit,
		}
		for _, t := range recentTypes {
			filter.Types = append(filter.Types, models.EventType(t))
		}

		events, err := EventStore.QueryEvents(filter)
		if err != nil {
			return fmt.Errorf("querying events: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			if events == nil {
				events = []models.Event{}
			}
			return printJSON(out, events)
		}
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Events in the last %d day(s)", recentDays)))
		if len(events) == 0 {
			fmt.Fprintln(out, "  No events found.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "  %s  %-32s %-18s %s\n",
				dimStyle.Render(e.Timestamp.Format("2006-01-02 15:04")), e.EntityID, e.EventType,
				observability.SummarizeEvent(e))
		}
		fmt.Fprintf(out, "\n  Total: %d event(s)\n", len(events))
		return nil
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event counts by type, actor and entity",
	Long: `Show aggregated counts derived from the event log.

--since accepts a date (2025-01-31), an RFC3339 time, or a relative window
such as 7d or 24h. Without it every event is counted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if StatsCalc == nil {
			return fmt.Errorf("stats calculator not initialized (event log unavailable)")
		}

		var since *time.Time
		if statsSince != "" {
			t, err := core.ParseTimeRef(statsSince, now())
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			since = &t
		}

		stats, err := StatsCalc.Calculate(since)
		if err != nil {
			return fmt.Errorf("calculating stats: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			return printJSON(out, map[string]any{
				"stats":        stats,
				"top_entities": stats.TopEntities(statsTop),
			})
		}
		renderStats(out, stats, since, statsTop)
		return nil
	},
}

func renderStats(w io.Writer, stats *observability.Stats, since *time.Time, top int) {
	window := "all time"
	if since != nil {
		window = "since " + since.Format("2006-01-02")
	}
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Event stats (%s)", window)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-24s %d\n", "Events recorded:", stats.EventCount)

	renderCounts(w, "By type:", stats.ByType)
	renderCounts(w, "By actor:", stats.ByActor)

	if entities := stats.TopEntities(top); len(entities) > 0 {
		fmt.Fprintln(w, "\n  Most active entities:")
		for _, ec := range entities {
			fmt.Fprintf(w, "    %-32s %d\n", ec.EntityID, ec.Count)
		}
	}

	if stats.OldestEvent != nil {
		fmt.Fprintf(w, "\n  %-24s %s\n", "Oldest event:", stats.OldestEvent.Format(time.RFC3339))
	}
	if stats.NewestEvent != nil {
		fmt.Fprintf(w, "  %-24s %s\n", "Newest event:", stats.NewestEvent.Format(time.RFC3339))
	}
}

// renderCounts prints a count map largest first, ties by key.
func renderCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\n  %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-20s %d\n", k+":", counts[k])
	}
}

var eventsRecordCmd = &cobra.Command{
	Use:   "record <entity>",
	Short: "Record an event and apply its changes to the entity",
	Long: `Record an event against an entity. Field changes given with --set and
--unset are applied to the entity's record, and the event keeps each
field's previous value so earlier states can be reconstructed.

Values are parsed as YAML scalars or lists: --set points=3 stores a number,
--set tags=[a,b] stores a list, --set status=done stores a string.

Recording a "created" event for an id with no record creates the record.`,
	Example: `  brain events record entity/issue/bug-7 --set status=doing
  brain events record "Growth Project" --type decision --message "Ship in Q3"
  brain events record entity/person/priya --type created --set name="Priya Shah"`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEntityIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Recorder == nil {
			return fmt.Errorf("event recorder not initialized (event log unavailable)")
		}

		set, err := parseAssignments(recordSet)
		if err != nil {
			return err
		}

		event, err := Recorder.Record(core.RecordRequest{
			EntityID: resolveEntity(args[0]),
			Type:     models.EventType(recordType),
			Actor:    recordActor,
			Message:  recordMessage,
			Set:      set,
			Unset:    recordUnset,
		})
		if err != nil {
			return fmt.Errorf("recording event: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			return printJSON(out, event)
		}
		fmt.Fprintf(out, "Recorded %s on %s (%s)\n", event.EventType, event.EntityID, event.EventID)
		if summary := observability.SummarizeEvent(event); summary != string(event.EventType) {
			fmt.Fprintf(out, "  %s\n", summary)
		}
		return nil
	},
}

// parseAssignments turns field=value flags into typed values.
func parseAssignments(assignments []string) (map[string]any, error) {
	set := make(map[string]any, len(assignments))
	for _, a := range assignments {
		field, raw, ok := strings.Cut(a, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q, expected field=value", a)
		}
		set[field] = parseValue(raw)
	}
	return set, nil
}

// parseValue decodes raw as a YAML scalar or flow list, falling back to the
// literal string.
func parseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, nil:
		return raw
	}
	return v
}

// resolveEntity maps a name or alias to its canonical id. Unknown
// references are returned unchanged.
func resolveEntity(ref string) string {
	if Resolver == nil {
		return ref
	}
	if id, ok := Resolver.Resolve(ref); ok {
		return id
	}
	return ref
}

func init() {
	eventsCmd.PersistentFlags().BoolVar(&eventsJSON, "json", false, "Output as JSON")

	eventsRecentCmd.Flags().IntVar(&recentDays, "days", 7, "Number of days to look back")
	eventsRecentCmd.Flags().StringSliceVar(&recentActors, "actor", nil, "Only events by these actors")
	eventsRecentCmd.Flags().StringSliceVar(&recentTypes, "type", nil, "Only events of these types")
	eventsRecentCmd.Flags().StringVar(&recentEntity, "entity", "", "Entity id prefix or glob")
	eventsRecentCmd.Flags().IntVar(&recentLimit, "limit", 50, "Show at most this many of the most recent events (0 for all)")
	_ = eventsRecentCmd.RegisterFlagCompletionFunc("type", completeEventTypes)

	eventsStatsCmd.Flags().StringVar(&statsSince, "since", "", "Count events since a date or window (e.g. 2025-01-01, 7d, 24h)")
	eventsStatsCmd.Flags().IntVar(&statsTop, "top", 5, "Number of most active entities to show")

	eventsRecordCmd.Flags().StringVarP(&recordType, "type", "t", string(models.EventFieldUpdate), "Event type")
	eventsRecordCmd.Flags().StringVar(&recordActor, "actor", "", "Who made the change (defaults to the configured actor)")
	eventsRecordCmd.Flags().StringVarP(&recordMessage, "message", "m", "", "Free-text description")
	eventsRecordCmd.Flags().StringArrayVar(&recordSet, "set", nil, "Set a field: field=value (repeatable)")
	eventsRecordCmd.Flags().StringArrayVar(&recordUnset, "unset", nil, "Remove a field (repeatable)")
	_ = eventsRecordCmd.RegisterFlagCompletionFunc("type", completeEventTypes)

	eventsCmd.AddCommand(eventsTimelineCmd, eventsRecentCmd, eventsStatsCmd, eventsRecordCmd)
	rootCmd.AddCommand(eventsCmd)
}
