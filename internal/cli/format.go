package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/valter-silva-au/brain/pkg/models"
)

// Output formats accepted by --format.
const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	idStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	sourceAlias   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	sourceContent = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	sourceGraph   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	sourceBoth    = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
)

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (use %s)", format, strings.Join(allowed, ", "))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func styleForSource(source models.SearchSource) lipgloss.Style {
	switch source {
	case models.SourceAlias:
		return sourceAlias
	case models.SourceContent:
		return sourceContent
	case models.SourceGraph:
		return sourceGraph
	case models.SourceBrainGraph:
		return sourceBoth
	default:
		return lipgloss.NewStyle()
	}
}

func renderQueryText(w io.Writer, res *models.QueryResult) {
	fmt.Fprintln(w, headingStyle.Render("Query: "+res.Query))
	graph := "off"
	if res.GraphExpanded {
		graph = "on"
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d results | %d seeds | graph %s | %.2f ms",
		len(res.Results), res.SeedCount, graph, res.LatencyMS)))
	fmt.Fprintln(w)

	if len(res.Results) == 0 {
		fmt.Fprintln(w, "  No matches.")
	}
	for i, r := range res.Results {
		line := fmt.Sprintf("%2d. %s  %.3f  %s", i+1, idStyle.Render(r.EntityID), r.Score,
			styleForSource(r.Source).Render(string(r.Source)))
		if r.Via != "" {
			line += dimStyle.Render(fmt.Sprintf("  via %s (%s)", r.Via, r.RelationshipType))
		}
		fmt.Fprintln(w, line)
		for _, reason := range r.MatchReasons {
			fmt.Fprintf(w, "      %s\n", reason)
		}
	}
	renderWarnings(w, res.Warnings)
}

func renderQueryMarkdown(w io.Writer, res *models.QueryResult) {
	fmt.Fprintf(w, "## Results for %q\n\n", res.Query)
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "_No matches._")
	} else {
		fmt.Fprintln(w, "| # | Entity | Score | Source | Why |")
		fmt.Fprintln(w, "|---|--------|-------|--------|-----|")
		for i, r := range res.Results {
			fmt.Fprintf(w, "| %d | `%s` | %.3f | %s | %s |\n", i+1, r.EntityID, r.Score, r.Source,
				markdownCell(strings.Join(r.MatchReasons, "; ")))
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "> %s\n", warning)
		}
	}
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func renderContextText(w io.Writer, ctx *models.EntityContext) {
	fmt.Fprintf(w, "%s  %s\n", headingStyle.Render(ctx.EntityID), dimStyle.Render(fmt.Sprintf("(%s) %s", ctx.Kind, ctx.Name)))

	fmt.Fprintln(w, "\nRelationships:")
	if len(ctx.Relationships) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, r := range ctx.Relationships {
		resolved := warnStyle.Render("unresolved")
		if r.ResolvedID != "" {
			resolved = r.ResolvedID
		}
		line := fmt.Sprintf("  %-14s %s -> %s", r.Type, r.Target, resolved)
		if r.Strength != nil {
			line += dimStyle.Render(fmt.Sprintf("  strength %v", r.Strength))
		}
		fmt.Fprintln(w, line)
	}

	if len(ctx.Neighbors) > 0 {
		fmt.Fprintln(w, "\nNeighbors:")
		for _, n := range ctx.Neighbors {
			fmt.Fprintf(w, "  %s  %.3f  %s\n", idStyle.Render(n.EntityID), n.Score, dimStyle.Render(n.RelationshipType))
		}
	}
	renderWarnings(w, ctx.Warnings)
}

func renderWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, warnStyle.Render("Warnings:"))
	for _, warning := range warnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
}

// formatValue renders a metadata value for tables; absent values show as
// a dash.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}
