package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

// Dashboard panel indices.
const (
	panelEntities = iota
	panelActivity
	panelRecent
	panelCount
)

// dashboardWindow is how far back the activity panel counts.
const dashboardWindow = 7 * 24 * time.Hour

// dashboardRecent is how many events the recent changes panel shows.
const dashboardRecent = 10

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	kindCounts map[string]int
	activity   *activitySnapshot
	recent     []recentChange

	// State.
	loading bool
	err     error
}

type activitySnapshot struct {
	eventCount int
	byType     map[string]int
	byActor    map[string]int
}

type recentChange struct {
	time     string
	entityID string
	summary  string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	kindCounts map[string]int
	activity   *activitySnapshot
	recent     []recentChange
	err        error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	kindPerson   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	kindProject  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	kindIssue    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	kindMeeting  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	kindDecision = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	kindDocument = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelEntities,
		loading:     true,
		kindCounts:  make(map[string]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.kindCounts = msg.kindCounts
		m.activity = msg.activity
		m.recent = msg.recent
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Brain Dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	entitiesPanel := m.renderEntitiesPanel()
	activityPanel := m.renderActivityPanel()
	recentPanel := m.renderRecentPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		entitiesPanel = m.applyPanelStyle(panelEntities, entitiesPanel, colWidth-4)
		activityPanel = m.applyPanelStyle(panelActivity, activityPanel, colWidth-4)
		recentPanel = m.applyPanelStyle(panelRecent, recentPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, entitiesPanel, activityPanel, recentPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		entitiesPanel = m.applyPanelStyle(panelEntities, entitiesPanel, panelWidth)
		activityPanel = m.applyPanelStyle(panelActivity, activityPanel, panelWidth)
		recentPanel = m.applyPanelStyle(panelRecent, recentPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, entitiesPanel, activityPanel, recentPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderEntitiesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Entities"))
	b.WriteString("\n")

	if len(m.kindCounts) == 0 {
		b.WriteString("  No entities found.")
		return b.String()
	}

	order := []models.EntityKind{
		models.KindPerson, models.KindProject, models.KindIssue,
		models.KindMeeting, models.KindDecision, models.KindDocument,
	}
	total := 0
	for _, kind := range order {
		count := m.kindCounts[string(kind)]
		if count == 0 {
			continue
		}
		b.WriteString(styleForKind(kind).Render(fmt.Sprintf("  %-14s %d", kind, count)))
		b.WriteString("\n")
	}
	for _, c := range m.kindCounts {
		total += c
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d", total))

	return b.String()
}

func (m dashboardModel) renderActivityPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Activity (7d)"))
	b.WriteString("\n")

	if m.activity == nil {
		b.WriteString("  Event log not available.")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  %-14s %d\n", "Events", m.activity.eventCount))
	renderCounts(&b, "By type:", m.activity.byType)
	renderCounts(&b, "By actor:", m.activity.byActor)

	return b.String()
}

func (m dashboardModel) renderRecentPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent changes"))
	b.WriteString("\n")

	if len(m.recent) == 0 {
		b.WriteString("  No recent changes.")
		return b.String()
	}

	for _, c := range m.recent {
		b.WriteString(fmt.Sprintf("  %s %s\n    %s\n", helpStyle.Render(c.time), c.entityID, c.summary))
	}

	return b.String()
}

func styleForKind(kind models.EntityKind) lipgloss.Style {
	switch kind {
	case models.KindPerson:
		return kindPerson
	case models.KindProject:
		return kindProject
	case models.KindIssue:
		return kindIssue
	case models.KindMeeting:
		return kindMeeting
	case models.KindDecision:
		return kindDecision
	case models.KindDocument:
		return kindDocument
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	result := dataLoadedMsg{
		kindCounts: make(map[string]int),
	}

	if Entities != nil {
		entities, err := Entities.List()
		if err != nil {
			result.err = fmt.Errorf("loading entities: %w", err)
			return result
		}
		for _, e := range entities {
			result.kindCounts[string(e.Kind)]++
		}
	}

	if StatsCalc != nil {
		since := now().UTC().Add(-dashboardWindow)
		stats, err := StatsCalc.Calculate(&since)
		if err != nil {
			result.err = fmt.Errorf("loading stats: %w", err)
			return result
		}
		result.activity = &activitySnapshot{
			eventCount: stats.EventCount,
			byType:     stats.ByType,
			byActor:    stats.ByActor,
		}
	}

	if EventStore != nil {
		events, err := EventStore.QueryEvents(models.EventFilter{Limit: dashboardRecent})
		if err != nil {
			result.err = fmt.Errorf("loading recent events: %w", err)
			return result
		}
		// Newest first.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			result.recent = append(result.recent, recentChange{
				time:     e.Timestamp.Format("2006-01-02 15:04"),
				entityID: e.EntityID,
				summary:  observability.SummarizeEvent(e),
			})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for entities and recent activity",
	Long: `Launch an interactive terminal dashboard showing entity counts by kind,
event activity over the last week, and the most recent changes.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Entities == nil {
			return fmt.Errorf("entity store not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
