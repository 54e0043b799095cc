package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

func TestDashboardModel_Init(t *testing.T) {
	m := newDashboardModel()

	if m.activePanel != panelEntities {
		t.Errorf("expected activePanel = %d, got %d", panelEntities, m.activePanel)
	}
	if !m.loading {
		t.Error("expected loading = true on init")
	}
	if m.kindCounts == nil {
		t.Error("expected kindCounts to be initialized")
	}
	if m.Init() == nil {
		t.Error("expected Init to return a non-nil command")
	}
}

func TestDashboardModel_KeyQ(t *testing.T) {
	m := newDashboardModel()
	m.loading = false

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected tea.Quit command from q key")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestDashboardModel_KeyTab(t *testing.T) {
	m := newDashboardModel()

	want := []int{panelActivity, panelRecent, panelEntities}
	var model tea.Model = m
	for i, panel := range want {
		var cmd tea.Cmd
		model, cmd = model.Update(tea.KeyMsg{Type: tea.KeyTab})
		if cmd != nil {
			t.Error("expected no command from tab key")
		}
		if got := model.(dashboardModel).activePanel; got != panel {
			t.Errorf("after tab %d: panel = %d, want %d", i+1, got, panel)
		}
	}
}

func TestDashboardModel_KeyShiftTab(t *testing.T) {
	m := newDashboardModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if got := updated.(dashboardModel).activePanel; got != panelRecent {
		t.Errorf("expected panel %d after shift+tab from 0, got %d", panelRecent, got)
	}
}

func TestDashboardModel_KeyR(t *testing.T) {
	m := newDashboardModel()
	m.loading = false

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if !updated.(dashboardModel).loading {
		t.Error("expected loading = true after pressing r")
	}
	if cmd == nil {
		t.Error("expected a command (loadData) from r key")
	}
}

func TestDashboardModel_DataLoaded(t *testing.T) {
	m := newDashboardModel()

	updated, _ := m.Update(dataLoadedMsg{
		kindCounts: map[string]int{"person": 2, "project": 1},
		activity:   &activitySnapshot{eventCount: 4, byType: map[string]int{"note": 4}},
		recent:     []recentChange{{entityID: "entity/person/jane-doe", summary: "status = active"}},
	})
	dm := updated.(dashboardModel)
	if dm.loading || dm.err != nil {
		t.Fatalf("loading = %v, err = %v", dm.loading, dm.err)
	}
	if dm.kindCounts["person"] != 2 || dm.activity.eventCount != 4 || len(dm.recent) != 1 {
		t.Errorf("unexpected model data: %+v", dm)
	}
}

func TestDashboardModel_DataLoadedError(t *testing.T) {
	m := newDashboardModel()

	updated, _ := m.Update(dataLoadedMsg{err: errors.New("connection failed")})
	dm := updated.(dashboardModel)
	if dm.loading {
		t.Error("expected loading = false after error")
	}
	if dm.err == nil || dm.err.Error() != "connection failed" {
		t.Errorf("unexpected err: %v", dm.err)
	}

	dm.width = 100
	if !strings.Contains(dm.View(), "Error: connection failed") {
		t.Error("expected error in view")
	}
}

func TestDashboardModel_Views(t *testing.T) {
	m := newDashboardModel()
	m.height = 40
	m.loading = false
	m.kindCounts = map[string]int{"person": 2, "issue": 3}
	m.activity = &activitySnapshot{
		eventCount: 5,
		byType:     map[string]int{"field_update": 4, "created": 1},
		byActor:    map[string]int{"alice": 5},
	}
	m.recent = []recentChange{{time: "2025-03-01 09:00", entityID: "entity/issue/bug-7", summary: "status: todo -> doing"}}

	for _, width := range []int{160, 80} {
		m.width = width
		view := m.View()
		for _, want := range []string{"Brain Dashboard", "Entities", "Activity (7d)", "Recent changes", "issue", "Total: 5", "alice:", "bug-7"} {
			if !strings.Contains(view, want) {
				t.Errorf("width %d: view missing %q", width, want)
			}
		}
	}
}

func TestDashboardModel_ViewWithoutEventLog(t *testing.T) {
	m := newDashboardModel()
	m.width = 80
	m.loading = false

	view := m.View()
	for _, want := range []string{"No entities found.", "Event log not available.", "No recent changes."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDashboardLoadData(t *testing.T) {
	resetServices(t)
	Entities = &fakeEntities{entities: []models.Entity{
		{ID: "entity/person/jane-doe", Kind: models.KindPerson},
		{ID: "entity/person/sam", Kind: models.KindPerson},
		{ID: "entity/project/growth", Kind: models.KindProject},
	}}

	events := seededEvents()
	// Outside the 7 day activity window but still a recent change.
	events = append([]models.Event{{
		Timestamp: day0.Add(-10 * 24 * time.Hour), EntityID: "entity/person/sam", EventType: models.EventCreated,
	}}, events...)
	store := newTestEventStore(t, events...)
	EventStore = store
	StatsCalc = observability.NewStatsCalculator(store)

	msg := loadData()
	data, ok := msg.(dataLoadedMsg)
	if !ok {
		t.Fatalf("expected dataLoadedMsg, got %T", msg)
	}
	if data.err != nil {
		t.Fatalf("unexpected error: %v", data.err)
	}
	if data.kindCounts["person"] != 2 || data.kindCounts["project"] != 1 {
		t.Errorf("kind counts = %v", data.kindCounts)
	}
	if data.activity == nil || data.activity.eventCount != 3 {
		t.Errorf("activity = %+v, want 3 events in window", data.activity)
	}
	if len(data.recent) != 4 {
		t.Fatalf("expected 4 recent changes, got %d", len(data.recent))
	}
	if data.recent[0].entityID != "entity/person/jane-doe" || data.recent[0].summary != "prefers async updates" {
		t.Errorf("expected newest first, got %+v", data.recent[0])
	}
}

func TestDashboardLoadData_EntityError(t *testing.T) {
	resetServices(t)
	Entities = &fakeEntities{err: errors.New("disk gone")}

	data := loadData().(dataLoadedMsg)
	if data.err == nil || !strings.Contains(data.err.Error(), "loading entities") {
		t.Errorf("expected entity load error, got %v", data.err)
	}
}

func TestDashboardCmd_NilEntities(t *testing.T) {
	resetServices(t)

	err := dashboardCmd.RunE(dashboardCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}
