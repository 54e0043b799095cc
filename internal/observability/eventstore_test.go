package observability

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

var baseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// forEachBackend runs fn against a fresh store of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, store EventStore)) {
	t.Helper()
	backends := map[string]func(t *testing.T) EventStore{
		"jsonl": func(t *testing.T) EventStore {
			s, err := NewJSONLEventStore(filepath.Join(t.TempDir(), ".brain", "events.jsonl"))
			if err != nil {
				t.Fatalf("creating jsonl store: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) EventStore {
			s, err := NewSQLiteEventStore(filepath.Join(t.TempDir(), ".brain", "events.db"))
			if err != nil {
				t.Fatalf("creating sqlite store: %v", err)
			}
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			defer store.Close()
			fn(t, store)
		})
	}
}

func mustAppend(t *testing.T, store EventStore, e models.Event) models.Event {
	t.Helper()
	out, err := store.Append(e)
	if err != nil {
		t.Fatalf("appending event: %v", err)
	}
	return out
}

func seedEvents(t *testing.T, store EventStore) {
	t.Helper()
	mustAppend(t, store, models.Event{Timestamp: baseTime, EntityID: "entity/issue/bug-1", EventType: models.EventCreated, Actor: "alice",
		Changes: []models.Change{{Field: "status", Operation: models.OpSet, Value: "todo"}}})
	mustAppend(t, store, models.Event{Timestamp: baseTime.Add(2 * time.Hour), EntityID: "entity/issue/bug-1", EventType: models.EventPhaseTransition, Actor: "bob",
		Changes: []models.Change{{Field: "status", Operation: models.OpSet, Value: "doing", OldValue: "todo"}}})
	mustAppend(t, store, models.Event{Timestamp: baseTime.Add(time.Hour), EntityID: "entity/person/jane", EventType: models.EventNote, Message: "joined"})
	mustAppend(t, store, models.Event{Timestamp: baseTime.Add(3 * time.Hour), EntityID: "entity/issue/bug-2", EventType: models.EventDecision, Actor: "Alice"})
}

func TestEventStore_AppendAssignsIDAndUTC(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		local := time.FixedZone("AEST", 10*3600)
		ev := mustAppend(t, store, models.Event{
			Timestamp: time.Date(2025, 1, 15, 20, 0, 0, 0, local),
			EntityID:  "entity/issue/bug-1",
			EventType: models.EventNote,
		})
		if ev.EventID == "" {
			t.Error("EventID not assigned")
		}
		if ev.Timestamp.Location() != time.UTC || !ev.Timestamp.Equal(baseTime) {
			t.Errorf("Timestamp = %v, want %v UTC", ev.Timestamp, baseTime)
		}

		kept := mustAppend(t, store, models.Event{EventID: "fixed-id", Timestamp: baseTime, EntityID: "x", EventType: models.EventNote})
		if kept.EventID != "fixed-id" {
			t.Errorf("EventID = %q, want caller id kept", kept.EventID)
		}
	})
}

func TestEventStore_RejectsInvalidEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		invalid := []models.Event{
			{Timestamp: baseTime, EventType: models.EventNote},
			{EntityID: "entity/issue/bug-1", EventType: models.EventNote},
			{EntityID: "entity/issue/bug-1", Timestamp: baseTime},
			{EntityID: "entity/issue/bug-1", Timestamp: time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC), EventType: models.EventNote},
			{EntityID: "entity/issue/bug-1", Timestamp: time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), EventType: models.EventNote},
		}
		for _, e := range invalid {
			if _, err := store.Append(e); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Append(%+v) err = %v, want ErrInvalidEvent", e, err)
			}
		}

		all, err := store.QueryEvents(models.EventFilter{})
		if err != nil {
			t.Fatalf("QueryEvents: %v", err)
		}
		if len(all) != 0 {
			t.Errorf("rejected appends wrote %d events", len(all))
		}
	})
}

func TestEventStore_GetEntityEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		seedEvents(t, store)

		events, err := store.GetEntityEvents("entity/issue/bug-1", nil)
		if err != nil {
			t.Fatalf("GetEntityEvents: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[1].Changes[0].OldValue != "todo" || events[1].Changes[0].Value != "doing" {
			t.Errorf("changes not preserved: %+v", events[1].Changes)
		}

		since := baseTime.Add(time.Hour)
		recent, err := store.GetEntityEvents("entity/issue/bug-1", &since)
		if err != nil {
			t.Fatalf("GetEntityEvents: %v", err)
		}
		if len(recent) != 1 || recent[0].EventType != models.EventPhaseTransition {
			t.Errorf("recent = %+v", recent)
		}

		none, err := store.GetEntityEvents("entity/issue/unknown", nil)
		if err != nil || len(none) != 0 {
			t.Errorf("unknown entity: %v, %v", none, err)
		}
	})
}

func TestEventStore_QueryEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		seedEvents(t, store)

		all, err := store.QueryEvents(models.EventFilter{})
		if err != nil {
			t.Fatalf("QueryEvents: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 events, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].Timestamp.Before(all[i-1].Timestamp) {
				t.Fatalf("events not chronological at %d", i)
			}
		}

		since, until := baseTime.Add(30*time.Minute), baseTime.Add(2*time.Hour)
		tests := []struct {
			name   string
			filter models.EventFilter
			want   int
		}{
			{"range", models.EventFilter{Since: &since, Until: &until}, 2},
			{"actor case-insensitive", models.EventFilter{Actors: []string{"alice"}}, 2},
			{"type", models.EventFilter{Types: []models.EventType{models.EventNote, models.EventDecision}}, 2},
			{"prefix", models.EventFilter{EntityPattern: "entity/issue/"}, 3},
			{"glob", models.EventFilter{EntityPattern: "entity/*/bug-?"}, 3},
			{"glob no match", models.EventFilter{EntityPattern: "entity/person/*x"}, 0},
			{"combined", models.EventFilter{EntityPattern: "entity/issue", Actors: []string{"bob"}}, 1},
		}
		for _, tt := range tests {
			got, err := store.QueryEvents(tt.filter)
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if len(got) != tt.want {
				t.Errorf("%s: got %d events, want %d", tt.name, len(got), tt.want)
			}
		}
	})
}

func TestEventStore_LimitKeepsMostRecent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		seedEvents(t, store)

		got, err := store.QueryEvents(models.EventFilter{Limit: 2})
		if err != nil {
			t.Fatalf("QueryEvents: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[0].EntityID != "entity/issue/bug-1" || got[1].EntityID != "entity/issue/bug-2" {
			t.Errorf("expected the two newest events in order, got %s, %s", got[0].EntityID, got[1].EntityID)
		}
	})
}

func TestEventStore_CountEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		seedEvents(t, store)

		byActor, err := store.CountEvents(nil, GroupByActor)
		if err != nil {
			t.Fatalf("CountEvents: %v", err)
		}
		if byActor["alice"] != 1 || byActor["Alice"] != 1 || byActor["bob"] != 1 || byActor[UnknownActor] != 1 {
			t.Errorf("byActor = %v", byActor)
		}

		since := baseTime.Add(time.Hour)
		byType, err := store.CountEvents(&since, GroupByType)
		if err != nil {
			t.Fatalf("CountEvents: %v", err)
		}
		if len(byType) != 3 || byType[string(models.EventCreated)] != 0 {
			t.Errorf("byType = %v", byType)
		}

		byEntity, err := store.CountEvents(nil, GroupByEntity)
		if err != nil {
			t.Fatalf("CountEvents: %v", err)
		}
		if byEntity["entity/issue/bug-1"] != 2 {
			t.Errorf("byEntity = %v", byEntity)
		}

		if _, err := store.CountEvents(nil, "weekday"); err == nil {
			t.Error("expected error for unsupported group_by")
		}
	})
}

func TestEventStore_Timeline(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store EventStore) {
		seedEvents(t, store)

		timeline, err := store.GetEntityTimeline("entity/issue/bug-1")
		if err != nil {
			t.Fatalf("GetEntityTimeline: %v", err)
		}
		if len(timeline) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(timeline))
		}
		if timeline[0].Summary != "status = todo" {
			t.Errorf("Summary[0] = %q", timeline[0].Summary)
		}
		if timeline[1].Summary != "status: todo -> doing" || timeline[1].Actor != "bob" {
			t.Errorf("entry[1] = %+v", timeline[1])
		}
	})
}

func TestSummarizeEvent(t *testing.T) {
	tests := []struct {
		event models.Event
		want  string
	}{
		{models.Event{EventType: models.EventNote, Message: "kickoff"}, "kickoff"},
		{models.Event{EventType: models.EventDecision}, "decision"},
		{models.Event{Changes: []models.Change{
			{Field: "owner", Operation: models.OpUnset, OldValue: "x"},
			{Field: "tags", Operation: models.OpAppend, Value: "infra"},
			{Field: "tags", Operation: models.OpRemove, Value: "old"},
		}}, "owner unset; tags += infra; tags -= old"},
	}
	for _, tt := range tests {
		if got := SummarizeEvent(tt.event); got != tt.want {
			t.Errorf("SummarizeEvent() = %q, want %q", got, tt.want)
		}
	}
}

func TestMatchEntityPattern(t *testing.T) {
	tests := []struct {
		pattern, id string
		want        bool
	}{
		{"entity/person", "entity/person/jane", true},
		{"entity/person/*", "entity/person/jane", true},
		{"entity/*", "entity/person/jane", false},
		{"entity/[pq]erson/j*", "entity/person/jane", true},
		{"entity/[", "entity/[", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		if got := MatchEntityPattern(tt.pattern, tt.id); got != tt.want {
			t.Errorf("MatchEntityPattern(%q, %q) = %v, want %v", tt.pattern, tt.id, got, tt.want)
		}
	}
}
