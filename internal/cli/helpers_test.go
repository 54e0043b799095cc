package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

var day0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// --- Fakes ---

type fakeQueryEngine struct {
	lastText string
	lastOpts core.QueryOptions
	lastNbrs bool
	result   *models.QueryResult
	contexts map[string]*models.EntityContext
	err      error
}

func (f *fakeQueryEngine) Query(text string, opts core.QueryOptions) (*models.QueryResult, error) {
	f.lastText, f.lastOpts = text, opts
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.QueryResult{Query: text, Warnings: []string{}}, nil
}

func (f *fakeQueryEngine) Context(entityID string, withNeighbors bool) (*models.EntityContext, error) {
	f.lastNbrs = withNeighbors
	ctx, ok := f.contexts[entityID]
	if !ok {
		return nil, fmt.Errorf("getting context for %s: %w", entityID, core.ErrEntityNotFound)
	}
	return ctx, nil
}

type fakeTemporal struct {
	snapshot *models.EntitySnapshot
	diffs    []models.FieldDiff
	history  []models.FieldHistoryEntry
	asOf     []models.EntitySnapshot
	changes  *models.PeriodChanges

	lastID     string
	lastAt     time.Time
	lastFrom   time.Time
	lastTo     time.Time
	lastField  string
	lastSince  *time.Time
	lastKind   models.EntityKind
	lastStatus string
}

func (f *fakeTemporal) GetEntityAt(entityID string, at time.Time) (*models.EntitySnapshot, error) {
	f.lastID, f.lastAt = entityID, at
	if f.snapshot == nil || at.Before(f.snapshot.Timestamp) {
		return nil, nil
	}
	return f.snapshot, nil
}

func (f *fakeTemporal) CompareStates(entityID string, t1, t2 time.Time) ([]models.FieldDiff, error) {
	f.lastID, f.lastFrom, f.lastTo = entityID, t1, t2
	return f.diffs, nil
}

func (f *fakeTemporal) GetFieldHistory(entityID, field string, since *time.Time) ([]models.FieldHistoryEntry, error) {
	f.lastID, f.lastField, f.lastSince = entityID, field, since
	return f.history, nil
}

func (f *fakeTemporal) QueryEntitiesAt(at time.Time, kind models.EntityKind, status string) ([]models.EntitySnapshot, error) {
	f.lastAt, f.lastKind, f.lastStatus = at, kind, status
	return f.asOf, nil
}

func (f *fakeTemporal) GetChangesInPeriod(since, until time.Time, kind models.EntityKind) (*models.PeriodChanges, error) {
	f.lastFrom, f.lastTo, f.lastKind = since, until, kind
	if f.changes != nil {
		return f.changes, nil
	}
	return &models.PeriodChanges{Since: since, Until: until, ByType: map[string]int{}, ByActor: map[string]int{}, ByEntity: map[string]int{}}, nil
}

type fakeRecorder struct {
	last core.RecordRequest
	err  error
}

func (f *fakeRecorder) Record(req core.RecordRequest) (models.Event, error) {
	f.last = req
	if f.err != nil {
		return models.Event{}, f.err
	}
	e := models.Event{
		EventID:   "evt-1",
		Timestamp: day0,
		EntityID:  req.EntityID,
		EventType: req.Type,
		Actor:     req.Actor,
		Message:   req.Message,
	}
	for field, v := range req.Set {
		e.Changes = append(e.Changes, models.Change{Field: field, Operation: models.OpSet, Value: v})
	}
	return e, nil
}

type fakeResolver map[string]string

func (f fakeResolver) Resolve(ref string) (string, bool) {
	id, ok := f[strings.ToLower(ref)]
	return id, ok
}

type fakeEntities struct {
	entities []models.Entity
	err      error
}

func (f *fakeEntities) Get(id string) (*models.Entity, error) {
	for i := range f.entities {
		if f.entities[i].ID == id {
			return &f.entities[i], nil
		}
	}
	return nil, core.ErrEntityNotFound
}

func (f *fakeEntities) List() ([]models.Entity, error) {
	return f.entities, f.err
}

// --- Helpers ---

// resetServices clears every service var and restores the originals when
// the test ends.
func resetServices(t *testing.T) {
	t.Helper()
	origBase, origConfig := BasePath, Config
	origQuery, origTemporal, origRecorder := QueryEngine, Temporal, Recorder
	origResolver, origEntities := Resolver, Entities
	origEvents, origStats := EventStore, StatsCalc
	origNow := now
	t.Cleanup(func() {
		BasePath, Config = origBase, origConfig
		QueryEngine, Temporal, Recorder = origQuery, origTemporal, origRecorder
		Resolver, Entities = origResolver, origEntities
		EventStore, StatsCalc = origEvents, origStats
		now = origNow
	})

	BasePath, Config = "", nil
	QueryEngine, Temporal, Recorder = nil, nil, nil
	Resolver, Entities = nil, nil
	EventStore, StatsCalc = nil, nil
	now = func() time.Time { return day0.Add(72 * time.Hour) }
}

// newTestEventStore returns an in-memory store seeded with events.
func newTestEventStore(t *testing.T, events ...models.Event) observability.EventStore {
	t.Helper()
	store, err := observability.NewMemorySQLiteEventStore()
	if err != nil {
		t.Fatalf("opening event store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, e := range events {
		if _, err := store.Append(e); err != nil {
			t.Fatalf("appending event: %v", err)
		}
	}
	return store
}

// runCmd sets flags on cmd, runs its RunE with args and returns the output.
// Flags are restored to their defaults when the test ends.
func runCmd(t *testing.T, cmd *cobra.Command, args []string, flags map[string]string) (string, error) {
	t.Helper()
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("setting --%s: %v", name, err)
		}
	}
	t.Cleanup(func() { resetFlags(cmd) })

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	defer cmd.SetOut(nil)

	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}
