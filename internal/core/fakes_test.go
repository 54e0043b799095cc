package core

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// memEntities is an in-memory EntityReader/EntityWriter keyed by id.
type memEntities struct {
	entities map[string]*models.Entity
	gets     map[string]int
}

func newMemEntities(entities ...*models.Entity) *memEntities {
	m := &memEntities{entities: make(map[string]*models.Entity), gets: make(map[string]int)}
	for _, e := range entities {
		m.entities[e.ID] = e
	}
	return m
}

func (m *memEntities) Get(id string) (*models.Entity, error) {
	m.gets[id]++
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	cp := *e
	cp.Metadata = copyMetadata(e.Metadata)
	return &cp, nil
}

func (m *memEntities) List() ([]models.Entity, error) {
	ids := make([]string, 0, len(m.entities))
	for id := range m.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Entity, 0, len(ids))
	for _, id := range ids {
		e, _ := m.Get(id)
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEntities) Put(e *models.Entity) error {
	cp := *e
	cp.Metadata = copyMetadata(e.Metadata)
	m.entities[e.ID] = &cp
	return nil
}

// memResolver resolves exact ids, names and aliases case-insensitively.
type memResolver struct {
	entities *memEntities
}

func (r memResolver) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if _, ok := r.entities.entities[ref]; ok {
		return ref, true
	}
	for id, e := range r.entities.entities {
		if strings.EqualFold(e.Name, ref) || strings.EqualFold(path.Base(id), ref) {
			return id, true
		}
		for _, a := range e.Aliases {
			if strings.EqualFold(a, ref) {
				return id, true
			}
		}
	}
	return "", false
}

// fakeSearch returns canned results and records the limit it was asked for.
type fakeSearch struct {
	results   []models.SearchResult
	err       error
	lastLimit int
}

func (f *fakeSearch) Search(_ string, limit int) ([]models.SearchResult, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.SearchResult, 0, limit)
	for i, r := range f.results {
		if i >= limit {
			break
		}
		r.MatchReasons = append([]string(nil), r.MatchReasons...)
		out = append(out, r)
	}
	return out, nil
}

// memEvents is an in-memory EventReader/EventAppender.
type memEvents struct {
	events []models.Event
}

func (m *memEvents) Append(e models.Event) (models.Event, error) {
	if e.EventID == "" {
		e.EventID = fmt.Sprintf("evt-%d", len(m.events)+1)
	}
	e.Timestamp = e.Timestamp.UTC()
	m.events = append(m.events, e)
	return e, nil
}

func (m *memEvents) GetEntityEvents(entityID string, since *time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.sorted() {
		if e.EntityID != entityID {
			continue
		}
		if since != nil && e.Timestamp.Before(*since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) QueryEvents(filter models.EventFilter) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.sorted() {
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.Timestamp.After(*filter.Until) {
			continue
		}
		if filter.EntityPattern != "" && !strings.HasPrefix(e.EntityID, filter.EntityPattern) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) sorted() []models.Event {
	out := append([]models.Event(nil), m.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func rel(target, typ string) models.Relationship {
	return models.Relationship{Target: target, Type: typ}
}

func entity(id, name string, rels ...models.Relationship) *models.Entity {
	return &models.Entity{
		ID:            id,
		Kind:          models.EntityKind(strings.Split(id, "/")[1]),
		Name:          name,
		Metadata:      map[string]any{},
		Relationships: rels,
	}
}

func seed(id string, score float64) models.SearchResult {
	return models.SearchResult{EntityID: id, Score: score, Source: models.SourceAlias}
}

// recordingGraph delegates to a real expander and records what it was given
// and what it found.
type recordingGraph struct {
	next      GraphExpander
	seeds     []string
	neighbors []string
}

func (r *recordingGraph) Expand(seeds []models.SearchResult, opts GraphOptions) (*GraphExpansion, error) {
	for _, s := range seeds {
		r.seeds = append(r.seeds, s.EntityID)
	}
	exp, err := r.next.Expand(seeds, opts)
	if err != nil {
		return nil, err
	}
	for _, n := range exp.Neighbors {
		r.neighbors = append(r.neighbors, n.EntityID)
	}
	return exp, nil
}
