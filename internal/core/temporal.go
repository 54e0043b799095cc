package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// ChangedFieldsKey is the reserved metadata key listing the fields touched
// by the events applied to a snapshot.
const ChangedFieldsKey = models.ReservedPrefix + "changed_fields"

// unknownActor groups events recorded without an actor.
const unknownActor = "unknown"

// TemporalQuerier answers point-in-time questions about entities from the
// event log and the current entity snapshots.
type TemporalQuerier interface {
	// GetEntityAt reconstructs the entity as of at. Returns a nil snapshot
	// when the entity did not exist yet at that time.
	GetEntityAt(entityID string, at time.Time) (*models.EntitySnapshot, error)

	// CompareStates diffs the entity's metadata between two instants.
	CompareStates(entityID string, t1, t2 time.Time) ([]models.FieldDiff, error)

	// GetFieldHistory lists every recorded change to one field.
	GetFieldHistory(entityID, field string, since *time.Time) ([]models.FieldHistoryEntry, error)

	// QueryEntitiesAt reconstructs every known entity at a time, filtered by
	// kind and status when those are non-empty.
	QueryEntitiesAt(at time.Time, kind models.EntityKind, status string) ([]models.EntitySnapshot, error)

	// GetChangesInPeriod counts events in [since, until], optionally only
	// for entities of one kind.
	GetChangesInPeriod(since, until time.Time, kind models.EntityKind) (*models.PeriodChanges, error)
}

type temporalReconstructor struct {
	entities EntityReader
	events   EventReader
}

// NewTemporalReconstructor creates a TemporalQuerier. Historical values are
// recovered by undoing later events from the current metadata, using the
// value and old_value each change carries.
func NewTemporalReconstructor(entities EntityReader, events EventReader) TemporalQuerier {
	return &temporalReconstructor{entities: entities, events: events}
}

// current loads the entity's present snapshot; a missing entity is nil.
func (r *temporalReconstructor) current(entityID string) (*models.Entity, error) {
	e, err := r.entities.Get(entityID)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *temporalReconstructor) GetEntityAt(entityID string, at time.Time) (*models.EntitySnapshot, error) {
	entity, err := r.current(entityID)
	if err != nil {
		return nil, fmt.Errorf("reconstructing %s: %w", entityID, err)
	}
	events, err := r.events.GetEntityEvents(entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("reconstructing %s: %w", entityID, err)
	}
	at = at.UTC()

	if len(events) == 0 {
		if entity == nil || entity.CreatedAt.After(at) {
			return nil, nil
		}
		return &models.EntitySnapshot{
			EntityID:  entityID,
			Timestamp: at,
			Metadata:  copyMetadata(entity.Metadata),
			Body:      entity.Body,
			Version:   1,
		}, nil
	}

	split := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.After(at)
	})
	qualifying, later := events[:split], events[split:]
	if len(qualifying) == 0 {
		return nil, nil
	}

	var meta map[string]any
	var body string
	if entity != nil {
		meta = copyMetadata(entity.Metadata)
		body = entity.Body
		for i := len(later) - 1; i >= 0; i-- {
			changes := later[i].Changes
			for j := len(changes) - 1; j >= 0; j-- {
				undoChange(meta, changes[j])
			}
		}
	} else {
		meta = make(map[string]any)
		for _, e := range qualifying {
			for _, c := range e.Changes {
				applyChange(meta, c)
			}
		}
	}

	changed := changedFields(qualifying)
	if len(changed) > 0 {
		meta[ChangedFieldsKey] = changed
	}

	return &models.EntitySnapshot{
		EntityID:      entityID,
		Timestamp:     at,
		Metadata:      meta,
		Body:          body,
		Version:       len(qualifying),
		ChangedFields: changed,
	}, nil
}

func (r *temporalReconstructor) CompareStates(entityID string, t1, t2 time.Time) ([]models.FieldDiff, error) {
	before, err := r.GetEntityAt(entityID, t1)
	if err != nil {
		return nil, err
	}
	after, err := r.GetEntityAt(entityID, t2)
	if err != nil {
		return nil, err
	}

	var oldMeta, newMeta map[string]any
	if before != nil {
		oldMeta = before.Metadata
	}
	if after != nil {
		newMeta = after.Metadata
	}

	keys := make(map[string]struct{})
	for k := range oldMeta {
		keys[k] = struct{}{}
	}
	for k := range newMeta {
		keys[k] = struct{}{}
	}
	fields := make([]string, 0, len(keys))
	for k := range keys {
		if !models.IsReservedKey(k) {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	diffs := []models.FieldDiff{}
	for _, f := range fields {
		oldVal, newVal := oldMeta[f], newMeta[f]
		if valuesEqual(oldVal, newVal) {
			continue
		}
		diffs = append(diffs, models.FieldDiff{Field: f, OldValue: oldVal, NewValue: newVal})
	}
	return diffs, nil
}

func (r *temporalReconstructor) GetFieldHistory(entityID, field string, since *time.Time) ([]models.FieldHistoryEntry, error) {
	events, err := r.events.GetEntityEvents(entityID, since)
	if err != nil {
		return nil, fmt.Errorf("getting history of %s.%s: %w", entityID, field, err)
	}

	history := []models.FieldHistoryEntry{}
	for _, e := range events {
		for _, c := range e.Changes {
			if c.Field != field {
				continue
			}
			entry := models.FieldHistoryEntry{
				Timestamp: e.Timestamp,
				EventID:   e.EventID,
				Actor:     e.Actor,
				Operation: c.Operation,
				OldValue:  c.OldValue,
				NewValue:  c.Value,
			}
			if c.Operation == models.OpUnset {
				entry.NewValue = nil
			}
			history = append(history, entry)
		}
	}
	return history, nil
}

func (r *temporalReconstructor) QueryEntitiesAt(at time.Time, kind models.EntityKind, status string) ([]models.EntitySnapshot, error) {
	current, err := r.entities.List()
	if err != nil {
		return nil, fmt.Errorf("querying entities at %s: %w", at.Format(time.RFC3339), err)
	}
	until := at.UTC()
	events, err := r.events.QueryEvents(models.EventFilter{Until: &until})
	if err != nil {
		return nil, fmt.Errorf("querying entities at %s: %w", at.Format(time.RFC3339), err)
	}

	kinds := make(map[string]models.EntityKind)
	for _, e := range current {
		kinds[e.ID] = e.Kind
	}
	for _, e := range events {
		if _, ok := kinds[e.EntityID]; !ok {
			kinds[e.EntityID] = kindFromID(e.EntityID)
		}
	}

	ids := make([]string, 0, len(kinds))
	for id := range kinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshots := []models.EntitySnapshot{}
	for _, id := range ids {
		if kind != "" && kinds[id] != kind {
			continue
		}
		snap, err := r.GetEntityAt(id, at)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}
		if status != "" && !strings.EqualFold(fmt.Sprint(snap.Metadata["status"]), status) {
			continue
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (r *temporalReconstructor) GetChangesInPeriod(since, until time.Time, kind models.EntityKind) (*models.PeriodChanges, error) {
	since, until = since.UTC(), until.UTC()
	events, err := r.events.QueryEvents(models.EventFilter{Since: &since, Until: &until})
	if err != nil {
		return nil, fmt.Errorf("getting changes in period: %w", err)
	}

	out := &models.PeriodChanges{
		Since:    since,
		Until:    until,
		ByType:   make(map[string]int),
		ByActor:  make(map[string]int),
		ByEntity: make(map[string]int),
	}
	kinds := make(map[string]models.EntityKind)
	for _, e := range events {
		if kind != "" && r.kindOf(e.EntityID, kinds) != kind {
			continue
		}
		actor := e.Actor
		if actor == "" {
			actor = unknownActor
		}
		out.Total++
		out.ByType[string(e.EventType)]++
		out.ByActor[actor]++
		out.ByEntity[e.EntityID]++
	}
	return out, nil
}

// kindOf looks the entity's kind up in the store, falling back to the id.
func (r *temporalReconstructor) kindOf(id string, cache map[string]models.EntityKind) models.EntityKind {
	if k, ok := cache[id]; ok {
		return k
	}
	k := kindFromID(id)
	if e, err := r.entities.Get(id); err == nil && e.Kind != "" {
		k = e.Kind
	}
	cache[id] = k
	return k
}

// kindFromID returns the second path segment: entity/person/jane -> person.
func kindFromID(id string) models.EntityKind {
	parts := strings.Split(id, "/")
	if len(parts) < 2 {
		return ""
	}
	return models.EntityKind(parts[1])
}

func changedFields(events []models.Event) []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, e := range events {
		for _, c := range e.Changes {
			if c.Field == "" {
				continue
			}
			if _, dup := seen[c.Field]; dup {
				continue
			}
			seen[c.Field] = struct{}{}
			fields = append(fields, c.Field)
		}
	}
	sort.Strings(fields)
	return fields
}

// applyChange replays a change forward.
func applyChange(meta map[string]any, c models.Change) {
	switch c.Operation {
	case models.OpSet:
		meta[c.Field] = c.Value
	case models.OpUnset:
		delete(meta, c.Field)
	case models.OpAppend:
		meta[c.Field] = append(toList(meta[c.Field]), c.Value)
	case models.OpRemove:
		setList(meta, c.Field, removeValue(toList(meta[c.Field]), c.Value))
	}
}

// undoChange reverts a change, restoring the recorded old value when one
// exists.
func undoChange(meta map[string]any, c models.Change) {
	switch c.Operation {
	case models.OpSet:
		if c.OldValue != nil {
			meta[c.Field] = c.OldValue
		} else {
			delete(meta, c.Field)
		}
	case models.OpUnset:
		if c.OldValue != nil {
			meta[c.Field] = c.OldValue
		}
	case models.OpAppend:
		if c.OldValue != nil {
			meta[c.Field] = c.OldValue
			return
		}
		setList(meta, c.Field, removeValue(toList(meta[c.Field]), c.Value))
	case models.OpRemove:
		if c.OldValue != nil {
			meta[c.Field] = c.OldValue
			return
		}
		meta[c.Field] = append(toList(meta[c.Field]), c.Value)
	}
}

func setList(meta map[string]any, field string, list []any) {
	if len(list) == 0 {
		delete(meta, field)
		return
	}
	meta[field] = list
}

func toList(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		return append([]any(nil), l...)
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return []any{l}
	}
}

// removeValue drops the last occurrence of v.
func removeValue(list []any, v any) []any {
	for i := len(list) - 1; i >= 0; i-- {
		if valuesEqual(list[i], v) {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// valuesEqual compares metadata values, treating values that print the same
// as equal so YAML and JSON decodings of a number agree.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if l, ok := v.([]any); ok {
			v = append([]any(nil), l...)
		}
		out[k] = v
	}
	return out
}
