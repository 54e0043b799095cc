package core

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// EntityReadWriter reads and writes entity records.
type EntityReadWriter interface {
	EntityReader
	EntityWriter
}

// RecordRequest describes a change to record against an entity.
type RecordRequest struct {
	EntityID string
	Type     models.EventType
	Actor    string
	Message  string
	Set      map[string]any
	Unset    []string
}

// EventRecorder applies field changes to an entity and records them as an
// event carrying the previous values.
type EventRecorder interface {
	Record(req RecordRequest) (models.Event, error)
}

type eventRecorder struct {
	entities     EntityReadWriter
	events       EventAppender
	defaultActor string
	now          func() time.Time
}

// NewEventRecorder creates an EventRecorder. defaultActor is used when a
// request carries no actor.
func NewEventRecorder(entities EntityReadWriter, events EventAppender, defaultActor string) EventRecorder {
	return &eventRecorder{
		entities:     entities,
		events:       events,
		defaultActor: defaultActor,
		now:          time.Now,
	}
}

func (r *eventRecorder) Record(req RecordRequest) (models.Event, error) {
	if strings.TrimSpace(req.EntityID) == "" {
		return models.Event{}, fmt.Errorf("recording event: entity id is required")
	}
	if req.Type == "" {
		req.Type = models.EventFieldUpdate
	}
	for k := range req.Set {
		if models.IsReservedKey(k) {
			return models.Event{}, fmt.Errorf("recording event: field %q uses the reserved prefix %q", k, models.ReservedPrefix)
		}
	}

	ts := r.now().UTC()
	entity, err := r.entities.Get(req.EntityID)
	switch {
	case err == nil:
	case errors.Is(err, ErrEntityNotFound) && req.Type == models.EventCreated:
		entity = &models.Entity{
			ID:       req.EntityID,
			Kind:     kindFromID(req.EntityID),
			Name:     path.Base(req.EntityID),
			Metadata: map[string]any{"created": ts.Format(time.RFC3339)},
		}
	default:
		return models.Event{}, fmt.Errorf("recording event for %s: %w", req.EntityID, err)
	}
	if entity.Metadata == nil {
		entity.Metadata = make(map[string]any)
	}

	fields := make([]string, 0, len(req.Set))
	for k := range req.Set {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var changes []models.Change
	for _, f := range fields {
		c := models.Change{Field: f, Operation: models.OpSet, Value: req.Set[f], OldValue: entity.Metadata[f]}
		changes = append(changes, c)
		entity.Metadata[f] = c.Value
	}
	for _, f := range req.Unset {
		old, ok := entity.Metadata[f]
		if !ok {
			continue
		}
		changes = append(changes, models.Change{Field: f, Operation: models.OpUnset, OldValue: old})
		delete(entity.Metadata, f)
	}

	actor := req.Actor
	if actor == "" {
		actor = r.defaultActor
	}
	event, err := r.events.Append(models.Event{
		Timestamp: ts,
		EntityID:  entity.ID,
		EventType: req.Type,
		Actor:     actor,
		Message:   req.Message,
		Changes:   changes,
	})
	if err != nil {
		return models.Event{}, fmt.Errorf("recording event for %s: %w", entity.ID, err)
	}

	if len(changes) > 0 || req.Type == models.EventCreated {
		if err := r.entities.Put(entity); err != nil {
			return event, fmt.Errorf("updating %s after event %s: %w", entity.ID, event.EventID, err)
		}
	}
	return event, nil
}
