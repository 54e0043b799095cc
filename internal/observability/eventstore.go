package observability

import (
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/brain/pkg/models"
)

// ErrInvalidEvent is returned when an appended event lacks a required field.
var ErrInvalidEvent = errors.New("invalid event")

// Timestamps must fit in int64 nanoseconds since the Unix epoch.
var (
	minEventTime = time.Unix(0, math.MinInt64).UTC()
	maxEventTime = time.Unix(0, math.MaxInt64).UTC()
)

// Grouping keys accepted by CountEvents.
const (
	GroupByType   = "type"
	GroupByActor  = "actor"
	GroupByEntity = "entity"
)

// UnknownActor groups events recorded without an actor.
const UnknownActor = "unknown"

// EventStore defines the interface for the append-only entity event log.
type EventStore interface {
	// Append validates and persists one event, returning it with its id and
	// UTC timestamp filled in. Invalid events are rejected with
	// ErrInvalidEvent and nothing is written.
	Append(event models.Event) (models.Event, error)

	// GetEntityEvents returns one entity's events in chronological order,
	// optionally only those at or after since.
	GetEntityEvents(entityID string, since *time.Time) ([]models.Event, error)

	// GetEntityTimeline returns a human-oriented view of an entity's events.
	GetEntityTimeline(entityID string) ([]models.TimelineEntry, error)

	// QueryEvents returns events matching every set criterion, in
	// chronological order.
	QueryEvents(filter models.EventFilter) ([]models.Event, error)

	// CountEvents counts events since the given time grouped by type, actor
	// or entity.
	CountEvents(since *time.Time, groupBy string) (map[string]int, error)

	Close() error
}

// prepareEvent checks the structural fields of an event and normalizes it
// for storage.
func prepareEvent(event models.Event) (models.Event, error) {
	var missing []string
	if strings.TrimSpace(event.EntityID) == "" {
		missing = append(missing, "entity_id")
	}
	if event.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if strings.TrimSpace(string(event.EventType)) == "" {
		missing = append(missing, "event_type")
	}
	if len(missing) > 0 {
		return event, fmt.Errorf("%w: missing %s", ErrInvalidEvent, strings.Join(missing, ", "))
	}
	if event.Timestamp.Before(minEventTime) || event.Timestamp.After(maxEventTime) {
		return event, fmt.Errorf("%w: timestamp %s out of range", ErrInvalidEvent, event.Timestamp.Format(time.RFC3339))
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event models.Event, filter models.EventFilter) bool {
	if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Timestamp.After(*filter.Until) {
		return false
	}
	if len(filter.Actors) > 0 && !containsActor(filter.Actors, event.Actor) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, event.EventType) {
		return false
	}
	if filter.EntityPattern != "" && !MatchEntityPattern(filter.EntityPattern, event.EntityID) {
		return false
	}
	return true
}

// MatchEntityPattern reports whether id matches pattern: a path.Match glob
// when the pattern has meta characters, an id prefix otherwise.
func MatchEntityPattern(pattern, id string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, id)
		return err == nil && ok
	}
	return strings.HasPrefix(id, pattern)
}

func containsActor(actors []string, actor string) bool {
	for _, a := range actors {
		if strings.EqualFold(a, actor) {
			return true
		}
	}
	return false
}

func containsType(types []models.EventType, t models.EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// sortChronologically orders events by timestamp, keeping append order for
// equal timestamps.
func sortChronologically(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// keepMostRecent trims a chronological slice to its last limit events.
func keepMostRecent(events []models.Event, limit int) []models.Event {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}

func groupKey(event models.Event, groupBy string) (string, error) {
	switch groupBy {
	case GroupByType:
		return string(event.EventType), nil
	case GroupByActor:
		if event.Actor == "" {
			return UnknownActor, nil
		}
		return event.Actor, nil
	case GroupByEntity:
		return event.EntityID, nil
	default:
		return "", fmt.Errorf("unsupported group_by %q, must be one of: type, actor, entity", groupBy)
	}
}

func countEvents(events []models.Event, groupBy string) (map[string]int, error) {
	counts := make(map[string]int)
	if _, err := groupKey(models.Event{}, groupBy); err != nil {
		return nil, err
	}
	for _, e := range events {
		key, _ := groupKey(e, groupBy)
		counts[key]++
	}
	return counts, nil
}

// toTimeline renders events as timeline entries.
func toTimeline(events []models.Event) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, models.TimelineEntry{
			Time:    e.Timestamp,
			EventID: e.EventID,
			Type:    e.EventType,
			Actor:   e.Actor,
			Summary: SummarizeEvent(e),
		})
	}
	return entries
}

// SummarizeEvent renders a one-line description of an event: its message
// when set, otherwise its changes.
func SummarizeEvent(e models.Event) string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Changes) == 0 {
		return string(e.EventType)
	}
	parts := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		switch c.Operation {
		case models.OpSet:
			if c.OldValue != nil {
				parts = append(parts, fmt.Sprintf("%s: %v -> %v", c.Field, c.OldValue, c.Value))
			} else {
				parts = append(parts, fmt.Sprintf("%s = %v", c.Field, c.Value))
			}
		case models.OpUnset:
			parts = append(parts, fmt.Sprintf("%s unset", c.Field))
		case models.OpAppend:
			parts = append(parts, fmt.Sprintf("%s += %v", c.Field, c.Value))
		case models.OpRemove:
			parts = append(parts, fmt.Sprintf("%s -= %v", c.Field, c.Value))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %v", c.Field, c.Operation, c.Value))
		}
	}
	return strings.Join(parts, "; ")
}
