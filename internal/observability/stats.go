package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// Stats holds statistics derived from the event log.
type Stats struct {
	EventCount  int            `json:"event_count"`
	ByType      map[string]int `json:"by_type"`
	ByActor     map[string]int `json:"by_actor"`
	ByEntity    map[string]int `json:"by_entity"`
	OldestEvent *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent *time.Time     `json:"newest_event,omitempty"`
}

// EntityCount pairs an entity with its number of events.
type EntityCount struct {
	EntityID string `json:"entity_id"`
	Count    int    `json:"count"`
}

// TopEntities returns the n most active entities, ties broken by id.
func (s *Stats) TopEntities(n int) []EntityCount {
	out := make([]EntityCount, 0, len(s.ByEntity))
	for id, c := range s.ByEntity {
		out = append(out, EntityCount{EntityID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EntityID < out[j].EntityID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// EventQuerier is the read side of an EventStore used for statistics.
type EventQuerier interface {
	QueryEvents(filter models.EventFilter) ([]models.Event, error)
}

// StatsCalculator derives statistics from the event log.
type StatsCalculator interface {
	Calculate(since *time.Time) (*Stats, error)
}

// statsCalculator implements StatsCalculator by reading from an event store.
type statsCalculator struct {
	events EventQuerier
}

// NewStatsCalculator creates a new StatsCalculator that reads from the given store.
func NewStatsCalculator(events EventQuerier) StatsCalculator {
	return &statsCalculator{events: events}
}

// Calculate reads all events since the given time (all events when nil)
// and aggregates them.
func (sc *statsCalculator) Calculate(since *time.Time) (*Stats, error) {
	events, err := sc.events.QueryEvents(models.EventFilter{Since: since})
	if err != nil {
		return nil, fmt.Errorf("reading events for stats: %w", err)
	}

	s := &Stats{
		ByType:   make(map[string]int),
		ByActor:  make(map[string]int),
		ByEntity: make(map[string]int),
	}

	s.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Timestamp
			s.OldestEvent = &t
		}
		t := event.Timestamp
		s.NewestEvent = &t

		actor := event.Actor
		if actor == "" {
			actor = UnknownActor
		}
		s.ByType[string(event.EventType)]++
		s.ByActor[actor]++
		s.ByEntity[event.EntityID]++
	}

	return s, nil
}
