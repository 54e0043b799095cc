package models

import "time"

// EventType classifies recorded facts about an entity.
type EventType string

const (
	EventCreated           EventType = "created"
	EventFieldUpdate       EventType = "field_update"
	EventPhaseTransition   EventType = "phase_transition"
	EventDecision          EventType = "decision"
	EventRelationshipAdded EventType = "relationship_added"
	EventNote              EventType = "note"
)

// ChangeOp is the operation a change applied to a metadata field.
type ChangeOp string

const (
	OpSet    ChangeOp = "set"
	OpUnset  ChangeOp = "unset"
	OpAppend ChangeOp = "append"
	OpRemove ChangeOp = "remove"
)

// Change is one field-level modification carried by an event.
type Change struct {
	Field     string   `json:"field"`
	Operation ChangeOp `json:"operation"`
	Value     any      `json:"value,omitempty"`
	OldValue  any      `json:"old_value,omitempty"`
}

// Event is an immutable, timestamped fact about an entity. Events are
// append-only and never mutated once written.
type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor,omitempty"`
	Message   string    `json:"message,omitempty"`
	Changes   []Change  `json:"changes,omitempty"`
}

// EventFilter specifies criteria for querying events. All set criteria
// must match.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Actors []string
	Types  []EventType

	// EntityPattern is a glob over entity ids, or an id prefix when it has
	// no glob meta characters.
	EntityPattern string

	// Limit keeps only the most recent N matches. Zero means no limit.
	Limit int
}

// TimelineEntry is a human-oriented line in an entity's history.
type TimelineEntry struct {
	Time    time.Time `json:"time"`
	EventID string    `json:"event_id"`
	Type    EventType `json:"type"`
	Actor   string    `json:"actor,omitempty"`
	Summary string    `json:"summary"`
}
