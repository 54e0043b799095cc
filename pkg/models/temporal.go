package models

import "time"

// EntitySnapshot is a reconstructed view of an entity at a point in time.
// Snapshots are derived on demand and never persisted.
type EntitySnapshot struct {
	EntityID      string         `json:"entity_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
	Body          string         `json:"body"`
	Version       int            `json:"version"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
}

// FieldDiff is one field that differs between two snapshots.
type FieldDiff struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// FieldHistoryEntry is one recorded change to a single field.
type FieldHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
	Actor     string    `json:"actor,omitempty"`
	Operation ChangeOp  `json:"operation"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
}

// PeriodChanges aggregates event activity over an interval.
type PeriodChanges struct {
	Since    time.Time      `json:"since"`
	Until    time.Time      `json:"until"`
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByActor  map[string]int `json:"by_actor"`
	ByEntity map[string]int `json:"by_entity"`
}
