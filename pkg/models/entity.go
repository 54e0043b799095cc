package models

import (
	"strings"
	"time"
)

// EntityKind categorizes entities in the knowledge base.
type EntityKind string

const (
	KindPerson   EntityKind = "person"
	KindProject  EntityKind = "project"
	KindIssue    EntityKind = "issue"
	KindMeeting  EntityKind = "meeting"
	KindDecision EntityKind = "decision"
	KindDocument EntityKind = "document"
)

// ReservedPrefix marks metadata keys used for bookkeeping. Keys carrying it
// are never shown in user-facing diffs.
const ReservedPrefix = "_"

// IsReservedKey reports whether a metadata key is internal bookkeeping.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Entity is a uniquely identified knowledge-base record: structured
// metadata, ordered relationships and free-form body text.
type Entity struct {
	// ID is the type-prefixed path of the record, e.g. entity/person/jane-doe.
	ID            string
	Kind          EntityKind
	Name          string
	Aliases       []string
	Metadata      map[string]any
	Relationships []Relationship
	Body          string

	// CreatedAt is the recorded creation time: the "created" metadata key
	// when present, otherwise the modification time of the backing file.
	CreatedAt time.Time

	// Path is the file the entity was read from.
	Path string
}

// Status returns the entity's "status" metadata value, or "".
func (e *Entity) Status() string {
	if s, ok := e.Metadata["status"].(string); ok {
		return s
	}
	return ""
}

// Relationship is a directed edge from an entity to a target reference.
type Relationship struct {
	// Target is an alias or canonical id, resolved lazily at query time.
	Target string `yaml:"target" json:"target"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`

	// Strength is the raw override as found in the record. It may be a
	// number or a numeric string and is coerced at traversal time.
	Strength any `yaml:"strength,omitempty" json:"strength,omitempty"`
}
