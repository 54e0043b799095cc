package core

import (
	"errors"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// ErrEntityNotFound is returned by EntityReader implementations when an id
// does not exist, and by single-entity operations addressed at such an id.
var ErrEntityNotFound = errors.New("entity not found")

// EntityReader provides read access to the entity corpus.
// This interface is defined locally in core to avoid importing storage.
type EntityReader interface {
	// Get returns the entity or an error wrapping ErrEntityNotFound.
	Get(id string) (*models.Entity, error)
	List() ([]models.Entity, error)
}

// EntityWriter persists an updated entity record.
type EntityWriter interface {
	Put(entity *models.Entity) error
}

// AliasResolver maps an alias or link token to a canonical entity id.
type AliasResolver interface {
	Resolve(ref string) (string, bool)
}

// SearchIndex returns the initial keyword matches ("seeds") for a query.
type SearchIndex interface {
	Search(query string, limit int) ([]models.SearchResult, error)
}

// EventReader is the read side of the event store that core services need.
// Defining it here avoids importing the observability package.
type EventReader interface {
	GetEntityEvents(entityID string, since *time.Time) ([]models.Event, error)
	QueryEvents(filter models.EventFilter) ([]models.Event, error)
}

// EventAppender is the write side of the event store.
type EventAppender interface {
	Append(event models.Event) (models.Event, error)
}
