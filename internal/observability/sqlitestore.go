package observability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/pkg/models"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "events: append-only entity event log",
		SQL: `
CREATE TABLE events (
    seq         INTEGER PRIMARY KEY,
    event_id    TEXT NOT NULL UNIQUE,
    ts          INTEGER NOT NULL,
    entity_id   TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    actor       TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    changes     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_events_entity_ts ON events(entity_id, ts);
CREATE INDEX idx_events_ts        ON events(ts);
`,
	},
	{
		Version:     2,
		Description: "events: actor and type lookups",
		SQL: `
CREATE INDEX idx_events_actor ON events(actor);
CREATE INDEX idx_events_type  ON events(event_type);
`,
	},
}

// sqliteEventStore implements EventStore on a SQLite database.
type sqliteEventStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteEventStore opens (or creates) the SQLite event database at the
// given path, configures pragmas and runs migrations.
func NewSQLiteEventStore(path string) (EventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := initSQLiteStore(db, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemorySQLiteEventStore opens an in-memory event database for tests.
func NewMemorySQLiteEventStore() (EventStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	s, err := initSQLiteStore(db, ":memory:")
	if err != nil {
		return nil, err
	}
	return s, nil
}

func initSQLiteStore(db *sql.DB, path string) (*sqliteEventStore, error) {
	s := &sqliteEventStore{db: db, path: path}
	if err := s.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteEventStore) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *sqliteEventStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// schemaVersion returns the current schema version.
func (s *sqliteEventStore) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

func (s *sqliteEventStore) Append(event models.Event) (models.Event, error) {
	event, err := prepareEvent(event)
	if err != nil {
		return models.Event{}, err
	}

	changes := event.Changes
	if changes == nil {
		changes = []models.Change{}
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshalling changes: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO events (event_id, ts, entity_id, event_type, actor, message, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.EventID, event.Timestamp.UnixNano(), event.EntityID, string(event.EventType),
		event.Actor, event.Message, string(data))
	if err != nil {
		return models.Event{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

// query runs a SELECT over events with the given WHERE clause and returns
// the decoded rows in chronological order.
func (s *sqliteEventStore) query(where string, args ...any) ([]models.Event, error) {
	q := `SELECT event_id, ts, entity_id, event_type, actor, message, changes FROM events`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY ts, seq"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e       models.Event
			ts      int64
			evType  string
			changes string
		)
		if err := rows.Scan(&e.EventID, &ts, &e.EntityID, &evType, &e.Actor, &e.Message, &changes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.EventType = models.EventType(evType)
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			logger.Warn("skipping event %s with corrupt changes in %s: %v", e.EventID, s.path, err)
			continue
		}
		if len(e.Changes) == 0 {
			e.Changes = nil
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *sqliteEventStore) GetEntityEvents(entityID string, since *time.Time) ([]models.Event, error) {
	if since != nil {
		return s.query("entity_id = ? AND ts >= ?", entityID, since.UnixNano())
	}
	return s.query("entity_id = ?", entityID)
}

func (s *sqliteEventStore) GetEntityTimeline(entityID string) ([]models.TimelineEntry, error) {
	events, err := s.GetEntityEvents(entityID, nil)
	if err != nil {
		return nil, err
	}
	return toTimeline(events), nil
}

func (s *sqliteEventStore) QueryEvents(filter models.EventFilter) ([]models.Event, error) {
	var clauses []string
	var args []any
	if filter.Since != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		clauses = append(clauses, "ts <= ?")
		args = append(args, filter.Until.UnixNano())
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	events, err := s.query(strings.Join(clauses, " AND "), args...)
	if err != nil {
		return nil, err
	}

	// Actor matching is case-insensitive and entity patterns may be globs,
	// so those criteria are applied to the decoded rows.
	matched := events[:0]
	for _, e := range events {
		if matchesEventFilter(e, filter) {
			matched = append(matched, e)
		}
	}
	return keepMostRecent(matched, filter.Limit), nil
}

func (s *sqliteEventStore) CountEvents(since *time.Time, groupBy string) (map[string]int, error) {
	events, err := s.QueryEvents(models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}
	return countEvents(events, groupBy)
}

func (s *sqliteEventStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing event db: %w", err)
	}
	return nil
}
