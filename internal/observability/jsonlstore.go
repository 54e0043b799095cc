package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/pkg/models"
)

// maxLineSize bounds a single event line.
const maxLineSize = 4 << 20

// jsonlEventStore implements EventStore using an append-only JSONL file.
type jsonlEventStore struct {
	path     string
	lockPath string
	file     *os.File
	mu       sync.Mutex
}

// NewJSONLEventStore creates an EventStore backed by a JSONL file at the
// given path, creating parent directories as needed.
func NewJSONLEventStore(path string) (EventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventStore{
		path:     path,
		lockPath: path + ".lock",
		file:     f,
	}, nil
}

// Append writes one JSON-encoded event followed by a newline.
func (s *jsonlEventStore) Append(event models.Event) (models.Event, error) {
	event, err := prepareEvent(event)
	if err != nil {
		return models.Event{}, err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.lockPath)
	if err != nil {
		return models.Event{}, fmt.Errorf("appending event: %w", err)
	}
	defer func() { _ = unlock() }()

	if _, err := s.file.Write(data); err != nil {
		return models.Event{}, fmt.Errorf("writing event: %w", err)
	}
	return event, nil
}

// read scans the log line by line and returns the events matching keep, in
// chronological order. Malformed lines are skipped with a warning.
func (s *jsonlEventStore) read(keep func(models.Event) bool) ([]models.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []models.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event models.Event
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Warn("skipping malformed event at %s:%d: %v", s.path, lineNo, err)
			continue
		}
		if event.EntityID == "" || event.Timestamp.IsZero() || event.EventType == "" {
			logger.Warn("skipping incomplete event at %s:%d", s.path, lineNo)
			continue
		}

		if keep(event) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	sortChronologically(events)
	return events, nil
}

func (s *jsonlEventStore) GetEntityEvents(entityID string, since *time.Time) ([]models.Event, error) {
	return s.read(func(e models.Event) bool {
		return e.EntityID == entityID && (since == nil || !e.Timestamp.Before(*since))
	})
}

func (s *jsonlEventStore) GetEntityTimeline(entityID string) ([]models.TimelineEntry, error) {
	events, err := s.GetEntityEvents(entityID, nil)
	if err != nil {
		return nil, err
	}
	return toTimeline(events), nil
}

func (s *jsonlEventStore) QueryEvents(filter models.EventFilter) ([]models.Event, error) {
	events, err := s.read(func(e models.Event) bool {
		return matchesEventFilter(e, filter)
	})
	if err != nil {
		return nil, err
	}
	return keepMostRecent(events, filter.Limit), nil
}

func (s *jsonlEventStore) CountEvents(since *time.Time, groupBy string) (map[string]int, error) {
	events, err := s.QueryEvents(models.EventFilter{Since: since})
	if err != nil {
		return nil, err
	}
	return countEvents(events, groupBy)
}

// Close closes the underlying log file.
func (s *jsonlEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}
