package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/pkg/models"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("entity not found")

const entityExt = ".md"

// EntityStore defines the interface for the file-backed entity corpus.
// Each entity is one markdown file with a YAML header under the entities
// directory; its id is the path relative to the base directory without the
// extension (e.g. entity/person/jane-doe).
type EntityStore interface {
	// Get parses one entity by id. Returns ErrNotFound if absent.
	Get(id string) (*models.Entity, error)

	// List parses every entity. Records that cannot be parsed are skipped
	// with a logged warning.
	List() ([]models.Entity, error)

	// Put writes an entity back to its file, creating directories as needed.
	Put(entity *models.Entity) error

	// Version returns an etag for the whole corpus that changes whenever a
	// file is added, removed or modified.
	Version() (string, error)
}

type fileEntityStore struct {
	basePath    string
	entitiesDir string
}

// NewEntityStore creates an EntityStore rooted at basePath, reading entities
// from the entitiesDir subdirectory (default "entity").
func NewEntityStore(basePath, entitiesDir string) EntityStore {
	if entitiesDir == "" {
		entitiesDir = "entity"
	}
	return &fileEntityStore{basePath: basePath, entitiesDir: entitiesDir}
}

func (s *fileEntityStore) root() string {
	return filepath.Join(s.basePath, s.entitiesDir)
}

// normalizeID trims decorations callers commonly add to ids.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "/")
	id = strings.TrimSuffix(id, entityExt)
	return filepath.ToSlash(filepath.Clean(id))
}

func (s *fileEntityStore) pathFor(id string) (string, error) {
	id = normalizeID(id)
	if id == "." || id == "" {
		return "", fmt.Errorf("entity id must not be empty")
	}
	for _, part := range strings.Split(id, "/") {
		if part == ".." {
			return "", fmt.Errorf("entity id %q escapes the base directory", id)
		}
	}
	return filepath.Join(s.basePath, filepath.FromSlash(id)+entityExt), nil
}

func (s *fileEntityStore) idFor(path string) (string, error) {
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), entityExt), nil
}

func (s *fileEntityStore) Get(id string) (*models.Entity, error) {
	p, err := s.pathFor(id)
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return s.read(normalizeID(id), p)
}

func (s *fileEntityStore) read(id, p string) (*models.Entity, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading entity %s: %w", id, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading entity %s: %w", id, err)
	}

	e, err := parseEntity(id, data)
	if err != nil {
		return nil, err
	}
	e.Path = p
	if e.CreatedAt.IsZero() {
		e.CreatedAt = info.ModTime().UTC()
	}
	return e, nil
}

func (s *fileEntityStore) List() ([]models.Entity, error) {
	var entities []models.Entity
	err := s.walk(func(p string, _ fs.FileInfo) {
		id, err := s.idFor(p)
		if err != nil {
			logger.Warn("skipping %s: %v", p, err)
			return
		}
		e, err := s.read(id, p)
		if err != nil {
			logger.Warn("skipping malformed entity %s: %v", id, err)
			return
		}
		entities = append(entities, *e)
	})
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities, nil
}

func (s *fileEntityStore) Put(entity *models.Entity) error {
	if entity == nil {
		return fmt.Errorf("putting entity: entity is nil")
	}
	p, err := s.pathFor(entity.ID)
	if err != nil {
		return fmt.Errorf("putting entity: %w", err)
	}

	data, err := formatEntity(entity)
	if err != nil {
		return fmt.Errorf("putting entity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("putting entity %s: creating directory: %w", entity.ID, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("putting entity %s: %w", entity.ID, err)
	}
	return nil
}

func (s *fileEntityStore) Version() (string, error) {
	var count int
	var newest int64
	var size int64
	err := s.walk(func(_ string, info fs.FileInfo) {
		count++
		size += info.Size()
		if m := info.ModTime().UnixNano(); m > newest {
			newest = m
		}
	})
	if err != nil {
		return "", fmt.Errorf("computing corpus version: %w", err)
	}
	return fmt.Sprintf("%d-%d-%d", count, size, newest), nil
}

// walk calls fn for every entity file under the entities directory. A
// missing directory is an empty corpus, not an error.
func (s *fileEntityStore) walk(fn func(path string, info fs.FileInfo)) error {
	root := s.root()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != entityExt {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Warn("skipping %s: %v", p, err)
			return nil
		}
		fn(p, info)
		return nil
	})
}
