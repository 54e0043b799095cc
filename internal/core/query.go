package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
)

// DefaultLimit is the number of results returned when none is requested.
const DefaultLimit = 10

// QueryOptions controls a combined keyword and graph query.
type QueryOptions struct {
	Limit int
	Graph bool
	Decay float64
	Depth int
}

// DefaultQueryOptions returns the options used when a caller sets nothing.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Limit: DefaultLimit, Graph: true, Decay: DefaultDecay, Depth: DefaultDepth}
}

// QueryEngine answers free-text questions against the entity corpus and
// inspects single entities.
type QueryEngine interface {
	// Query runs keyword search, optionally expands the top results along
	// relationships, and merges both into one ranked list.
	Query(text string, opts QueryOptions) (*models.QueryResult, error)

	// Context returns an entity's relationships and, when withNeighbors is
	// set, its one-hop neighbors. Returns ErrEntityNotFound if the entity
	// cannot be loaded or resolved.
	Context(entityID string, withNeighbors bool) (*models.EntityContext, error)
}

type queryEngine struct {
	search   SearchIndex
	graph    GraphExpander
	entities EntityReader
	resolver AliasResolver
}

// NewQueryEngine creates a QueryEngine over the given search index, graph
// expander, entity reader and resolver.
func NewQueryEngine(search SearchIndex, graph GraphExpander, entities EntityReader, resolver AliasResolver) QueryEngine {
	return &queryEngine{
		search:   search,
		graph:    graph,
		entities: entities,
		resolver: resolver,
	}
}

func (q *queryEngine) Query(text string, opts QueryOptions) (*models.QueryResult, error) {
	start := time.Now()

	if opts.Limit < 1 {
		opts.Limit = DefaultLimit
	}
	graphOpts, err := GraphOptions{Decay: opts.Decay, Depth: opts.Depth}.normalized()
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", text, err)
	}

	fetch := opts.Limit
	if opts.Graph {
		fetch = 2 * opts.Limit
	}
	seeds, err := q.search.Search(text, fetch)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", text, err)
	}

	result := &models.QueryResult{
		Query:     text,
		SeedCount: len(seeds),
		Warnings:  []string{},
	}

	var merged []models.SearchResult
	if opts.Graph && len(seeds) > 0 {
		top := seeds
		if len(top) > opts.Limit {
			top = top[:opts.Limit]
		}
		expansion, err := q.graph.Expand(top, graphOpts)
		if err != nil {
			return nil, fmt.Errorf("querying %q: %w", text, err)
		}
		result.GraphExpanded = true
		result.Warnings = append(result.Warnings, expansion.Warnings...)
		merged = MergeResults(seeds, expansion.Neighbors)
	} else {
		merged = MergeResults(seeds, nil)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	result.Results = merged
	result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	return result, nil
}

// MergeResults combines keyword results with graph neighbors. Base results
// keep their order; new neighbors are appended. When both lists contain the
// same entity the higher score is kept, the source becomes brain+graph, and
// match reasons are unioned. The inputs are not modified.
func MergeResults(base, additions []models.SearchResult) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(base)+len(additions))
	index := make(map[string]int, len(base)+len(additions))

	add := func(r models.SearchResult) {
		r.MatchReasons = append([]string(nil), r.MatchReasons...)
		if i, ok := index[r.EntityID]; ok {
			out[i].AddReasons(r.MatchReasons)
			if r.Score > out[i].Score {
				out[i].Score = r.Score
			}
			return
		}
		index[r.EntityID] = len(out)
		out = append(out, r)
	}
	for _, r := range base {
		add(r)
	}

	for _, n := range additions {
		i, ok := index[n.EntityID]
		if !ok {
			add(n)
			continue
		}
		existing := &out[i]
		if n.Score > existing.Score {
			existing.Score = n.Score
		}
		existing.Source = models.SourceBrainGraph
		existing.AddReasons(n.MatchReasons)
		if n.Via != "" {
			existing.Via = n.Via
		}
		if n.RelationshipType != "" {
			existing.RelationshipType = n.RelationshipType
		}
	}
	return out
}

func (q *queryEngine) Context(entityID string, withNeighbors bool) (*models.EntityContext, error) {
	entity, err := q.load(entityID)
	if err != nil {
		return nil, err
	}

	ctx := &models.EntityContext{
		EntityID:      entity.ID,
		Kind:          entity.Kind,
		Name:          entity.Name,
		Relationships: make([]models.RelationshipView, 0, len(entity.Relationships)),
		Warnings:      []string{},
	}
	warned := make(map[string]struct{})
	warn := func(msg string) {
		if _, dup := warned[msg]; dup {
			return
		}
		warned[msg] = struct{}{}
		ctx.Warnings = append(ctx.Warnings, msg)
	}

	for _, r := range entity.Relationships {
		if r.Target == "" {
			continue
		}
		view := models.RelationshipView{Type: r.Type, Target: r.Target, Strength: r.Strength}
		if id, ok := q.resolver.Resolve(r.Target); ok {
			view.ResolvedID = id
		} else {
			warn(fmt.Sprintf("Unresolved: '%s' in %s", r.Target, entity.ID))
		}
		ctx.Relationships = append(ctx.Relationships, view)
	}

	if withNeighbors {
		seed := models.SearchResult{EntityID: entity.ID, Score: 1.0}
		expansion, err := q.graph.Expand([]models.SearchResult{seed}, GraphOptions{Decay: DefaultDecay, Depth: 1})
		if err != nil {
			return nil, fmt.Errorf("getting context for %s: %w", entity.ID, err)
		}
		ctx.Neighbors = expansion.Neighbors
		for _, w := range expansion.Warnings {
			warn(w)
		}
	}
	return ctx, nil
}

// load fetches an entity by exact id, falling back to alias resolution.
func (q *queryEngine) load(ref string) (*models.Entity, error) {
	entity, err := q.entities.Get(ref)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, ErrEntityNotFound) {
		return nil, fmt.Errorf("getting context for %s: %w", ref, err)
	}

	id, ok := q.resolver.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("getting context for %s: %w", ref, ErrEntityNotFound)
	}
	entity, err = q.entities.Get(id)
	if err != nil {
		return nil, fmt.Errorf("getting context for %s: %w", ref, err)
	}
	return entity, nil
}
