package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/valter-silva-au/brain/pkg/models"
)

// Default traversal parameters. MaxDepth bounds the configured default
// depth only; callers may request deeper traversals explicitly.
const (
	DefaultDecay = 0.5
	DefaultDepth = 1
	MaxDepth     = 5
)

// ErrInvalidOptions is returned when traversal or query options are out of
// range.
var ErrInvalidOptions = errors.New("invalid options")

// GraphOptions controls relationship expansion. Zero values select the
// defaults.
type GraphOptions struct {
	// Decay is the per-hop score multiplier, in (0,1].
	Decay float64
	// Depth is the number of relationship hops to follow, >= 1.
	Depth int
}

func (o GraphOptions) normalized() (GraphOptions, error) {
	if o.Decay == 0 {
		o.Decay = DefaultDecay
	}
	if o.Depth == 0 {
		o.Depth = DefaultDepth
	}
	if math.IsNaN(o.Decay) || o.Decay <= 0 || o.Decay > 1 {
		return o, fmt.Errorf("%w: decay %v must be in (0, 1]", ErrInvalidOptions, o.Decay)
	}
	if o.Depth < 1 {
		return o, fmt.Errorf("%w: depth %d must be at least 1", ErrInvalidOptions, o.Depth)
	}
	return o, nil
}

// GraphExpansion is the outcome of expanding a set of seeds.
type GraphExpansion struct {
	// Neighbors are sorted by score descending, discovery order breaking ties.
	Neighbors []models.SearchResult
	Warnings  []string
}

// GraphExpander expands seed results along relationship edges.
type GraphExpander interface {
	Expand(seeds []models.SearchResult, opts GraphOptions) (*GraphExpansion, error)
}

type graphTraversal struct {
	entities EntityReader
	resolver AliasResolver
}

// NewGraphTraversal creates a GraphExpander reading relationships from
// entities and resolving edge targets with resolver. All caches live for a
// single Expand call, so the returned value is safe for concurrent use.
func NewGraphTraversal(entities EntityReader, resolver AliasResolver) GraphExpander {
	return &graphTraversal{entities: entities, resolver: resolver}
}

type frontierItem struct {
	id    string
	score float64
	via   string
}

// expansion holds the state of one Expand call.
type expansion struct {
	g        *graphTraversal
	cache    map[string]*models.Entity
	warnings []string
	warned   map[string]struct{}
}

func (x *expansion) warn(msg string) {
	if _, dup := x.warned[msg]; dup {
		return
	}
	x.warned[msg] = struct{}{}
	x.warnings = append(x.warnings, msg)
}

// load parses an entity once per call. Missing or unreadable entities are
// warnings, never failures.
func (x *expansion) load(id string) *models.Entity {
	if e, ok := x.cache[id]; ok {
		return e
	}
	e, err := x.g.entities.Get(id)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			x.warn(fmt.Sprintf("Missing: '%s'", id))
		} else {
			x.warn(fmt.Sprintf("Unreadable: '%s': %v", id, err))
		}
		e = nil
	}
	x.cache[id] = e
	return e
}

// Expand runs a level-synchronous breadth-first traversal from seeds.
// Seeds are never rediscovered as neighbors. A neighbor reached by several
// edges keeps its best score and records every path in its match reasons.
func (g *graphTraversal) Expand(seeds []models.SearchResult, opts GraphOptions) (*GraphExpansion, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, fmt.Errorf("expanding graph: %w", err)
	}

	x := &expansion{
		g:      g,
		cache:  make(map[string]*models.Entity),
		warned: make(map[string]struct{}),
	}

	visited := make(map[string]struct{}, len(seeds))
	frontier := make([]frontierItem, 0, len(seeds))
	for _, s := range seeds {
		if _, dup := visited[s.EntityID]; dup {
			continue
		}
		visited[s.EntityID] = struct{}{}
		frontier = append(frontier, frontierItem{id: s.EntityID, score: s.Score})
	}
	isSeed := make(map[string]struct{}, len(visited))
	for id := range visited {
		isSeed[id] = struct{}{}
	}

	found := make(map[string]*models.SearchResult)
	var order []string

	for level := 0; level < opts.Depth && len(frontier) > 0; level++ {
		levelDecay := math.Pow(opts.Decay, float64(level+1))
		var discovered []string

		for _, item := range frontier {
			entity := x.load(item.id)
			if entity == nil {
				continue
			}
			viaEntity := item.via
			if viaEntity == "" {
				viaEntity = item.id
			}

			for _, rel := range entity.Relationships {
				if strings.TrimSpace(rel.Target) == "" {
					continue
				}
				targetID, ok := g.resolver.Resolve(rel.Target)
				if !ok {
					x.warn(fmt.Sprintf("Unresolved: '%s' in %s", rel.Target, item.id))
					continue
				}
				if targetID == item.id {
					continue
				}
				if _, seed := isSeed[targetID]; seed {
					continue
				}

				score := item.score * edgeMultiplier(rel.Strength, levelDecay)
				reason := fmt.Sprintf("via %s (%s)", viaEntity, rel.Type)

				if existing, ok := found[targetID]; ok {
					if score > existing.Score {
						existing.Score = score
						existing.Via = viaEntity
						existing.RelationshipType = rel.Type
					}
					if !containsString(existing.MatchReasons, reason) {
						existing.AddReason("also " + reason)
					}
					continue
				}

				found[targetID] = &models.SearchResult{
					EntityID:         targetID,
					Score:            score,
					Source:           models.SourceGraph,
					MatchReasons:     []string{reason},
					Via:              viaEntity,
					RelationshipType: rel.Type,
				}
				order = append(order, targetID)
				visited[targetID] = struct{}{}
				discovered = append(discovered, targetID)
			}
		}

		// A score raised at a later level is not propagated to descendants
		// already expanded from the earlier, lower score.
		frontier = frontier[:0:0]
		if level < opts.Depth-1 {
			for _, id := range discovered {
				r := found[id]
				frontier = append(frontier, frontierItem{id: id, score: r.Score, via: r.Via})
			}
		}
	}

	neighbors := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		neighbors = append(neighbors, *found[id])
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Score > neighbors[j].Score
	})

	return &GraphExpansion{Neighbors: neighbors, Warnings: x.warnings}, nil
}

// edgeMultiplier returns the relationship's strength override when it is a
// number (or numeric string) in [0,1], and fallback otherwise.
func edgeMultiplier(strength any, fallback float64) float64 {
	var v float64
	switch s := strength.(type) {
	case nil:
		return fallback
	case float64:
		v = s
	case float32:
		v = float64(s)
	case int:
		v = float64(s)
	case int64:
		v = float64(s)
	case uint64:
		v = float64(s)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fallback
		}
		v = parsed
	default:
		return fallback
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fallback
	}
	return v
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
