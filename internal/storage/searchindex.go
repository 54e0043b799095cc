package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/pkg/models"
)

// Field weights for content matches. A term found in several fields counts
// once, with the heaviest field.
const (
	weightName = 3.0
	weightMeta = 2.0
	weightBody = 1.0

	// Content-only matches never outrank an exact alias hit.
	maxContentScore = 0.8
)

type indexedDoc struct {
	id   string
	name map[string]struct{}
	meta map[string]struct{}
	body map[string]struct{}
}

// KeywordIndex is the keyword search index over the entity corpus. Names and
// aliases are compiled into an Aho-Corasick automaton so every alias
// mentioned anywhere in the query is found in one pass; remaining query
// terms are matched against entity names, metadata values and bodies.
type KeywordIndex struct {
	store     EntityStore
	stopwords *stopwords.Stopwords

	mu           sync.RWMutex
	version      string
	built        bool
	ac           *ahocorasick.Automaton
	patterns     []string
	patternToIDs [][]string
	docs         []indexedDoc
}

// NewKeywordIndex creates a search index over the given store. The index is
// built on first use and rebuilt when the corpus version changes.
func NewKeywordIndex(store EntityStore) *KeywordIndex {
	return &KeywordIndex{
		store:     store,
		stopwords: stopwords.MustGet("en"),
	}
}

// Search returns up to limit entities matching query, best first.
func (ix *KeywordIndex) Search(query string, limit int) ([]models.SearchResult, error) {
	canonical := CanonicalizeForMatch(query)
	if canonical == "" || limit <= 0 {
		return nil, nil
	}

	if err := ix.refresh(); err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make(map[string]*models.SearchResult)
	order := []string{}
	get := func(id string, source models.SearchSource) *models.SearchResult {
		r, ok := hits[id]
		if !ok {
			r = &models.SearchResult{EntityID: id, Source: source}
			hits[id] = r
			order = append(order, id)
		}
		return r
	}

	for _, m := range ix.aliasMatches(canonical) {
		pattern := ix.patterns[m]
		score := 0.6 + 0.4*float64(len(pattern))/float64(len(canonical))
		if pattern == canonical {
			score = 1.0
		}
		for _, id := range ix.patternToIDs[m] {
			r := get(id, models.SourceAlias)
			r.Source = models.SourceAlias
			if score > r.Score {
				r.Score = score
			}
			r.AddReason(fmt.Sprintf("alias match: '%s'", pattern))
		}
	}

	terms := ix.terms(canonical)
	if len(terms) > 0 {
		for _, doc := range ix.docs {
			total := 0.0
			var reasons []string
			for _, term := range terms {
				switch {
				case has(doc.name, term):
					total += weightName
					reasons = append(reasons, fmt.Sprintf("content match: '%s' in name", term))
				case has(doc.meta, term):
					total += weightMeta
					reasons = append(reasons, fmt.Sprintf("content match: '%s' in metadata", term))
				case has(doc.body, term):
					total += weightBody
					reasons = append(reasons, fmt.Sprintf("content match: '%s' in body", term))
				}
			}
			if total == 0 {
				continue
			}
			score := maxContentScore * total / (weightName * float64(len(terms)))
			r := get(doc.id, models.SourceContent)
			if score > r.Score {
				r.Score = score
			}
			for _, reason := range reasons {
				r.AddReason(reason)
			}
		}
	}

	results := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *hits[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EntityID < results[j].EntityID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// aliasMatches returns the pattern indexes found in the canonical query on
// word boundaries.
func (ix *KeywordIndex) aliasMatches(canonical string) []int {
	if ix.ac == nil {
		return nil
	}
	haystack := []byte(canonical)
	seen := make(map[int]struct{})
	var out []int
	for _, m := range ix.ac.FindAllOverlapping(haystack) {
		if m.Start > 0 && haystack[m.Start-1] != ' ' {
			continue
		}
		if m.End < len(haystack) && haystack[m.End] != ' ' {
			continue
		}
		if _, dup := seen[m.PatternID]; dup {
			continue
		}
		seen[m.PatternID] = struct{}{}
		out = append(out, m.PatternID)
	}
	return out
}

// terms splits the canonical query into distinct non-stopword tokens.
func (ix *KeywordIndex) terms(canonical string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(canonical) {
		if len(tok) < 2 || ix.stopwords.Contains(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func (ix *KeywordIndex) refresh() error {
	version, err := ix.store.Version()
	if err != nil {
		return err
	}

	ix.mu.RLock()
	fresh := ix.built && version == ix.version
	ix.mu.RUnlock()
	if fresh {
		return nil
	}

	entities, err := ix.store.List()
	if err != nil {
		return err
	}

	patternIndex := make(map[string]int)
	var patterns []string
	var patternToIDs [][]string
	docs := make([]indexedDoc, 0, len(entities))

	for _, e := range entities {
		for _, surface := range surfaceForms(e) {
			key := CanonicalizeForMatch(surface)
			if key == "" {
				continue
			}
			if idx, ok := patternIndex[key]; ok {
				patternToIDs[idx] = appendUnique(patternToIDs[idx], e.ID)
				continue
			}
			patternIndex[key] = len(patterns)
			patterns = append(patterns, key)
			patternToIDs = append(patternToIDs, []string{e.ID})
		}

		docs = append(docs, indexedDoc{
			id:   e.ID,
			name: wordSet(strings.Join(surfaceForms(e), " ")),
			meta: wordSet(metadataText(e.Metadata)),
			body: wordSet(e.Body),
		})
	}

	var ac *ahocorasick.Automaton
	if len(patterns) > 0 {
		ac, err = ahocorasick.NewBuilder().
			AddStrings(patterns).
			SetPrefilter(true).
			Build()
		if err != nil {
			return fmt.Errorf("building alias automaton: %w", err)
		}
	}

	ix.mu.Lock()
	ix.ac, ix.patterns, ix.patternToIDs, ix.docs = ac, patterns, patternToIDs, docs
	ix.version = version
	ix.built = true
	ix.mu.Unlock()

	logger.Debug("search index rebuilt: %d entities, %d surface forms", len(docs), len(patterns))
	return nil
}

func metadataText(meta map[string]any) string {
	var parts []string
	for k, v := range meta {
		if models.IsReservedKey(k) {
			continue
		}
		switch val := v.(type) {
		case []any:
			for _, item := range val {
				parts = append(parts, stringValue(item))
			}
		case map[string]any:
			continue
		default:
			parts = append(parts, stringValue(val))
		}
	}
	return strings.Join(parts, " ")
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(CanonicalizeForMatch(text)) {
		set[w] = struct{}{}
	}
	return set
}

func has(set map[string]struct{}, term string) bool {
	_, ok := set[term]
	return ok
}
