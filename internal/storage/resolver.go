package storage

import (
	"path"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/pkg/models"
)

// AliasResolver maps free-text aliases, names, slugs and [[links]] to
// canonical entity ids. Its index is rebuilt whenever the entity store's
// corpus version changes.
type AliasResolver struct {
	store EntityStore

	mu      sync.RWMutex
	version string
	built   bool
	ids     map[string]struct{}
	aliases map[string][]string
	slugs   map[string][]string
}

// NewAliasResolver creates a resolver over the given store. The index is
// built on first use.
func NewAliasResolver(store EntityStore) *AliasResolver {
	return &AliasResolver{store: store}
}

// Resolve returns the canonical id for ref. It reports false when the
// reference is empty, unknown, or ambiguous between several entities.
func (r *AliasResolver) Resolve(ref string) (string, bool) {
	ref = cleanRef(ref)
	if ref == "" {
		return "", false
	}

	r.refresh()

	r.mu.RLock()
	defer r.mu.RUnlock()

	id := normalizeID(ref)
	if _, ok := r.ids[id]; ok {
		return id, true
	}
	if _, ok := r.ids["entity/"+id]; ok {
		return "entity/" + id, true
	}

	if ids := r.aliases[CanonicalizeForMatch(ref)]; len(ids) == 1 {
		return ids[0], true
	} else if len(ids) > 1 {
		logger.Debug("ambiguous reference %q matches %v", ref, ids)
		return "", false
	}

	if ids := r.slugs[Slugify(path.Base(ref))]; len(ids) == 1 {
		return ids[0], true
	}
	return "", false
}

// Known reports whether id is a canonical id in the current corpus.
func (r *AliasResolver) Known(id string) bool {
	r.refresh()
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[normalizeID(id)]
	return ok
}

func (r *AliasResolver) refresh() {
	version, err := r.store.Version()
	if err != nil {
		logger.Warn("resolver: %v", err)
		return
	}

	r.mu.RLock()
	fresh := r.built && version == r.version
	r.mu.RUnlock()
	if fresh {
		return
	}

	entities, err := r.store.List()
	if err != nil {
		logger.Warn("resolver: %v", err)
		return
	}

	ids := make(map[string]struct{}, len(entities))
	aliases := make(map[string][]string)
	slugs := make(map[string][]string)
	for _, e := range entities {
		ids[e.ID] = struct{}{}
		for _, surface := range surfaceForms(e) {
			key := CanonicalizeForMatch(surface)
			if key == "" {
				continue
			}
			aliases[key] = appendUnique(aliases[key], e.ID)
		}
		slug := Slugify(path.Base(e.ID))
		slugs[slug] = appendUnique(slugs[slug], e.ID)
	}

	r.mu.Lock()
	r.ids, r.aliases, r.slugs = ids, aliases, slugs
	r.version = version
	r.built = true
	r.mu.Unlock()
}

// surfaceForms lists every name an entity may be referred to by.
func surfaceForms(e models.Entity) []string {
	forms := []string{e.Name}
	if title := stringValue(e.Metadata["title"]); title != "" && title != e.Name {
		forms = append(forms, title)
	}
	return append(forms, e.Aliases...)
}

// cleanRef strips wiki-link decoration: "[[Jane Doe|Jane]]" -> "Jane Doe".
func cleanRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "[[") && strings.HasSuffix(ref, "]]") {
		ref = strings.TrimSuffix(strings.TrimPrefix(ref, "[["), "]]")
		if i := strings.Index(ref, "|"); i >= 0 {
			ref = ref[:i]
		}
	}
	return strings.TrimSpace(ref)
}

// CanonicalizeForMatch lowercases and collapses whitespace and punctuation so
// surface forms and query text compare consistently.
func CanonicalizeForMatch(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Slugify turns a display name into a file slug: "Jane Doe" -> "jane-doe".
func Slugify(s string) string {
	return strings.ReplaceAll(CanonicalizeForMatch(s), " ", "-")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	list = append(list, v)
	sort.Strings(list)
	return list
}
