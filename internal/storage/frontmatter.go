package storage

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/brain/pkg/models"
	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// createdLayouts are the accepted formats of the "created" metadata key.
var createdLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// splitFrontMatter separates a YAML header delimited by --- lines from the
// body. A document without a header returns nil metadata and the full text.
func splitFrontMatter(data []byte) ([]byte, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, text, nil
	}
	rest := text[len(frontMatterDelim)+1:]

	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		if strings.HasPrefix(rest, frontMatterDelim) {
			return nil, strings.TrimPrefix(strings.TrimPrefix(rest, frontMatterDelim), "\n"), nil
		}
		return nil, "", fmt.Errorf("unterminated front matter")
	}

	header := rest[:end]
	body := rest[end+1+len(frontMatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	return []byte(header), body, nil
}

// parseEntity decodes a markdown document with a YAML header into an Entity.
// id is the record's canonical id; it also supplies the kind when the header
// has no "type" key.
func parseEntity(id string, data []byte) (*models.Entity, error) {
	header, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", id, err)
	}

	meta := make(map[string]any)
	if len(header) > 0 {
		if err := yaml.Unmarshal(header, &meta); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", id, err)
		}
		if meta == nil {
			meta = make(map[string]any)
		}
	}

	e := &models.Entity{
		ID:       id,
		Metadata: meta,
		Body:     body,
	}

	if t, ok := meta["type"].(string); ok && t != "" {
		e.Kind = models.EntityKind(t)
	} else {
		e.Kind = kindFromID(id)
	}

	switch {
	case stringValue(meta["name"]) != "":
		e.Name = stringValue(meta["name"])
	case stringValue(meta["title"]) != "":
		e.Name = stringValue(meta["title"])
	default:
		e.Name = path.Base(id)
	}

	e.Aliases = stringList(meta["aliases"])

	if raw, ok := meta["relationships"]; ok {
		e.Relationships = parseRelationships(raw)
		delete(meta, "relationships")
	}

	if created, ok := parseCreated(meta["created"]); ok {
		e.CreatedAt = created
	}

	return e, nil
}

// parseRelationships reads the relationships header: a mapping from label to
// a list of plain references or {target, type, strength} records. Labels are
// visited in sorted order so edge order is stable across parses.
func parseRelationships(raw any) []models.Relationship {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var rels []models.Relationship
	for _, label := range labels {
		items, ok := m[label].([]any)
		if !ok {
			items = []any{m[label]}
		}
		for _, item := range items {
			switch v := item.(type) {
			case string:
				rels = append(rels, models.Relationship{Target: strings.TrimSpace(v), Type: label})
			case map[string]any:
				rel := models.Relationship{
					Target:   strings.TrimSpace(stringValue(v["target"])),
					Type:     label,
					Strength: v["strength"],
				}
				if t := stringValue(v["type"]); t != "" {
					rel.Type = t
				}
				rels = append(rels, rel)
			case nil:
				rels = append(rels, models.Relationship{Type: label})
			default:
				rels = append(rels, models.Relationship{Target: fmt.Sprint(v), Type: label})
			}
		}
	}
	return rels
}

// formatEntity serializes an entity back to its header-plus-body form.
func formatEntity(e *models.Entity) ([]byte, error) {
	meta := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if _, ok := meta["type"]; !ok && e.Kind != "" {
		meta["type"] = string(e.Kind)
	}
	if len(e.Relationships) > 0 {
		grouped := make(map[string][]any)
		for _, r := range e.Relationships {
			if r.Strength != nil {
				grouped[r.Type] = append(grouped[r.Type], map[string]any{"target": r.Target, "strength": r.Strength})
				continue
			}
			grouped[r.Type] = append(grouped[r.Type], r.Target)
		}
		meta["relationships"] = grouped
	}

	header, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", e.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontMatterDelim + "\n")
	buf.WriteString(e.Body)
	return buf.Bytes(), nil
}

func parseCreated(v any) (time.Time, bool) {
	switch c := v.(type) {
	case time.Time:
		return c.UTC(), true
	case string:
		for _, layout := range createdLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(c)); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// kindFromID derives the kind from an id shaped like entity/<kind>/<slug>.
func kindFromID(id string) models.EntityKind {
	parts := strings.Split(id, "/")
	if len(parts) >= 3 {
		return models.EntityKind(parts[len(parts)-2])
	}
	return ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func stringList(v any) []string {
	switch l := v.(type) {
	case string:
		if l == "" {
			return nil
		}
		return []string{l}
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
