package models

// SearchSource identifies how a result was found.
type SearchSource string

const (
	SourceAlias      SearchSource = "alias"
	SourceContent    SearchSource = "content"
	SourceGraph      SearchSource = "graph"
	SourceBrainGraph SearchSource = "brain+graph"
)

// SearchResult is a ranked match. EntityID is unique within one result list.
type SearchResult struct {
	EntityID         string       `json:"entity_id"`
	Score            float64      `json:"score"`
	Source           SearchSource `json:"source"`
	MatchReasons     []string     `json:"match_reasons"`
	Via              string       `json:"via"`
	RelationshipType string       `json:"relationship_type"`
}

// AddReason appends a match reason unless the exact string is already present.
func (r *SearchResult) AddReason(reason string) {
	for _, existing := range r.MatchReasons {
		if existing == reason {
			return
		}
	}
	r.MatchReasons = append(r.MatchReasons, reason)
}

// AddReasons appends each reason not already present, preserving order.
func (r *SearchResult) AddReasons(reasons []string) {
	for _, reason := range reasons {
		r.AddReason(reason)
	}
}

// QueryResult is the combined answer returned by the query orchestrator.
type QueryResult struct {
	Query         string         `json:"query"`
	Results       []SearchResult `json:"results"`
	SeedCount     int            `json:"seed_count"`
	GraphExpanded bool           `json:"graph_expanded"`
	Warnings      []string       `json:"warnings"`
	LatencyMS     float64        `json:"latency_ms"`
}

// RelationshipView is a relationship as seen from its owning entity, with
// the target resolved when possible.
type RelationshipView struct {
	Type       string `json:"type"`
	Target     string `json:"target"`
	ResolvedID string `json:"resolved_id,omitempty"`
	Strength   any    `json:"strength,omitempty"`
}

// EntityContext is the inspection view of a single entity.
type EntityContext struct {
	EntityID      string             `json:"entity_id"`
	Kind          EntityKind         `json:"kind"`
	Name          string             `json:"name"`
	Relationships []RelationshipView `json:"relationships"`
	Neighbors     []SearchResult     `json:"neighbors,omitempty"`
	Warnings      []string           `json:"warnings"`
}
