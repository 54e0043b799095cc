// Package mcp provides an MCP (Model Context Protocol) server that exposes
// Brain queries and entity history as tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

// Services are the Brain services exposed as tools. Temporal, Events and
// Stats may be nil when the event log is unavailable.
type Services struct {
	Query    core.QueryEngine
	Temporal core.TemporalQuerier
	Resolver core.AliasResolver
	Events   observability.EventStore
	Stats    observability.StatsCalculator
	Defaults core.QueryOptions
}

// Server wraps Brain services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
	now    func() time.Time
}

// NewServer creates a new MCP server over the given services.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if svc.Defaults.Limit == 0 {
		svc.Defaults = core.DefaultQueryOptions()
	}

	s := &Server{svc: svc, now: time.Now}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "brain", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type queryInput struct {
	Query string   `json:"query" jsonschema:"required,free-text question, e.g. what is Jane working on"`
	Limit int      `json:"limit,omitempty" jsonschema:"maximum number of results (default 10)"`
	Graph *bool    `json:"graph,omitempty" jsonschema:"expand top matches along relationships (default true)"`
	Decay *float64 `json:"decay,omitempty" jsonschema:"per-hop score multiplier in (0,1] (default 0.5)"`
	Depth int      `json:"depth,omitempty" jsonschema:"relationship hops to follow, 1 to 5 (default 1)"`
}

type entityInput struct {
	Entity string `json:"entity" jsonschema:"required,entity id (e.g. entity/person/jane-doe) or alias"`
}

type contextInput struct {
	Entity    string `json:"entity" jsonschema:"required,entity id or alias"`
	Neighbors bool   `json:"neighbors,omitempty" jsonschema:"include one-hop neighbors"`
}

type timelineOutput struct {
	EntityID string                 `json:"entity_id"`
	Timeline []models.TimelineEntry `json:"timeline"`
	Count    int                    `json:"count"`
}

type entityAtInput struct {
	Entity string `json:"entity" jsonschema:"required,entity id or alias"`
	At     string `json:"at" jsonschema:"required,RFC3339 time, 2006-01-02 date, or relative like 7d or 24h"`
}

type entityAtOutput struct {
	EntityID string                 `json:"entity_id"`
	At       string                 `json:"at"`
	Existed  bool                   `json:"existed"`
	Snapshot *models.EntitySnapshot `json:"snapshot,omitempty"`
}

type compareInput struct {
	Entity string `json:"entity" jsonschema:"required,entity id or alias"`
	From   string `json:"from" jsonschema:"required,earlier time (RFC3339, date, or relative)"`
	To     string `json:"to" jsonschema:"required,later time (RFC3339, date, or relative)"`
}

type compareOutput struct {
	EntityID string             `json:"entity_id"`
	Diffs    []models.FieldDiff `json:"diffs"`
	Count    int                `json:"count"`
}

type fieldHistoryInput struct {
	Entity string `json:"entity" jsonschema:"required,entity id or alias"`
	Field  string `json:"field" jsonschema:"required,metadata field name, e.g. status"`
	Since  string `json:"since,omitempty" jsonschema:"only changes at or after this time"`
}

type fieldHistoryOutput struct {
	EntityID string                     `json:"entity_id"`
	Field    string                     `json:"field"`
	History  []models.FieldHistoryEntry `json:"history"`
	Count    int                        `json:"count"`
}

type eventStatsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window start, e.g. 7d, 30d or 2025-01-01. Defaults to all events."`
}

type eventStatsOutput struct {
	EventCount  int                         `json:"event_count"`
	ByType      map[string]int              `json:"by_type"`
	ByActor     map[string]int              `json:"by_actor"`
	TopEntities []observability.EntityCount `json:"top_entities"`
	OldestEvent string                      `json:"oldest_event,omitempty"`
	NewestEvent string                      `json:"newest_event,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "query",
		Description: "Search the knowledge base. Keyword matches are expanded along entity relationships and merged into one ranked list with match reasons.",
	}, s.handleQuery)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "entity_context",
		Description: "Get an entity's relationships (with resolved targets) and optionally its one-hop neighbors.",
	}, s.handleEntityContext)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "entity_timeline",
		Description: "List an entity's recorded events in chronological order.",
	}, s.handleEntityTimeline)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "entity_at",
		Description: "Reconstruct an entity's metadata as it was at a point in time.",
	}, s.handleEntityAt)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "compare_states",
		Description: "List the metadata fields of an entity that differ between two points in time.",
	}, s.handleCompareStates)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "field_history",
		Description: "List every recorded change to one metadata field of an entity, with old and new values.",
	}, s.handleFieldHistory)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "event_stats",
		Description: "Get event counts grouped by type and actor, and the most active entities.",
	}, s.handleEventStats)
}

// --- Tool handlers ---

func (s *Server) handleQuery(_ context.Context, _ *gomcp.CallToolRequest, input queryInput) (*gomcp.CallToolResult, models.QueryResult, error) {
	if input.Query == "" {
		return errorResult("query is required"), models.QueryResult{}, nil
	}

	opts := s.svc.Defaults
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	if input.Graph != nil {
		opts.Graph = *input.Graph
	}
	if input.Decay != nil {
		opts.Decay = *input.Decay
	}
	if input.Depth != 0 {
		opts.Depth = input.Depth
	}

	result, err := s.svc.Query.Query(input.Query, opts)
	if err != nil {
		return errorResult(err.Error()), models.QueryResult{}, nil
	}
	return nil, *result, nil
}

func (s *Server) handleEntityContext(_ context.Context, _ *gomcp.CallToolRequest, input contextInput) (*gomcp.CallToolResult, models.EntityContext, error) {
	if input.Entity == "" {
		return errorResult("entity is required"), models.EntityContext{}, nil
	}
	ctx, err := s.svc.Query.Context(input.Entity, input.Neighbors)
	if err != nil {
		return errorResult(err.Error()), models.EntityContext{}, nil
	}
	return nil, *ctx, nil
}

func (s *Server) handleEntityTimeline(_ context.Context, _ *gomcp.CallToolRequest, input entityInput) (*gomcp.CallToolResult, timelineOutput, error) {
	if input.Entity == "" {
		return errorResult("entity is required"), timelineOutput{}, nil
	}
	if s.svc.Events == nil {
		return errorResult("event log not available"), timelineOutput{}, nil
	}

	id := s.resolve(input.Entity)
	timeline, err := s.svc.Events.GetEntityTimeline(id)
	if err != nil {
		return errorResult(fmt.Sprintf("getting timeline for %s: %s", id, err)), timelineOutput{}, nil
	}
	return nil, timelineOutput{EntityID: id, Timeline: timeline, Count: len(timeline)}, nil
}

func (s *Server) handleEntityAt(_ context.Context, _ *gomcp.CallToolRequest, input entityAtInput) (*gomcp.CallToolResult, entityAtOutput, error) {
	if input.Entity == "" || input.At == "" {
		return errorResult("entity and at are required"), entityAtOutput{}, nil
	}
	if s.svc.Temporal == nil {
		return errorResult("event log not available"), entityAtOutput{}, nil
	}
	at, err := core.ParseTimeRef(input.At, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing at: %s", err)), entityAtOutput{}, nil
	}

	id := s.resolve(input.Entity)
	snapshot, err := s.svc.Temporal.GetEntityAt(id, at)
	if err != nil {
		return errorResult(fmt.Sprintf("reconstructing %s: %s", id, err)), entityAtOutput{}, nil
	}
	return nil, entityAtOutput{
		EntityID: id,
		At:       at.Format(time.RFC3339),
		Existed:  snapshot != nil,
		Snapshot: snapshot,
	}, nil
}

func (s *Server) handleCompareStates(_ context.Context, _ *gomcp.CallToolRequest, input compareInput) (*gomcp.CallToolResult, compareOutput, error) {
	if input.Entity == "" || input.From == "" || input.To == "" {
		return errorResult("entity, from and to are required"), compareOutput{}, nil
	}
	if s.svc.Temporal == nil {
		return errorResult("event log not available"), compareOutput{}, nil
	}
	now := s.now()
	from, err := core.ParseTimeRef(input.From, now)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing from: %s", err)), compareOutput{}, nil
	}
	to, err := core.ParseTimeRef(input.To, now)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing to: %s", err)), compareOutput{}, nil
	}

	id := s.resolve(input.Entity)
	diffs, err := s.svc.Temporal.CompareStates(id, from, to)
	if err != nil {
		return errorResult(fmt.Sprintf("comparing %s: %s", id, err)), compareOutput{}, nil
	}
	if diffs == nil {
		diffs = []models.FieldDiff{}
	}
	return nil, compareOutput{EntityID: id, Diffs: diffs, Count: len(diffs)}, nil
}

func (s *Server) handleFieldHistory(_ context.Context, _ *gomcp.CallToolRequest, input fieldHistoryInput) (*gomcp.CallToolResult, fieldHistoryOutput, error) {
	if input.Entity == "" || input.Field == "" {
		return errorResult("entity and field are required"), fieldHistoryOutput{}, nil
	}
	if s.svc.Temporal == nil {
		return errorResult("event log not available"), fieldHistoryOutput{}, nil
	}
	since, err := s.optionalTime(input.Since)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since: %s", err)), fieldHistoryOutput{}, nil
	}

	id := s.resolve(input.Entity)
	history, err := s.svc.Temporal.GetFieldHistory(id, input.Field, since)
	if err != nil {
		return errorResult(fmt.Sprintf("getting %s history for %s: %s", input.Field, id, err)), fieldHistoryOutput{}, nil
	}
	if history == nil {
		history = []models.FieldHistoryEntry{}
	}
	return nil, fieldHistoryOutput{EntityID: id, Field: input.Field, History: history, Count: len(history)}, nil
}

func (s *Server) handleEventStats(_ context.Context, _ *gomcp.CallToolRequest, input eventStatsInput) (*gomcp.CallToolResult, eventStatsOutput, error) {
	if s.svc.Stats == nil {
		return errorResult("event log not available"), emptyStatsOutput(), nil
	}
	since, err := s.optionalTime(input.Since)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since: %s", err)), emptyStatsOutput(), nil
	}

	stats, err := s.svc.Stats.Calculate(since)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating stats: %s", err)), emptyStatsOutput(), nil
	}

	out := eventStatsOutput{
		EventCount:  stats.EventCount,
		ByType:      stats.ByType,
		ByActor:     stats.ByActor,
		TopEntities: stats.TopEntities(10),
	}
	if stats.OldestEvent != nil {
		out.OldestEvent = stats.OldestEvent.Format(time.RFC3339)
	}
	if stats.NewestEvent != nil {
		out.NewestEvent = stats.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

// --- Helpers ---

func (s *Server) resolve(ref string) string {
	if s.svc.Resolver == nil {
		return ref
	}
	if id, ok := s.svc.Resolver.Resolve(ref); ok {
		return id
	}
	return ref
}

func (s *Server) optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := core.ParseTimeRef(raw, s.now())
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func emptyStatsOutput() eventStatsOutput {
	return eventStatsOutput{
		ByType:      make(map[string]int),
		ByActor:     make(map[string]int),
		TopEntities: []observability.EntityCount{},
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
