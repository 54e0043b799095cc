package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/pkg/models"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	text := strings.TrimSpace(params.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	opts := s.deps.Defaults
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if v := params.Get("graph"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "graph must be true or false")
			return
		}
		opts.Graph = b
	}
	if v := params.Get("decay"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "decay must be a number")
			return
		}
		opts.Decay = f
	}
	if v := params.Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "depth must be an integer")
			return
		}
		opts.Depth = n
	}

	result, err := s.deps.Query.Query(text, opts)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEntity serves /api/entities/{id}/{action}. Ids contain slashes, so
// the action is the last path segment and everything before it is the id.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	rest := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		writeError(w, http.StatusNotFound, "expected /api/entities/{id}/{context|timeline|at}")
		return
	}
	ref, action := rest[:i], rest[i+1:]

	switch action {
	case "context":
		s.handleContext(w, r, ref)
	case "timeline":
		s.handleTimeline(w, r, ref)
	case "at":
		s.handleEntityAt(w, r, ref)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown entity action %q", action))
	}
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request, ref string) {
	neighbors := true
	if v := r.URL.Query().Get("neighbors"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "neighbors must be true or false")
			return
		}
		neighbors = b
	}

	ctx, err := s.deps.Query.Context(ref, neighbors)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, ref string) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not available")
		return
	}
	id := s.resolve(ref)
	timeline, err := s.deps.Events.GetEntityTimeline(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"timeline":  timeline,
	})
}

func (s *Server) handleEntityAt(w http.ResponseWriter, r *http.Request, ref string) {
	if s.deps.Temporal == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not available")
		return
	}
	raw := r.URL.Query().Get("t")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "t required")
		return
	}
	at, err := core.ParseTimeRef(raw, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.resolve(ref)
	snapshot, err := s.deps.Temporal.GetEntityAt(id, at)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	// A nil snapshot means the entity did not exist yet; that is an empty
	// answer, not an error.
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"at":        at,
		"snapshot":  snapshot,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not available")
		return
	}
	params := r.URL.Query()

	var filter models.EventFilter
	var err error
	if filter.Since, err = s.optionalTime(params.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}
	if filter.Until, err = s.optionalTime(params.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "until: "+err.Error())
		return
	}
	filter.Actors = splitList(params["actor"])
	for _, t := range splitList(params["type"]) {
		filter.Types = append(filter.Types, models.EventType(t))
	}
	filter.EntityPattern = params.Get("entity")
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	events, err := s.deps.Events.QueryEvents(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil || s.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not available")
		return
	}
	params := r.URL.Query()

	since, err := s.optionalTime(params.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}

	groupBy := params.Get("group_by")
	if groupBy == "" {
		stats, err := s.deps.Stats.Calculate(since)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":        stats,
			"top_entities": stats.TopEntities(10),
		})
		return
	}

	switch groupBy {
	case observability.GroupByType, observability.GroupByActor, observability.GroupByEntity:
	default:
		writeError(w, http.StatusBadRequest, "group_by must be one of: type, actor, entity")
		return
	}
	counts, err := s.deps.Events.CountEvents(since, groupBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_by": groupBy,
		"counts":   counts,
	})
}

// resolve maps an alias to its canonical id, leaving unknown refs as given.
func (s *Server) resolve(ref string) string {
	if s.deps.Resolver == nil {
		return ref
	}
	if id, ok := s.deps.Resolver.Resolve(ref); ok {
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

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
