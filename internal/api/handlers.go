package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playerstats-proxy/internal/ranking"
	"github.com/playerstats-proxy/internal/storage"
	"github.com/playerstats-proxy/internal/upstream"
)

// Limits caps user supplied sizes.
type Limits struct {
	MaxLimit       int
	MaxBestResults int
}

// Handlers holds API handler dependencies
type Handlers struct {
	store  *storage.Store
	limits Limits
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers creates a new API handlers instance
func NewHandlers(store *storage.Store, limits Limits, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes registers the ranking routes. The literal "section" segment
// wins over the {stat_key} wildcard.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/top/section/{section}", h.GetTopBySection)
	r.Get("/top/{stat_key}/{section}", h.GetTopByStat)
	r.Get("/best/{player}", h.GetBestStats)
	r.Get("/players/basic", h.GetPlayersBasic)
	r.Get("/stats", h.GetAggregateStats)
}

// GetHealth reports liveness without touching the upstream.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTopByStat returns the leaderboard for one counter
func (h *Handlers) GetTopByStat(w http.ResponseWriter, r *http.Request) {
	section, ok := pathParam(w, r, "section")
	if !ok {
		return
	}
	statKey, ok := pathParam(w, r, "stat_key")
	if !ok {
		return
	}
	limit, includeZeros, ok := h.topParams(w, r)
	if !ok {
		return
	}

	tables, err := h.store.Tables(r.Context())
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ranking.TopByStat(tables.Snapshot.Players, tables.Aggregate, ranking.TopQuery{
		Section:      section,
		StatKey:      statKey,
		Limit:        limit,
		IncludeZeros: includeZeros,
	}, h.now().UTC()))
}

// GetTopBySection returns the leaderboard for a whole section
func (h *Handlers) GetTopBySection(w http.ResponseWriter, r *http.Request) {
	section, ok := pathParam(w, r, "section")
	if !ok {
		return
	}
	limit, includeZeros, ok := h.topParams(w, r)
	if !ok {
		return
	}

	tables, err := h.store.Tables(r.Context())
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ranking.TopBySection(tables.Snapshot.Players, tables.Aggregate, ranking.SectionQuery{
		Section:      section,
		Limit:        limit,
		IncludeZeros: includeZeros,
	}, h.now().UTC()))
}

// GetBestStats returns the counters a player leads
func (h *Handlers) GetBestStats(w http.ResponseWriter, r *http.Request) {
	player, ok := pathParam(w, r, "player")
	if !ok {
		return
	}
	q := r.URL.Query()
	minValue, err := intParam(q.Get("min_value"), 1)
	if err != nil {
		badRequest(w, "min_value", err)
		return
	}
	includeZeros, err := boolParam(q.Get("include_zeros"))
	if err != nil {
		badRequest(w, "include_zeros", err)
		return
	}
	maxResults, err := intParam(q.Get("max_results"), 0)
	if err != nil {
		badRequest(w, "max_results", err)
		return
	}

	tables, err := h.store.Tables(r.Context())
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	resp, err := ranking.BestStats(tables.Snapshot.Players, tables.Maxima, tables.Aggregate, ranking.BestQuery{
		Player:       player,
		MinValue:     int64(max(0, minValue)),
		IncludeZeros: includeZeros,
		MaxResults:   h.clampMaxResults(maxResults),
	}, h.now().UTC())
	if errors.Is(err, ranking.ErrPlayerNotFound) {
		writeError(w, http.StatusNotFound, "Player not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetPlayersBasic lists player identities
func (h *Handlers) GetPlayersBasic(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot(r.Context())
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ranking.BasicPlayers(snap.Players, h.now().UTC()))
}

// GetAggregateStats lists global totals per section
func (h *Handlers) GetAggregateStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minValue, err := intParam(q.Get("min_value"), 1)
	if err != nil {
		badRequest(w, "min_value", err)
		return
	}
	perSection, err := intParam(q.Get("limit_per_section"), 0)
	if err != nil {
		badRequest(w, "limit_per_section", err)
		return
	}

	tables, err := h.store.Tables(r.Context())
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ranking.AggregateTotals(tables.Aggregate, tables.Snapshot.Len(), ranking.TotalsQuery{
		MinValue:        int64(max(0, minValue)),
		LimitPerSection: min(max(0, perSection), h.limits.MaxLimit),
	}, h.now().UTC()))
}

func (h *Handlers) topParams(w http.ResponseWriter, r *http.Request) (limit int, includeZeros bool, ok bool) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil {
		badRequest(w, "limit", err)
		return 0, false, false
	}
	includeZeros, err = boolParam(q.Get("include_zeros"))
	if err != nil {
		badRequest(w, "include_zeros", err)
		return 0, false, false
	}
	return min(max(1, limit), h.limits.MaxLimit), includeZeros, true
}

// clampMaxResults maps n <= 0 to the configured maximum and caps the rest.
func (h *Handlers) clampMaxResults(n int) int {
	if n <= 0 {
		return h.limits.MaxBestResults
	}
	return min(n, h.limits.MaxBestResults)
}

// upstreamError answers 502 for a failed snapshot fetch.
func (h *Handlers) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		ue = upstream.Transport("Tables", err)
	}

	detail := "Upstream HTTP error: " + ue.Category
	if ue.Class == upstream.ClassPayload {
		detail = ue.Err.Error()
	}
	h.logger.Error("upstream error", "tag", "api", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "class", ue.Class.String(), "error", err)
	writeError(w, http.StatusBadGateway, detail)
}

// pathParam returns the decoded route segment. chi matches on the escaped
// path when one is set, so segments such as minecraft%3Astone arrive encoded.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		badRequest(w, name, fmt.Errorf("%q is not a valid path segment", raw))
		return "", false
	}
	return v, true
}

// intParam parses an optional integer query value.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", raw)
	}
	return b, nil
}

func badRequest(w http.ResponseWriter, param string, err error) {
	writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", param, err))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
