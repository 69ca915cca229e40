package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
)

// Listing protection limits.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DecisionReader is the audit query surface the admin endpoints expose.
type DecisionReader interface {
	ListDecisions(ctx context.Context, filter *model.DecisionFilter) ([]*model.DecisionRecord, int, error)
	RecentBlocked(ctx context.Context, limit int) ([]*model.DecisionRecord, error)
	TopCostly(ctx context.Context, since time.Time, limit int) ([]*model.CostSummary, error)
}

// Admin serves read-only inspection endpoints over recorded decisions.
type Admin struct {
	store  DecisionReader
	logger *slog.Logger
}

// NewAdmin returns the admin handler set backed by store.
func NewAdmin(store DecisionReader, logger *slog.Logger) *Admin {
	return &Admin{store: store, logger: logger}
}

// Register mounts the admin routes on r.
func (a *Admin) Register(r chi.Router) {
	r.Get("/decisions", a.ListDecisions)
	r.Get("/decisions/blocked", a.RecentBlocked)
	r.Get("/costs/top", a.TopCostly)
}

// ListDecisions returns decisions matching the query string filter.
func (a *Admin) ListDecisions(w http.ResponseWriter, r *http.Request) {
	filter, err := decisionFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decisions, total, err := a.store.ListDecisions(r.Context(), filter)
	if err != nil {
		a.logger.Error("list decisions", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if decisions == nil {
		decisions = []*model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, model.DecisionList{Decisions: decisions, TotalCount: total})
}

// RecentBlocked returns the latest rejected decisions.
func (a *Admin) RecentBlocked(w http.ResponseWriter, r *http.Request) {
	limit, err := intQueryParam(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decisions, err := a.store.RecentBlocked(r.Context(), limit)
	if err != nil {
		a.logger.Error("recent blocked", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if decisions == nil {
		decisions = []*model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, decisions)
}

// TopCostly returns the most expensive query shapes seen inside a window.
func (a *Admin) TopCostly(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}
	limit, err := intQueryParam(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := a.store.TopCostly(r.Context(), time.Now().Add(-window), limit)
	if err != nil {
		a.logger.Error("top costly", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summaries == nil {
		summaries = []*model.CostSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func decisionFilterFromQuery(r *http.Request) (*model.DecisionFilter, error) {
	q := r.URL.Query()
	filter := &model.DecisionFilter{}

	since, err := timeQueryParam(r, "since")
	if err != nil {
		return nil, err
	}
	filter.Since = since

	until, err := timeQueryParam(r, "until")
	if err != nil {
		return nil, err
	}
	filter.Until = until

	allowed, err := boolQueryParam(r, "allowed")
	if err != nil {
		return nil, err
	}
	filter.Allowed = allowed

	fromCache, err := boolQueryParam(r, "from_cache")
	if err != nil {
		return nil, err
	}
	filter.FromCache = fromCache

	for _, raw := range q["kind"] {
		kind := model.OperationKind(raw)
		if !kind.IsValid() {
			return nil, fmt.Errorf("kind %q is not a valid operation kind", raw)
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	if raw := q.Get("min_cost"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("min_cost must be a non-negative integer")
		}
		filter.MinCost = &n
	}

	if raw := q.Get("sort"); raw != "" {
		field := model.DecisionSortField(raw)
		if !field.IsValid() {
			return nil, fmt.Errorf("sort %q is not a valid sort field", raw)
		}
		filter.SortBy = &field
	}
	if raw := q.Get("order"); raw != "" {
		order := model.SortOrder(raw)
		if !order.IsValid() {
			return nil, fmt.Errorf("order %q is not a valid sort order", raw)
		}
		filter.SortOrder = &order
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("limit must be a positive integer")
		}
		if n > maxPageSize {
			return nil, fmt.Errorf("limit exceeds maximum of %d", maxPageSize)
		}
		filter.Limit = &n
	}
	if filter.Limit == nil {
		d := defaultPageSize
		filter.Limit = &d
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("offset must be a non-negative integer")
		}
		filter.Offset = &n
	}

	return filter, nil
}

func timeQueryParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

func boolQueryParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", name)
	}
	return &b, nil
}

func intQueryParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if n > maxPageSize {
		return 0, fmt.Errorf("%s exceeds maximum of %d", name, maxPageSize)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
