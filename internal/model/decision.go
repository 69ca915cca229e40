package model

import "time"

// ─── Core types ─────────────────────────────────────────────

// DecisionRecord captures a single admission decision made for one GraphQL
// request, in the shape persisted to the audit sinks.
type DecisionRecord struct {
	ID            int64         `json:"id,omitempty"`
	CacheKey      string        `json:"cache_key"`
	OperationName string        `json:"operation_name,omitempty"`
	OperationKind OperationKind `json:"operation_kind"`
	Cost          int           `json:"cost"`
	Threshold     int           `json:"threshold"`
	Allowed       bool          `json:"allowed"`
	FromCache     bool          `json:"from_cache"`
	EstimateMs    float64       `json:"estimate_ms"`
	DecidedAt     time.Time     `json:"decided_at"`
}

// ─── Enums ──────────────────────────────────────────────────

// OperationKind labels the GraphQL operation kind behind a decision.
type OperationKind string

// Allowed OperationKind values.
const (
	OperationKindQuery    OperationKind = "QUERY"
	OperationKindMutation OperationKind = "MUTATION"
)

// IsValid returns true if the OperationKind is one of the known enum values.
func (e OperationKind) IsValid() bool {
	switch e {
	case OperationKindQuery, OperationKindMutation:
		return true
	}
	return false
}

func (e OperationKind) String() string { return string(e) }

// DecisionSortField enumerates the columns available for sorting decisions.
type DecisionSortField string

// Allowed DecisionSortField values.
const (
	DecisionSortDecidedAt DecisionSortField = "DECIDED_AT"
	DecisionSortCost      DecisionSortField = "COST"
)

// IsValid returns true if the DecisionSortField is one of the known enum values.
func (e DecisionSortField) IsValid() bool {
	switch e {
	case DecisionSortDecidedAt, DecisionSortCost:
		return true
	}
	return false
}

func (e DecisionSortField) String() string { return string(e) }

// SortOrder specifies ascending or descending sort direction.
type SortOrder string

// Allowed SortOrder values.
const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// IsValid returns true if the SortOrder is one of the known enum values.
func (e SortOrder) IsValid() bool {
	switch e {
	case SortOrderAsc, SortOrderDesc:
		return true
	}
	return false
}

func (e SortOrder) String() string { return string(e) }

// ─── Filter ─────────────────────────────────────────────────

// DecisionFilter specifies time range, outcome, sorting, and pagination
// criteria for audit queries over recorded decisions.
type DecisionFilter struct {
	// Time
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	// Outcome
	Allowed   *bool           `json:"allowed,omitempty"`
	FromCache *bool           `json:"fromCache,omitempty"`
	Kinds     []OperationKind `json:"kinds,omitempty"`
	MinCost   *int            `json:"minCost,omitempty"`

	// Sorting & pagination
	SortBy    *DecisionSortField `json:"sortBy,omitempty"`
	SortOrder *SortOrder         `json:"sortOrder,omitempty"`
	Limit     *int               `json:"limit,omitempty"`
	Offset    *int               `json:"offset,omitempty"`
}

// ─── Result envelope ────────────────────────────────────────

// DecisionList is the admin listing response with its total row count.
type DecisionList struct {
	Decisions  []*DecisionRecord `json:"decisions"`
	TotalCount int               `json:"totalCount"`
}

// ─── Aggregation types ──────────────────────────────────────

// CostSummary aggregates the recorded decisions for one query shape.
type CostSummary struct {
	CacheKey      string    `json:"cacheKey"`
	OperationName string    `json:"operationName,omitempty"`
	MaxCost       int       `json:"maxCost"`
	Requests      int       `json:"requests"`
	Blocked       int       `json:"blocked"`
	LastSeen      time.Time `json:"lastSeen"`
}
