package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
)

const columns = `id, cache_key, operation_name, operation_kind,
	cost, threshold, allowed, from_cache, estimate_ms, decided_at`

// Store provides persistence operations for admission decisions backed by PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
}

// New creates a Store with the given connection pool and metrics.
func New(pool *pgxpool.Pool, m *observability.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Name identifies the store when it is used as an audit sink.
func (s *Store) Name() string { return "postgres" }

func (s *Store) observeQuery(operation string, start time.Time) {
	s.metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordDecision appends one admission decision to the audit table.
func (s *Store) RecordDecision(ctx context.Context, rec *model.DecisionRecord) error {
	defer s.observeQuery("insert", time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decision_records (cache_key, operation_name, operation_kind,
			cost, threshold, allowed, from_cache, estimate_ms, decided_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.CacheKey, rec.OperationName, strings.ToLower(string(rec.OperationKind)),
		rec.Cost, rec.Threshold, rec.Allowed, rec.FromCache,
		rec.EstimateMs, rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns filtered, sorted, paginated decisions and the total count.
func (s *Store) ListDecisions(ctx context.Context, filter *model.DecisionFilter) ([]*model.DecisionRecord, int, error) {
	defer s.observeQuery("list", time.Now())
	where, baseArgs, idx := buildWhereClause(filter)

	whereSQL := buildWhereSQL(where)

	// Count total matching rows
	countQuery := "SELECT COUNT(*) FROM decision_records" + whereSQL
	var totalCount int
	if err := s.pool.QueryRow(ctx, countQuery, baseArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("count decisions: %w", err)
	}

	// Build data query with sorting and pagination
	orderCol := "decided_at"
	orderDir := "DESC"
	if filter.SortBy != nil && filter.SortBy.IsValid() {
		orderCol = sortColumn(*filter.SortBy)
	}
	if filter.SortOrder != nil && filter.SortOrder.IsValid() && *filter.SortOrder == model.SortOrderAsc {
		orderDir = "ASC"
	}

	dataArgs := make([]any, len(baseArgs))
	copy(dataArgs, baseArgs)

	query := "SELECT " + columns + " FROM decision_records" + whereSQL +
		fmt.Sprintf(" ORDER BY %s %s", orderCol, orderDir)

	if filter.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		dataArgs = append(dataArgs, *filter.Limit)
		idx++
	}
	if filter.Offset != nil {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		dataArgs = append(dataArgs, *filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, 0, err
		}
		decisions = append(decisions, rec)
	}
	return decisions, totalCount, rows.Err()
}

// RecentBlocked returns the most recently rejected decisions, newest first.
func (s *Store) RecentBlocked(ctx context.Context, limit int) ([]*model.DecisionRecord, error) {
	defer s.observeQuery("recent_blocked", time.Now())
	rows, err := s.pool.Query(ctx,
		"SELECT "+columns+" FROM decision_records WHERE NOT allowed ORDER BY decided_at DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query blocked decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, rec)
	}
	return decisions, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDecision(row scannable) (*model.DecisionRecord, error) {
	var rec model.DecisionRecord
	var kind string
	err := row.Scan(
		&rec.ID, &rec.CacheKey, &rec.OperationName, &kind,
		&rec.Cost, &rec.Threshold, &rec.Allowed, &rec.FromCache,
		&rec.EstimateMs, &rec.DecidedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	rec.OperationKind = model.OperationKind(strings.ToUpper(kind))
	return &rec, nil
}
