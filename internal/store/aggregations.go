package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
)

// TopCostly returns the most expensive query shapes seen since the given time.
// Decisions are grouped by cache key, so resubmissions of the same shape with
// different formatting or cursor values collapse into one row. Ordered by the
// highest cost observed for the shape.
func (s *Store) TopCostly(ctx context.Context, since time.Time, limit int) ([]*model.CostSummary, error) {
	defer s.observeQuery("top_costly", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT cache_key,
			   MAX(operation_name) AS operation_name,
			   MAX(cost) AS max_cost,
			   COUNT(*) AS requests,
			   COUNT(*) FILTER (WHERE NOT allowed) AS blocked,
			   MAX(decided_at) AS last_seen
		FROM decision_records
		WHERE decided_at >= $1
		GROUP BY cache_key
		ORDER BY max_cost DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top costly: %w", err)
	}
	defer rows.Close()

	var summaries []*model.CostSummary
	for rows.Next() {
		var cs model.CostSummary
		if err := rows.Scan(&cs.CacheKey, &cs.OperationName, &cs.MaxCost,
			&cs.Requests, &cs.Blocked, &cs.LastSeen); err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		summaries = append(summaries, &cs)
	}
	return summaries, rows.Err()
}
