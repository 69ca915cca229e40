package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var errAuditTableMissing = errors.New("decision_records table missing, migrations have not run")

// PoolReadiness wraps a pgxpool.Pool and implements observability.ReadinessChecker.
type PoolReadiness struct {
	pool *pgxpool.Pool
}

// NewPoolReadiness returns a readiness checker backed by the given pool.
func NewPoolReadiness(pool *pgxpool.Pool) *PoolReadiness {
	return &PoolReadiness{pool: pool}
}

// CheckReadiness verifies database connectivity and that the audit schema is
// in place. Sampled admission decisions are written to decision_records, so
// the gateway does not report ready until the table exists.
func (p *PoolReadiness) CheckReadiness(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return err
	}
	var present bool
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass('decision_records') IS NOT NULL").Scan(&present); err != nil {
		return err
	}
	if !present {
		return errAuditTableMissing
	}
	return nil
}
