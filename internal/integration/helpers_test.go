//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcKafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/graphql-cost-guard/internal/database"
	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
	"github.com/couchcryptid/graphql-cost-guard/internal/store"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPostgres(ctx context.Context, t *testing.T) (string, testcontainers.Container) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres")

	host, _ := pg.Host(ctx)
	port, _ := pg.MappedPort(ctx, "5432")
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	return dsn, pg
}

func startKafka(ctx context.Context, t *testing.T) (string, *tcKafka.KafkaContainer) {
	t.Helper()
	kc, err := tcKafka.Run(ctx, "confluentinc/confluent-local:7.6.0")
	require.NoError(t, err, "start kafka")

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err, "get brokers")
	return brokers[0], kc
}

// setupStore starts Postgres, runs migrations, and registers cleanup.
// Returns an empty store ready for inserts.
func setupStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	dsn, pg := startPostgres(ctx, t)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	require.NoError(t, database.RunMigrations(dsn))

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return store.New(pool, observability.NewTestMetrics())
}

// decisionFixtures returns six decisions spanning both operation kinds,
// allowed and blocked outcomes, cache hits, and three distinct query shapes.
func decisionFixtures(now time.Time) []*model.DecisionRecord {
	return []*model.DecisionRecord{
		{
			CacheKey: "0a0a0a0a0a0a0a0a", OperationName: "ViewerHome",
			OperationKind: model.OperationKindQuery,
			Cost:          12, Threshold: 1000, Allowed: true,
			EstimateMs: 0.21, DecidedAt: now.Add(-50 * time.Minute),
		},
		{
			CacheKey: "0a0a0a0a0a0a0a0a", OperationName: "ViewerHome",
			OperationKind: model.OperationKindQuery,
			Cost:          12, Threshold: 1000, Allowed: true, FromCache: true,
			EstimateMs: 0.02, DecidedAt: now.Add(-40 * time.Minute),
		},
		{
			CacheKey: "1b1b1b1b1b1b1b1b", OperationName: "Search",
			OperationKind: model.OperationKindQuery,
			Cost:          480, Threshold: 1000, Allowed: true,
			EstimateMs: 0.34, DecidedAt: now.Add(-30 * time.Minute),
		},
		{
			CacheKey: "2c2c2c2c2c2c2c2c", OperationName: "Feed",
			OperationKind: model.OperationKindQuery,
			Cost:          1400, Threshold: 1000, Allowed: false,
			EstimateMs: 0.51, DecidedAt: now.Add(-20 * time.Minute),
		},
		{
			CacheKey: "2c2c2c2c2c2c2c2c", OperationName: "Feed",
			OperationKind: model.OperationKindQuery,
			Cost:          1400, Threshold: 1000, Allowed: false, FromCache: true,
			EstimateMs: 0.03, DecidedAt: now.Add(-10 * time.Minute),
		},
		{
			CacheKey: "3d3d3d3d3d3d3d3d", OperationName: "SaveItem",
			OperationKind: model.OperationKindMutation,
			Cost:          22, Threshold: 1000, Allowed: true,
			EstimateMs: 0.18, DecidedAt: now.Add(-5 * time.Minute),
		},
	}
}
