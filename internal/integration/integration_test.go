//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/couchcryptid/graphql-cost-guard/internal/cost"
	"github.com/couchcryptid/graphql-cost-guard/internal/gateway"
	"github.com/couchcryptid/graphql-cost-guard/internal/guard"
	"github.com/couchcryptid/graphql-cost-guard/internal/kafka"
	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
)

const (
	testKafkaTopic = "cost-decisions"
	contentJSON    = "application/json"
)

func TestStoreRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	s := setupStore(ctx, t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	fixtures := decisionFixtures(now)
	for _, rec := range fixtures {
		require.NoError(t, s.RecordDecision(ctx, rec), "insert decision %s", rec.OperationName)
	}

	t.Run("list all", func(t *testing.T) {
		decisions, total, err := s.ListDecisions(ctx, &model.DecisionFilter{})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		require.Len(t, decisions, 6)
		// Default order is decided_at DESC.
		assert.Equal(t, "SaveItem", decisions[0].OperationName)
		assert.Equal(t, model.OperationKindMutation, decisions[0].OperationKind)
	})

	t.Run("filter blocked", func(t *testing.T) {
		allowed := false
		decisions, total, err := s.ListDecisions(ctx, &model.DecisionFilter{Allowed: &allowed})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, d := range decisions {
			assert.False(t, d.Allowed)
			assert.Equal(t, "Feed", d.OperationName)
		}
	})

	t.Run("filter by kind", func(t *testing.T) {
		decisions, total, err := s.ListDecisions(ctx, &model.DecisionFilter{
			Kinds: []model.OperationKind{model.OperationKindMutation},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, decisions, 1)
		// Kind is stored lowercase and must round-trip back to the enum.
		assert.Equal(t, model.OperationKindMutation, decisions[0].OperationKind)
		assert.Equal(t, 22, decisions[0].Cost)
	})

	t.Run("filter min cost", func(t *testing.T) {
		minCost := 400
		_, total, err := s.ListDecisions(ctx, &model.DecisionFilter{MinCost: &minCost})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("filter from cache", func(t *testing.T) {
		fromCache := true
		decisions, total, err := s.ListDecisions(ctx, &model.DecisionFilter{FromCache: &fromCache})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, d := range decisions {
			assert.True(t, d.FromCache)
		}
	})

	t.Run("since window", func(t *testing.T) {
		since := now.Add(-15 * time.Minute)
		_, total, err := s.ListDecisions(ctx, &model.DecisionFilter{Since: &since})
		require.NoError(t, err)
		assert.Equal(t, 2, total, "only the -10m and -5m decisions fall in the window")
	})

	t.Run("sort by cost ascending", func(t *testing.T) {
		sortBy := model.DecisionSortCost
		order := model.SortOrderAsc
		limit := 2
		decisions, _, err := s.ListDecisions(ctx, &model.DecisionFilter{
			SortBy: &sortBy, SortOrder: &order, Limit: &limit,
		})
		require.NoError(t, err)
		require.Len(t, decisions, 2)
		assert.Equal(t, 12, decisions[0].Cost)
		assert.Equal(t, 12, decisions[1].Cost)
	})

	t.Run("pagination", func(t *testing.T) {
		limit := 2
		page1, total, err := s.ListDecisions(ctx, &model.DecisionFilter{Limit: &limit})
		require.NoError(t, err)
		assert.Equal(t, 6, total, "totalCount should ignore limit")
		require.Len(t, page1, 2)

		offset := 2
		page2, _, err := s.ListDecisions(ctx, &model.DecisionFilter{Limit: &limit, Offset: &offset})
		require.NoError(t, err)
		require.Len(t, page2, 2)
		for _, d1 := range page1 {
			for _, d2 := range page2 {
				assert.NotEqual(t, d1.ID, d2.ID, "decision should not appear on both pages")
			}
		}
	})

	t.Run("recent blocked", func(t *testing.T) {
		decisions, err := s.RecentBlocked(ctx, 50)
		require.NoError(t, err)
		require.Len(t, decisions, 2)
		assert.True(t, decisions[0].FromCache, "newest rejection was the cached one")
		assert.False(t, decisions[1].FromCache)
	})

	t.Run("top costly", func(t *testing.T) {
		summaries, err := s.TopCostly(ctx, now.Add(-2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, summaries, 4, "one row per query shape")

		top := summaries[0]
		assert.Equal(t, "2c2c2c2c2c2c2c2c", top.CacheKey)
		assert.Equal(t, "Feed", top.OperationName)
		assert.Equal(t, 1400, top.MaxCost)
		assert.Equal(t, 2, top.Requests)
		assert.Equal(t, 2, top.Blocked)
		assert.False(t, top.LastSeen.IsZero())
	})

	t.Run("top costly window", func(t *testing.T) {
		summaries, err := s.TopCostly(ctx, now.Add(-15*time.Minute), 10)
		require.NoError(t, err)
		assert.Len(t, summaries, 2, "shapes last seen before the window are excluded")
	})
}

func TestKafkaProducerIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker, kc := startKafka(ctx, t)
	defer func() { _ = kc.Terminate(ctx) }()

	// Create topic
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial kafka")
	err = conn.CreateTopics(kafkago.TopicConfig{
		Topic:             testKafkaTopic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	conn.Close()
	require.NoError(t, err, "create topic")

	producer := kafka.NewProducer([]string{broker}, testKafkaTopic, observability.NewTestMetrics(), discardLogger())
	defer producer.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	fixtures := decisionFixtures(now)[:2]
	for _, rec := range fixtures {
		require.NoError(t, producer.RecordDecision(ctx, rec))
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   testKafkaTopic,
		GroupID: "integration-group",
	})
	defer reader.Close()

	for i := range fixtures {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err, "read message %d", i)
		assert.Equal(t, []byte(fixtures[i].CacheKey), msg.Key)

		var got model.DecisionRecord
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, fixtures[i].OperationName, got.OperationName)
		assert.Equal(t, fixtures[i].Cost, got.Cost)
		assert.Equal(t, fixtures[i].Allowed, got.Allowed)
		assert.True(t, got.DecidedAt.Equal(fixtures[i].DecidedAt))
	}
}

var gatewaySchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: `
directive @expensive on FIELD_DEFINITION

type Query {
	viewer: Viewer
	audit: [String!] @expensive
}

type Viewer {
	name: String
}
`})

func TestGatewayAdmissionFlow(t *testing.T) {
	ctx := context.Background()
	s := setupStore(ctx, t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentJSON)
		_, _ = w.Write([]byte(`{"data":{"viewer":{"name":"ada"}}}`))
	}))
	defer upstream.Close()

	metrics := observability.NewTestMetrics()
	logger := discardLogger()

	recorder := gateway.NewRecorder(64, []gateway.Sink{s}, metrics, logger)
	runCtx, stopRecorder := context.WithCancel(ctx)
	defer stopRecorder()
	go recorder.Run(runCtx)

	estimator := cost.NewEstimator(map[string]int{"expensive": 100})
	g := guard.New(estimator, gatewaySchema, 50, 128, 1.0, observability.NewCostObserver(metrics), logger)

	upstreamURL, err := url.Parse(upstream.URL + "/graphql")
	require.NoError(t, err)
	proxy := gateway.New(g, upstreamURL, recorder, metrics, logger, 1<<20)

	r := chi.NewRouter()
	r.Handle("/graphql", proxy)
	r.Route("/admin", gateway.NewAdmin(s, logger).Register)
	ts := httptest.NewServer(r)
	defer ts.Close()

	// Cheap query passes through to the upstream.
	resp, err := http.Post(ts.URL+"/graphql", contentJSON,
		strings.NewReader(`{"query":"query Cheap { viewer { name } }","operationName":"Cheap"}`))
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "data")

	// Expensive query is rejected before reaching the upstream.
	resp, err = http.Post(ts.URL+"/graphql", contentJSON,
		strings.NewReader(`{"query":"query Pricey { audit }","operationName":"Pricey"}`))
	require.NoError(t, err)
	body = decodeJSON(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	errs, ok := body["errors"].([]interface{})
	require.True(t, ok, "blocked response carries a GraphQL errors array")
	require.NotEmpty(t, errs)

	// Both decisions land in the audit store via the async recorder.
	require.Eventually(t, func() bool {
		_, total, err := s.ListDecisions(ctx, &model.DecisionFilter{})
		return err == nil && total == 2
	}, 5*time.Second, 50*time.Millisecond, "recorder should flush both decisions")

	blocked, err := s.RecentBlocked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "Pricey", blocked[0].OperationName)
	assert.Equal(t, 100, blocked[0].Cost)
	assert.Equal(t, 50, blocked[0].Threshold)
	assert.Equal(t, model.OperationKindQuery, blocked[0].OperationKind)

	// The admin surface serves the same records over HTTP.
	adminResp, err := http.Get(ts.URL + "/admin/decisions/blocked")
	require.NoError(t, err)
	adminBody, ok := decodeJSONValue(t, adminResp).([]interface{})
	require.True(t, ok)
	assert.Len(t, adminBody, 1)
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func decodeJSONValue(t *testing.T, resp *http.Response) interface{} {
	t.Helper()
	defer resp.Body.Close()
	var v interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
