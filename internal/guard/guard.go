package guard

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/graphql-cost-guard/internal/cost"
)

// Decision is the outcome of admission analysis for one request.
type Decision struct {
	Allowed   bool
	Sampled   bool
	FromCache bool
	Cost      int
	Threshold int
	Key       string
	Elapsed   time.Duration
}

// Guard decides whether GraphQL requests may proceed based on their
// estimated execution cost. It owns the shared cost cache, deduplicates
// concurrent estimates of the same query shape, and reports lifecycle events
// to an Observer. A Guard is safe for concurrent use.
type Guard struct {
	estimator  *cost.Estimator
	schema     *ast.Schema
	threshold  int
	sampleRate float64
	observer   Observer
	logger     *slog.Logger
	rand       func() float64

	mu    sync.Mutex
	cache *cost.ResultCache
	group singleflight.Group
}

// New returns a Guard enforcing threshold. A sampleRate below 1 analyzes
// only that fraction of traffic and waves the rest through; cacheSize zero
// disables estimate reuse.
func New(estimator *cost.Estimator, schema *ast.Schema, threshold, cacheSize int, sampleRate float64, observer Observer, logger *slog.Logger) *Guard {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		estimator:  estimator,
		schema:     schema,
		threshold:  threshold,
		sampleRate: sampleRate,
		observer:   observer,
		logger:     logger,
		rand:       rand.Float64,
		cache:      cost.NewResultCache(cacheSize),
	}
}

type estimateResult struct {
	cost    int
	elapsed time.Duration
}

// Check prices one request and decides whether it may proceed. Unsampled
// requests are allowed without analysis. A non-nil error means the cost
// could not be determined; the caller chooses whether to fail open.
func (g *Guard) Check(ctx context.Context, query string, vars map[string]interface{}) (Decision, error) {
	d := Decision{Allowed: true, Threshold: g.threshold}
	if err := ctx.Err(); err != nil {
		return d, err
	}
	if g.sampleRate < 1 && g.rand() >= g.sampleRate {
		return d, nil
	}
	d.Sampled = true
	d.Key = cost.CacheKey(query, vars)

	g.mu.Lock()
	cached, ok := g.cache.Get(d.Key)
	g.mu.Unlock()
	if ok {
		g.observer.CacheHit()
		d.FromCache = true
		return g.admit(d, cached), nil
	}
	g.observer.CacheMiss()

	v, err, _ := g.group.Do(d.Key, func() (interface{}, error) {
		start := time.Now()
		estimated, errs := g.estimator.Estimate(g.schema, query, vars)
		elapsed := time.Since(start)
		if len(errs) > 0 {
			return nil, errs
		}
		g.observer.CostComputed(estimated, elapsed)
		g.mu.Lock()
		g.cache.Set(d.Key, estimated)
		g.mu.Unlock()
		return estimateResult{cost: estimated, elapsed: elapsed}, nil
	})
	if err != nil {
		return d, fmt.Errorf("estimate query cost: %w", err)
	}

	res := v.(estimateResult)
	d.Elapsed = res.elapsed
	return g.admit(d, res.cost), nil
}

// Threshold returns the configured cost budget.
func (g *Guard) Threshold() int { return g.threshold }

func (g *Guard) admit(d Decision, estimated int) Decision {
	d.Cost = estimated
	d.Allowed = estimated <= g.threshold
	if !d.Allowed {
		g.observer.Blocked(estimated, g.threshold)
		g.logger.Warn("query exceeds cost threshold",
			"cost", estimated,
			"threshold", g.threshold,
			"cache_key", d.Key,
			"from_cache", d.FromCache,
		)
	}
	return d
}
