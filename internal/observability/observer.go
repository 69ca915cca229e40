package observability

import "time"

// CostObserver bridges guard admission notifications onto Prometheus
// collectors. It satisfies the guard's Observer interface.
type CostObserver struct {
	metrics *Metrics
}

// NewCostObserver returns an observer recording into m.
func NewCostObserver(m *Metrics) *CostObserver {
	return &CostObserver{metrics: m}
}

// CacheHit records a cost cache hit.
func (o *CostObserver) CacheHit() {
	o.metrics.CacheEvents.WithLabelValues("hit").Inc()
}

// CacheMiss records a cost cache miss.
func (o *CostObserver) CacheMiss() {
	o.metrics.CacheEvents.WithLabelValues("miss").Inc()
}

// CostComputed records a freshly computed estimate and how long it took.
func (o *CostObserver) CostComputed(cost int, elapsed time.Duration) {
	o.metrics.QueryCost.Observe(float64(cost))
	o.metrics.EstimateDuration.Observe(elapsed.Seconds())
}

// Blocked records a query rejected for exceeding the threshold.
func (o *CostObserver) Blocked(cost, threshold int) {
	o.metrics.QueriesBlocked.Inc()
}
