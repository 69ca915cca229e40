package guard

import "time"

// Observer receives admission lifecycle notifications. Implementations must
// be cheap and non-blocking; callbacks run inline on the request path.
type Observer interface {
	// CacheHit fires when a request reuses a previously computed cost.
	CacheHit()
	// CacheMiss fires when no cached cost exists for a request.
	CacheMiss()
	// CostComputed fires after a fresh estimate, with the time it took.
	CostComputed(cost int, elapsed time.Duration)
	// Blocked fires when a request is rejected for exceeding the threshold.
	Blocked(cost, threshold int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) CacheHit()                       {}
func (NopObserver) CacheMiss()                      {}
func (NopObserver) CostComputed(int, time.Duration) {}
func (NopObserver) Blocked(int, int)                {}

// MultiObserver fans every notification out to its members in order.
type MultiObserver []Observer

var _ Observer = MultiObserver{}

func (m MultiObserver) CacheHit() {
	for _, o := range m {
		o.CacheHit()
	}
}

func (m MultiObserver) CacheMiss() {
	for _, o := range m {
		o.CacheMiss()
	}
}

func (m MultiObserver) CostComputed(cost int, elapsed time.Duration) {
	for _, o := range m {
		o.CostComputed(cost, elapsed)
	}
}

func (m MultiObserver) Blocked(cost, threshold int) {
	for _, o := range m {
		o.Blocked(cost, threshold)
	}
}
