package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
)

// drainTimeout bounds how long shutdown waits for queued records to land.
const drainTimeout = 5 * time.Second

// Sink persists decision records. Sinks must tolerate being called from a
// single background goroutine.
type Sink interface {
	Name() string
	RecordDecision(ctx context.Context, rec *model.DecisionRecord) error
}

// Recorder fans decision records out to its sinks off the request path.
// Enqueue never blocks: when the buffer is full, records are dropped and
// counted rather than stalling admission.
type Recorder struct {
	sinks   []Sink
	queue   chan *model.DecisionRecord
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRecorder returns a Recorder with room for buffer in-flight records.
func NewRecorder(buffer int, sinks []Sink, metrics *observability.Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{
		sinks:   sinks,
		queue:   make(chan *model.DecisionRecord, buffer),
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue hands a record to the background dispatcher without blocking.
func (r *Recorder) Enqueue(rec *model.DecisionRecord) {
	select {
	case r.queue <- rec:
	default:
		r.metrics.AuditRecordsDropped.Inc()
		r.logger.Warn("audit queue full, dropping decision record", "cache_key", rec.CacheKey)
	}
}

// Run dispatches queued records until the context is cancelled, then flushes
// whatever is still buffered before returning.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("audit recorder started", "sinks", len(r.sinks), "buffer", cap(r.queue))
	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.logger.Info("audit recorder stopped")
			return nil
		case rec := <-r.queue:
			r.dispatch(ctx, rec)
		}
	}
}

func (r *Recorder) dispatch(ctx context.Context, rec *model.DecisionRecord) {
	for _, sink := range r.sinks {
		if err := sink.RecordDecision(ctx, rec); err != nil {
			r.logger.Error("record decision",
				"error", err, "sink", sink.Name(), "cache_key", rec.CacheKey)
		}
	}
}

// drain empties the queue with a fresh context so shutdown does not lose
// records already accepted.
func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-r.queue:
			r.dispatch(ctx, rec)
		default:
			return
		}
	}
}
