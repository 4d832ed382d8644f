package workerpool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"socialauth/sso"
)

var _ sso.EventPublisher = (*AsyncPublisher)(nil)

// AsyncPublisher hands login events to a pool so the callback response does
// not wait on the broker. The request's span context is carried over so the
// background publish stays in the same trace.
type AsyncPublisher struct {
	pool    *WorkerPool
	next    sso.EventPublisher
	timeout time.Duration
}

// NewAsyncPublisher publishes through next on pool. timeout bounds each
// publish; zero uses the pool default.
func NewAsyncPublisher(pool *WorkerPool, next sso.EventPublisher, timeout time.Duration) *AsyncPublisher {
	return &AsyncPublisher{pool: pool, next: next, timeout: timeout}
}

// PublishLogin queues the event. The returned error only reports queueing
// failures.
func (p *AsyncPublisher) PublishLogin(ctx context.Context, event sso.LoginEvent) error {
	sc := trace.SpanContextFromContext(ctx)
	return p.pool.Submit(Task{
		ID:      "login:" + event.Provider + ":" + event.UniqueID,
		Timeout: p.timeout,
		Execute: func(ctx context.Context) error {
			if sc.IsValid() {
				ctx = trace.ContextWithSpanContext(ctx, sc)
			}
			return p.next.PublishLogin(ctx, event)
		},
	})
}
