package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publish outcomes for the outbox publisher.
type OutboxMetrics struct {
	published prometheus.Counter
	failures  prometheus.Counter
	dlq       prometheus.Counter
	batch     prometheus.Histogram
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published to Pub/Sub.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_dlq_total",
		Help: "Outbox events moved to the dead letter queue.",
	})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(published, failures, dlq, batch)
	return &OutboxMetrics{
		published: published,
		failures:  failures,
		dlq:       dlq,
		batch:     batch,
	}
}

// AddPublished adds n to the published-event counter.
func (o *OutboxMetrics) AddPublished(n int) {
	if o == nil || o.published == nil || n <= 0 {
		return
	}
	o.published.Add(float64(n))
}

// IncFailure increments the publish-failure counter.
func (o *OutboxMetrics) IncFailure() {
	if o == nil || o.failures == nil {
		return
	}
	o.failures.Inc()
}

// IncDLQ increments the dead-letter counter.
func (o *OutboxMetrics) IncDLQ() {
	if o == nil || o.dlq == nil {
		return
	}
	o.dlq.Inc()
}

// ObserveBatch records the duration of one publish batch.
func (o *OutboxMetrics) ObserveBatch(duration time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(duration.Seconds())
}
