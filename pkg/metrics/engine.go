package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons reported by the engine when a due step is held back
// before dispatch.
const (
	SkipReasonApprovalPending = "approval_pending"
	SkipReasonRateLimited     = "rate_limited"
	SkipReasonMissingLead     = "missing_lead"
	SkipReasonUnknownAction   = "unknown_action"
)

// EngineMetrics records tick and step outcomes for the sequence engine.
type EngineMetrics struct {
	tickDuration prometheus.Histogram
	tickSuccess  prometheus.Counter
	tickFailure  prometheus.Counter
	steps        *prometheus.CounterVec
	skips        *prometheus.CounterVec
	completed    prometheus.Counter
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_tick_duration_seconds",
		Help:    "Duration of engine ticks in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	tickSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_tick_success_total",
		Help: "Ticks that committed.",
	})
	tickFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_tick_failure_total",
		Help: "Ticks that rolled back.",
	})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_step_executions_total",
		Help: "Step executions by action and status.",
	}, []string{"action", "status"})
	skips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_step_skips_total",
		Help: "Due steps held back before dispatch, by reason.",
	}, []string{"reason"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_enrollments_completed_total",
		Help: "Enrollments that reached the end of their sequence.",
	})
	reg.MustRegister(tickDuration, tickSuccess, tickFailure, steps, skips, completed)
	return &EngineMetrics{
		tickDuration: tickDuration,
		tickSuccess:  tickSuccess,
		tickFailure:  tickFailure,
		steps:        steps,
		skips:        skips,
		completed:    completed,
	}
}

// ObserveTick records the duration of one engine tick.
func (e *EngineMetrics) ObserveTick(duration time.Duration) {
	if e == nil || e.tickDuration == nil {
		return
	}
	e.tickDuration.Observe(duration.Seconds())
}

// IncTickSuccess increments the committed-tick counter.
func (e *EngineMetrics) IncTickSuccess() {
	if e == nil || e.tickSuccess == nil {
		return
	}
	e.tickSuccess.Inc()
}

// IncTickFailure increments the rolled-back-tick counter.
func (e *EngineMetrics) IncTickFailure() {
	if e == nil || e.tickFailure == nil {
		return
	}
	e.tickFailure.Inc()
}

// IncStep counts one step execution outcome for the given action.
func (e *EngineMetrics) IncStep(action, status string) {
	if e == nil || e.steps == nil {
		return
	}
	e.steps.WithLabelValues(normalizeLabel(action), normalizeLabel(status)).Inc()
}

// IncSkip counts a pre-dispatch skip for the given reason.
func (e *EngineMetrics) IncSkip(reason string) {
	if e == nil || e.skips == nil {
		return
	}
	e.skips.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncCompleted increments the completed-enrollment counter.
func (e *EngineMetrics) IncCompleted() {
	if e == nil || e.completed == nil {
		return
	}
	e.completed.Inc()
}
