package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEngineMetricsExportsStepAndTickSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewEngineMetrics(reg)

	metrics.ObserveTick(120 * time.Millisecond)
	metrics.IncTickSuccess()
	metrics.IncStep("like", "executed")
	metrics.IncStep("like", "executed")
	metrics.IncStep("dm", "failed")
	metrics.IncSkip(SkipReasonRateLimited)
	metrics.IncCompleted()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "engine_step_executions_total", map[string]string{"action": "like", "status": "executed"}); err != nil {
		t.Fatalf("fetch like/executed: %v", err)
	} else if got != 2 {
		t.Fatalf("expected like/executed=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "engine_step_executions_total", map[string]string{"action": "dm", "status": "failed"}); err != nil {
		t.Fatalf("fetch dm/failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dm/failed=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "engine_step_skips_total", map[string]string{"reason": SkipReasonRateLimited}); err != nil {
		t.Fatalf("fetch skips: %v", err)
	} else if got != 1 {
		t.Fatalf("expected skips=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "engine_tick_success_total", nil); err != nil {
		t.Fatalf("fetch tick success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected tick success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "engine_enrollments_completed_total", nil); err != nil {
		t.Fatalf("fetch completed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected completed=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "engine_tick_duration_seconds", nil); err != nil {
		t.Fatalf("fetch tick duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected tick duration sum > 0, got %f", got)
	}
}
