package metrics

import (
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestTurnLatencyTrackerClassifiesBuckets(t *testing.T) {
	tracker := NewTurnLatencyTracker(newTestMetrics(t), DefaultLatencyThresholds())

	if b := tracker.Sample("e2e", 100); b != BucketOK {
		t.Fatalf("bucket = %v, want ok", b)
	}
	if b := tracker.Sample("e2e", 2000); b != BucketWarn {
		t.Fatalf("bucket = %v, want warn", b)
	}
	if b := tracker.Sample("e2e", 5000); b != BucketCritical {
		t.Fatalf("bucket = %v, want critical", b)
	}
}

func TestTurnLatencyTrackerRollingAverage(t *testing.T) {
	tracker := NewTurnLatencyTracker(newTestMetrics(t), DefaultLatencyThresholds())

	tracker.Sample("llm_first_token", 100)
	tracker.Sample("llm_first_token", 200)
	tracker.Sample("llm_first_token", 300)

	avg := tracker.Averages()["llm_first_token"]
	if avg != 200 {
		t.Fatalf("average = %v, want 200", avg)
	}
}

func TestHistoryWrapsAtCapacity(t *testing.T) {
	h := newHistory(3)
	h.add(10)
	h.add(20)
	h.add(30)
	if avg := h.average(); avg != 20 {
		t.Fatalf("average = %v, want 20", avg)
	}
	h.add(100) // overwrites the first sample (10)
	if avg := h.average(); avg != 50 {
		t.Fatalf("average after wrap = %v, want 50", avg)
	}
}

func TestUnknownMetricNameReturnsOK(t *testing.T) {
	tracker := NewTurnLatencyTracker(newTestMetrics(t), DefaultLatencyThresholds())
	if b := tracker.Sample("bogus", 999999); b != BucketOK {
		t.Fatalf("bucket = %v, want ok for unknown metric name", b)
	}
}
