package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Bucket classifies a latency sample against configured thresholds.
type Bucket string

const (
	BucketOK       Bucket = "ok"
	BucketWarn     Bucket = "warn"
	BucketCritical Bucket = "critical"
)

// Thresholds holds the warn/critical cutoffs (in milliseconds) for one
// latency metric (spec §4.7: "Latency classification buckets {ok, warn,
// critical} with thresholds encoded as configuration").
type Thresholds struct {
	WarnMs     float64
	CriticalMs float64
}

func (t Thresholds) Classify(ms float64) Bucket {
	switch {
	case ms >= t.CriticalMs:
		return BucketCritical
	case ms >= t.WarnMs:
		return BucketWarn
	default:
		return BucketOK
	}
}

// LatencyThresholds bundles the per-metric thresholds spec §4.7 names.
type LatencyThresholds struct {
	Connect  Thresholds
	STTFinal Thresholds
	LLMFirst Thresholds
	TTSFirst Thresholds
	E2E      Thresholds
}

// DefaultLatencyThresholds resolves reasonable defaults for a
// real-time voice pipeline.
func DefaultLatencyThresholds() LatencyThresholds {
	return LatencyThresholds{
		Connect:  Thresholds{WarnMs: 300, CriticalMs: 1000},
		STTFinal: Thresholds{WarnMs: 500, CriticalMs: 1500},
		LLMFirst: Thresholds{WarnMs: 600, CriticalMs: 2000},
		TTSFirst: Thresholds{WarnMs: 400, CriticalMs: 1500},
		E2E:      Thresholds{WarnMs: 1500, CriticalMs: 4000},
	}
}

// history is a fixed-capacity ring of the most recent N samples used
// to compute a rolling average.
type history struct {
	mu      sync.Mutex
	samples []float64
	cap     int
	next    int
	filled  bool
}

func newHistory(cap int) *history {
	return &history{samples: make([]float64, cap), cap: cap}
}

func (h *history) add(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = v
	h.next = (h.next + 1) % h.cap
	if h.next == 0 {
		h.filled = true
	}
}

func (h *history) average() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.next
	if h.filled {
		n = h.cap
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += h.samples[i]
	}
	return sum / float64(n)
}

// HistoryCap is the rolling-history size spec §4.7 specifies ("cap 50").
const HistoryCap = 50

// TurnLatencyTracker maintains rolling histories and bucket
// classification for the five per-turn latencies spec §4.7 names,
// feeding OTel histograms on each sample while exposing fast
// in-process averages the orchestrator can surface without querying
// the metrics backend.
type TurnLatencyTracker struct {
	metrics    *Metrics
	thresholds LatencyThresholds

	connect  *history
	sttFinal *history
	llmFirst *history
	ttsFirst *history
	e2e      *history
}

func NewTurnLatencyTracker(m *Metrics, thresholds LatencyThresholds) *TurnLatencyTracker {
	return &TurnLatencyTracker{
		metrics:    m,
		thresholds: thresholds,
		connect:    newHistory(HistoryCap),
		sttFinal:   newHistory(HistoryCap),
		llmFirst:   newHistory(HistoryCap),
		ttsFirst:   newHistory(HistoryCap),
		e2e:        newHistory(HistoryCap),
	}
}

// Sample records one observation (in milliseconds) of the named
// latency, updates its rolling history, and returns the threshold
// bucket it falls into.
func (t *TurnLatencyTracker) Sample(metricName string, ms float64) Bucket {
	var h *history
	var th Thresholds
	var hist metric.Float64Histogram

	switch metricName {
	case "connect":
		h, th, hist = t.connect, t.thresholds.Connect, t.metrics.ConnectLatency
	case "stt_final":
		h, th, hist = t.sttFinal, t.thresholds.STTFinal, t.metrics.STTFinalLatency
	case "llm_first_token":
		h, th, hist = t.llmFirst, t.thresholds.LLMFirst, t.metrics.LLMFirstToken
	case "tts_first_audio":
		h, th, hist = t.ttsFirst, t.thresholds.TTSFirst, t.metrics.TTSFirstAudio
	case "e2e":
		h, th, hist = t.e2e, t.thresholds.E2E, t.metrics.E2ELatency
	default:
		return BucketOK
	}

	h.add(ms)
	if hist != nil {
		hist.Record(context.Background(), ms/1000)
	}
	return th.Classify(ms)
}

// Averages returns the current rolling averages (milliseconds) for all
// five tracked latencies.
func (t *TurnLatencyTracker) Averages() map[string]float64 {
	return map[string]float64{
		"connect":         t.connect.average(),
		"stt_final":       t.sttFinal.average(),
		"llm_first_token": t.llmFirst.average(),
		"tts_first_audio": t.ttsFirst.average(),
		"e2e":             t.e2e.average(),
	}
}
