// Package metrics implements spec §4.7/§4.8's per-turn and process-wide
// instruments: OpenTelemetry histograms/counters/gauges exported via a
// Prometheus bridge, plus the per-turn rolling-history/latency-bucket
// bookkeeping the turn orchestrator consults directly (the OTel API
// alone has no notion of "last 50 samples" or "ok/warn/critical").
// Grounded on MrWong99-glyphoxa/internal/observe/{metrics,provider}.go:
// the meter/instrument layout and InitProvider's Prometheus-bridge
// wiring are carried over near verbatim; the rolling-history and
// latency-bucket types are new, since glyphoxa's Metrics has no
// equivalent (it only ever records into OTel instruments).
package metrics

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/square-key-labs/agentgateway"

// latencyBuckets mirrors typical voice-pipeline latency distributions.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds the process-wide OpenTelemetry instruments named in
// spec §4.7/§4.8.
type Metrics struct {
	ConnectLatency   metric.Float64Histogram
	STTFinalLatency  metric.Float64Histogram
	LLMFirstToken    metric.Float64Histogram
	TTSFirstAudio    metric.Float64Histogram
	E2ELatency       metric.Float64Histogram

	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter
	TurnsCompleted   metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
	QueueDepth     metric.Int64UpDownCounter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ConnectLatency, err = m.Float64Histogram("agentgateway.connect.latency",
		metric.WithDescription("STT connect latency."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.STTFinalLatency, err = m.Float64Histogram("agentgateway.stt.final.latency",
		metric.WithDescription("Latency from last received audio to STT final."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.LLMFirstToken, err = m.Float64Histogram("agentgateway.llm.first_token.latency",
		metric.WithDescription("Latency to first LLM token."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.TTSFirstAudio, err = m.Float64Histogram("agentgateway.tts.first_audio.latency",
		metric.WithDescription("Latency to first TTS audio chunk."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.E2ELatency, err = m.Float64Histogram("agentgateway.turn.e2e.latency",
		metric.WithDescription("End-to-end turn latency."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("agentgateway.provider.requests",
		metric.WithDescription("Provider API requests by provider, capability, status.")); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("agentgateway.provider.errors",
		metric.WithDescription("Provider errors by provider, capability.")); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("agentgateway.turns.completed",
		metric.WithDescription("Completed turns by outcome.")); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("agentgateway.active_sessions",
		metric.WithDescription("Live voice sessions.")); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("agentgateway.queue.depth",
		metric.WithDescription("Per-connection queued event count.")); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics instance backed by
// whatever MeterProvider is currently registered globally.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, capability, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("capability", capability),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, capability string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("capability", capability),
	))
}

func (m *Metrics) RecordTurnCompleted(ctx context.Context, outcome string) {
	m.TurnsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ProviderConfig configures the OTel SDK's metric provider.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
}

// InitProvider wires a Prometheus-backed MeterProvider and registers it
// globally, returning a shutdown func for graceful termination. Mirrors
// glyphoxa's InitProvider, minus trace-exporter wiring (this module
// carries ambient metrics and logging but not tracing; see DESIGN.md).
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentgateway"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var errs []error
		if e := mp.Shutdown(ctx); e != nil {
			errs = append(errs, e)
		}
		return errors.Join(errs...)
	}, nil
}
