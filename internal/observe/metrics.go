// Package observe provides application-wide observability primitives for
// the gateway: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/MrWong99/omniagent"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks speech-to-text transcription latency, one
	// observation per final transcript.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency (Complete or a full StreamCompletion).
	LLMDuration metric.Float64Histogram

	// StreamDuration tracks the wall-clock duration of a bidirectional
	// multimodal stream, from the Start frame to transport close.
	StreamDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// TriggerDecisions counts trigger policy evaluations. Use with attributes:
	//   attribute.String("modality", ...), attribute.Bool("invoked", ...)
	TriggerDecisions metric.Int64Counter

	// TokensTotal counts LLM tokens consumed. Use with attribute:
	//   attribute.String("direction", "prompt"|"completion")
	TokensTotal metric.Int64Counter

	// SessionsStarted counts sessions successfully created.
	SessionsStarted metric.Int64Counter

	// SessionsClosed counts sessions that transitioned to CLOSED or EXPIRED.
	// Use with attribute: attribute.String("reason", ...)
	SessionsClosed metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of currently active sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of open bidirectional streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("omniagent.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("omniagent.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("omniagent.stream.duration",
		metric.WithDescription("Duration of a bidirectional multimodal stream."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("omniagent.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("omniagent.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TriggerDecisions, err = m.Int64Counter("omniagent.trigger.decisions",
		metric.WithDescription("Total trigger policy evaluations by modality and outcome."),
	); err != nil {
		return nil, err
	}
	if met.TokensTotal, err = m.Int64Counter("omniagent.tokens.total",
		metric.WithDescription("Total LLM tokens consumed by direction."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("omniagent.sessions.started",
		metric.WithDescription("Total sessions created."),
	); err != nil {
		return nil, err
	}
	if met.SessionsClosed, err = m.Int64Counter("omniagent.sessions.closed",
		metric.WithDescription("Total sessions closed, by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("omniagent.active_sessions",
		metric.WithDescription("Number of currently active sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("omniagent.active_streams",
		metric.WithDescription("Number of open bidirectional multimodal streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("omniagent.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTriggerDecision is a convenience method that records a trigger policy
// evaluation outcome.
func (m *Metrics) RecordTriggerDecision(ctx context.Context, modality string, invoked bool) {
	m.TriggerDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("modality", modality),
			attribute.Bool("invoked", invoked),
		),
	)
}

// RecordSessionClosed is a convenience method that records a session close
// with its reason ("closed", "expired").
func (m *Metrics) RecordSessionClosed(ctx context.Context, reason string) {
	m.SessionsClosed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
