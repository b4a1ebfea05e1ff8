// Package observe provides application-wide observability primitives for
// the research MCP server: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all application metrics.
const meterName = "github.com/triepod-ai/ollama-research-mcp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResearchDuration tracks end-to-end executeResearch wall-clock time.
	ResearchDuration metric.Float64Histogram

	// ModelDispatchDuration tracks per-model generate() latency.
	ModelDispatchDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time (healthz/metrics
	// surface). Use with attributes: attribute.String("method", ...),
	// attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ResearchCalls counts executeResearch invocations. Use with attribute:
	//   attribute.String("outcome", ...) — one of ok, validation, not_found,
	//   unavailable.
	ResearchCalls metric.Int64Counter

	// ModelDispatches counts per-model generation attempts. Use with
	// attributes: attribute.String("model", ...), attribute.String("tier", ...),
	// attribute.String("status", ...)
	ModelDispatches metric.Int64Counter

	// UpstreamErrors counts upstream client failures by kind. Use with
	// attribute: attribute.String("kind", ...)
	UpstreamErrors metric.Int64Counter

	// CircuitBreakerTrips counts transitions of the upstream circuit breaker
	// into the open state.
	CircuitBreakerTrips metric.Int64Counter

	// --- Distributions recorded as histograms of a unitless value ---

	// Confidence records the calibrated confidence of each research result.
	Confidence metric.Float64Histogram

	// SynthesisLength records the character length of each synthesis.
	SynthesisLength metric.Float64Histogram

	// --- Gauges ---

	// RegisteredModels tracks the number of models in the capability registry
	// as of the last refresh.
	RegisteredModels metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM generation latencies, which run from sub-second to multi-minute.
var latencyBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 240,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResearchDuration, err = m.Float64Histogram("ollama_research.research.duration",
		metric.WithDescription("Wall-clock duration of executeResearch calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelDispatchDuration, err = m.Float64Histogram("ollama_research.model_dispatch.duration",
		metric.WithDescription("Latency of a single per-model generate call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ollama_research.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.ResearchCalls, err = m.Int64Counter("ollama_research.research.calls",
		metric.WithDescription("Total executeResearch invocations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ModelDispatches, err = m.Int64Counter("ollama_research.model_dispatch.calls",
		metric.WithDescription("Total per-model generation attempts by model, tier, and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("ollama_research.upstream.errors",
		metric.WithDescription("Total upstream client errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.CircuitBreakerTrips, err = m.Int64Counter("ollama_research.circuit_breaker.trips",
		metric.WithDescription("Total transitions of the upstream circuit breaker into the open state."),
	); err != nil {
		return nil, err
	}

	if met.Confidence, err = m.Float64Histogram("ollama_research.research.confidence",
		metric.WithDescription("Calibrated confidence of research results."),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	); err != nil {
		return nil, err
	}
	if met.SynthesisLength, err = m.Float64Histogram("ollama_research.research.synthesis_length",
		metric.WithDescription("Character length of the composed synthesis."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if met.RegisteredModels, err = m.Int64UpDownCounter("ollama_research.registry.models",
		metric.WithDescription("Number of models known to the capability registry."),
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

// RecordResearchCall is a convenience method that records a research call
// counter increment with the standard attribute set.
func (m *Metrics) RecordResearchCall(ctx context.Context, outcome string) {
	m.ResearchCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordModelDispatch is a convenience method that records a per-model
// dispatch counter increment with the standard attribute set.
func (m *Metrics) RecordModelDispatch(ctx context.Context, model, tier, status string) {
	m.ModelDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("tier", tier),
			attribute.String("status", status),
		),
	)
}

// RecordUpstreamError is a convenience method that records an upstream error
// counter increment.
func (m *Metrics) RecordUpstreamError(ctx context.Context, kind string) {
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
