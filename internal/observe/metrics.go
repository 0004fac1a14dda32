// Package observe provides application-wide observability primitives for
// toolroute: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all toolroute metrics.
const meterName = "github.com/MrWong99/toolroute"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// RouteDuration tracks the oracle round trip of a routing decision.
	RouteDuration metric.Float64Histogram

	// RouteFallbacks counts degraded routing decisions. Use with attribute:
	//   attribute.String("reason", ...)
	RouteFallbacks metric.Int64Counter

	// ToolCallDuration tracks tool invocation latency including session
	// setup. Use with attribute attribute.String("tool", ...).
	ToolCallDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Envelopes counts dispatched envelopes by kind and tool.
	Envelopes metric.Int64Counter

	// ArtifactUploads counts artifact store uploads by status.
	ArtifactUploads metric.Int64Counter

	// ProviderRequests counts generative-model calls made by the tool server.
	// Use with attributes provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ActiveConversations tracks the number of open conversations.
	ActiveConversations metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Tool calls
// include process start-up for stdio servers and image generation, so the
// upper buckets reach further than typical request latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RouteDuration, err = m.Float64Histogram("toolroute.route.duration",
		metric.WithDescription("Latency of oracle routing decisions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RouteFallbacks, err = m.Int64Counter("toolroute.route.fallbacks",
		metric.WithDescription("Routing decisions degraded to the fallback tool, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ToolCallDuration, err = m.Float64Histogram("toolroute.tool.duration",
		metric.WithDescription("Latency of remote tool invocations including session setup."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("toolroute.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Envelopes, err = m.Int64Counter("toolroute.dispatch.envelopes",
		metric.WithDescription("Envelopes produced by the dispatcher, by kind and tool."),
	); err != nil {
		return nil, err
	}
	if met.ArtifactUploads, err = m.Int64Counter("toolroute.artifact.uploads",
		metric.WithDescription("Artifact store uploads by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("toolroute.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConversations, err = m.Int64UpDownCounter("toolroute.active_conversations",
		metric.WithDescription("Number of open conversations."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("toolroute.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRoute records the latency of a routing decision, and a fallback
// increment when reason is non-empty.
func (m *Metrics) RecordRoute(ctx context.Context, d time.Duration, reason string) {
	m.RouteDuration.Record(ctx, d.Seconds())
	if reason != "" {
		m.RouteFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// RecordToolCall records a tool call counter increment and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolCallDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordEnvelope records one dispatched envelope.
func (m *Metrics) RecordEnvelope(ctx context.Context, kind, tool string) {
	m.Envelopes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("tool", tool),
		),
	)
}

// RecordUpload records one artifact upload attempt.
func (m *Metrics) RecordUpload(ctx context.Context, status string) {
	m.ArtifactUploads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
