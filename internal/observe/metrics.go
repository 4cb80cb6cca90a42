// Package observe provides application-wide observability primitives for
// livevad: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all livevad metrics.
const meterName = "github.com/MrWong99/livevad"

// Connection outcomes recorded on [Metrics.Connections].
const (
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeShutdown = "shutdown"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveConnections tracks the number of live streaming connections.
	ActiveConnections metric.Int64UpDownCounter

	// --- Counters ---

	// Connections counts finished or refused connections. Use with attribute:
	//   attribute.String("outcome", ...)
	Connections metric.Int64Counter

	// BytesReceived counts inbound audio bytes across all connections.
	BytesReceived metric.Int64Counter

	// WindowsProcessed counts analysis windows handed to the scorer.
	WindowsProcessed metric.Int64Counter

	// SpeechEvents counts boundaries sent to clients. Use with attribute:
	//   attribute.String("kind", "START"|"END")
	SpeechEvents metric.Int64Counter

	// --- Error counters ---

	// SessionErrors counts session-fatal failures. Use with attribute:
	//   attribute.String("kind", "decode"|"scoring"|"transport"|"panic"|...)
	SessionErrors metric.Int64Counter

	// --- Latency histograms ---

	// ScoreDuration tracks the time spent scoring a single window.
	ScoreDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// scoreBuckets defines histogram bucket boundaries (in seconds) for a single
// window score; a 1536-sample window at 22 kHz is ~70 ms of audio.
var scoreBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("livevad.connections.active",
		metric.WithDescription("Number of live streaming connections."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Connections, err = m.Int64Counter("livevad.connections",
		metric.WithDescription("Total connections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BytesReceived, err = m.Int64Counter("livevad.bytes.received",
		metric.WithDescription("Total inbound audio bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.WindowsProcessed, err = m.Int64Counter("livevad.windows.processed",
		metric.WithDescription("Total analysis windows scored."),
	); err != nil {
		return nil, err
	}
	if met.SpeechEvents, err = m.Int64Counter("livevad.speech.events",
		metric.WithDescription("Total speech boundaries sent to clients by kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SessionErrors, err = m.Int64Counter("livevad.session.errors",
		metric.WithDescription("Total session-fatal errors by kind."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ScoreDuration, err = m.Float64Histogram("livevad.score.duration",
		metric.WithDescription("Latency of scoring one analysis window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("livevad.http.request.duration",
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

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

// ConnectionClosed decrements the active connection gauge and records the
// outcome.
func (m *Metrics) ConnectionClosed(ctx context.Context, outcome string) {
	m.ActiveConnections.Add(ctx, -1)
	m.RecordConnection(ctx, outcome)
}

// RecordConnection counts a connection with the given outcome without
// touching the active gauge. Used for connections refused before they start.
func (m *Metrics) RecordConnection(ctx context.Context, outcome string) {
	m.Connections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordSpeechEvent is a convenience method that records a sent boundary.
func (m *Metrics) RecordSpeechEvent(ctx context.Context, kind string) {
	m.SpeechEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSessionError is a convenience method that records a session-fatal
// error counter increment.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
