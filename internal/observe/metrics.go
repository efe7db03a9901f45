// Package observe provides application-wide observability primitives for
// callbridge: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callbridge metrics.
const meterName = "github.com/brightclean/callbridge"

// Drop reasons recorded on [Metrics.FramesDropped].
const (
	DropMuted        = "muted"
	DropBackpressure = "backpressure"
	DropNotConnected = "not_connected"
)

// Metrics holds all OpenTelemetry metric instruments for the voice client.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks the time from dial start to channel open.
	ConnectDuration metric.Float64Histogram

	// CallDuration tracks the length of finished calls.
	CallDuration metric.Float64Histogram

	// CallsStarted counts calls that reached Connecting. Use with attribute:
	//   attribute.String("outcome", "connected"|"simulating")
	CallsStarted metric.Int64Counter

	// Transitions counts state machine transitions. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	Transitions metric.Int64Counter

	// FramesSent counts input_audio_buffer.append messages written.
	FramesSent metric.Int64Counter

	// FramesDropped counts captured frames discarded before sending. Use with
	// attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// EventsReceived counts inbound bridge events. Use with
	// attribute.String("type", ...).
	EventsReceived metric.Int64Counter

	// DecodeErrors counts inbound audio frames dropped by the playback
	// scheduler.
	DecodeErrors metric.Int64Counter

	// PermissionErrors counts calls refused because the microphone was denied.
	PermissionErrors metric.Int64Counter

	// ActiveCalls tracks the number of live sessions.
	ActiveCalls metric.Int64UpDownCounter

	// HTTPRequestDuration tracks status server request time. Use with
	// attributes attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// bridge handshake.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callBuckets covers call lengths from a few seconds to an hour.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("callbridge.connect.duration",
		metric.WithDescription("Time from dialing the speech bridge to the channel opening."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("callbridge.call.duration",
		metric.WithDescription("Length of finished calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CallsStarted, err = m.Int64Counter("callbridge.calls.started",
		metric.WithDescription("Calls that left Connecting, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("callbridge.call.transitions",
		metric.WithDescription("Call state machine transitions by from/to state."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("callbridge.audio.frames_sent",
		metric.WithDescription("Captured frames sent to the bridge."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("callbridge.audio.frames_dropped",
		metric.WithDescription("Captured frames dropped before sending, by reason."),
	); err != nil {
		return nil, err
	}
	if met.EventsReceived, err = m.Int64Counter("callbridge.events.received",
		metric.WithDescription("Inbound bridge events by type."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("callbridge.playback.decode_errors",
		metric.WithDescription("Response audio frames dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.PermissionErrors, err = m.Int64Counter("callbridge.permission.errors",
		metric.WithDescription("Call starts refused because microphone access failed."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("callbridge.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("callbridge.http.request.duration",
		metric.WithDescription("Status server request latency by method and path."),
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

// RecordTransition records one state machine transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.Transitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordDrop records one dropped capture frame.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEvent records one inbound bridge event.
func (m *Metrics) RecordEvent(ctx context.Context, typ string) {
	m.EventsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
}

// RecordCallStarted records the outcome of leaving the Connecting state.
func (m *Metrics) RecordCallStarted(ctx context.Context, outcome string) {
	m.CallsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
