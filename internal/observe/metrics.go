// Package observe provides application-wide observability primitives for
// medscribe: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all medscribe metrics.
const meterName = "github.com/MrWong99/medscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranslateDuration tracks end-to-end translation latency, including the
	// time spent waiting for the rate limiter.
	TranslateDuration metric.Float64Histogram

	// RateLimitWait tracks how long an admission waited for a request slot.
	RateLimitWait metric.Float64Histogram

	// --- Counters ---

	// TranslateRequests counts translation attempts. Use with attributes:
	//   attribute.String("status", ...), attribute.String("kind", ...)
	TranslateRequests metric.Int64Counter

	// RecognitionEvents counts recognizer events merged into a transcript.
	// Use with attribute:
	//   attribute.String("final", "true"|"false")
	RecognitionEvents metric.Int64Counter

	// EventsPublished counts session activity events handed to the event
	// publisher. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", "ok"|"error")
	EventsPublished metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveDictations tracks the number of open recognizer streams.
	ActiveDictations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// model calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// waitBuckets covers the limiter's minimum spacing up to a full window.
var waitBuckets = []float64{
	0, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 61,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("medscribe.translate.duration",
		metric.WithDescription("Latency of translation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RateLimitWait, err = m.Float64Histogram("medscribe.ratelimit.wait",
		metric.WithDescription("Time spent waiting for a translation request slot."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranslateRequests, err = m.Int64Counter("medscribe.translate.requests",
		metric.WithDescription("Total translation requests by status and error kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionEvents, err = m.Int64Counter("medscribe.stt.events",
		metric.WithDescription("Total recognizer events merged into a transcript."),
	); err != nil {
		return nil, err
	}

	if met.EventsPublished, err = m.Int64Counter("medscribe.events.published",
		metric.WithDescription("Total session activity events by type and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("medscribe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveDictations, err = m.Int64UpDownCounter("medscribe.active_dictations",
		metric.WithDescription("Number of open recognizer streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("medscribe.http.request.duration",
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

// RecordTranslateRequest records one translation attempt. kind is empty for
// successful requests.
func (m *Metrics) RecordTranslateRequest(ctx context.Context, status, kind string) {
	m.TranslateRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("kind", kind),
		),
	)
}

// RecordRecognitionEvent records one merged recognizer event.
func (m *Metrics) RecordRecognitionEvent(ctx context.Context, final bool) {
	m.RecognitionEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("final", strconv.FormatBool(final))),
	)
}

// RecordEventPublished records one published session event. A non-nil err
// counts as a failed publish.
func (m *Metrics) RecordEventPublished(ctx context.Context, typ string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", typ),
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
