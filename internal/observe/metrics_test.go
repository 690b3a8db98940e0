package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumByAttr returns the counter value of the data point whose attribute key
// has value, or -1 when no such point exists.
func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"medscribe.translate.duration", m.TranslateDuration},
		{"medscribe.ratelimit.wait", m.RateLimitWait},
		{"medscribe.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 5.5)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestTranslateRequestsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranslateRequest(ctx, "ok", "")
	m.RecordTranslateRequest(ctx, "ok", "")
	m.RecordTranslateRequest(ctx, "error", "rate_limit_exceeded")

	rm := collect(t, reader)
	met := findMetric(rm, "medscribe.translate.requests")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "status", "ok"); got != 2 {
		t.Errorf("status=ok value = %d, want 2", got)
	}
	if got := sumByAttr(t, met, "kind", "rate_limit_exceeded"); got != 1 {
		t.Errorf("kind=rate_limit_exceeded value = %d, want 1", got)
	}
}

func TestEventsPublishedCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEventPublished(ctx, "translation.completed", nil)
	m.RecordEventPublished(ctx, "dictation.ended", errors.New("broker down"))

	met := findMetric(collect(t, reader), "medscribe.events.published")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "status", "error"); got != 1 {
		t.Errorf("status=error value = %d, want 1", got)
	}
	if got := sumByAttr(t, met, "type", "translation.completed"); got != 1 {
		t.Errorf("type=translation.completed value = %d, want 1", got)
	}
}

func TestRecognitionEventsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognitionEvent(ctx, true)
	m.RecordRecognitionEvent(ctx, false)
	m.RecordRecognitionEvent(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "medscribe.stt.events")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "final", "false"); got != 2 {
		t.Errorf("final=false value = %d, want 2", got)
	}
	if got := sumByAttr(t, met, "final", "true"); got != 1 {
		t.Errorf("final=true value = %d, want 1", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "deepgram", "stt")

	rm := collect(t, reader)
	met := findMetric(rm, "medscribe.provider.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "provider", "deepgram"); got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestActiveDictationsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveDictations.Add(ctx, 1)
	m.ActiveDictations.Add(ctx, 1)
	m.ActiveDictations.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "medscribe.active_dictations")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
