package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/medscribe/internal/observe"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestPublisher(t *testing.T, w *fakeWriter) *KafkaPublisher {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return &KafkaPublisher{w: w, topic: "medscribe.activity", clientID: "medscribe", metrics: m}
}

func TestNewKafka_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{name: "no brokers", cfg: KafkaConfig{Topic: "t"}, wantErr: true},
		{name: "no topic", cfg: KafkaConfig{Brokers: []string{"localhost:9092"}}, wantErr: true},
		{name: "valid", cfg: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewKafka(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewKafka() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil {
				if p.clientID != "medscribe" {
					t.Errorf("clientID = %q, want default", p.clientID)
				}
				_ = p.Close()
			}
		})
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := newTestPublisher(t, w)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type:       TranslationCompleted,
		Time:       at,
		SourceLang: "en-US",
		TargetLang: "es-ES",
		Words:      3,
		Chars:      23,
		Terms:      2,
		Duration:   1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != string(TranslationCompleted) {
		t.Errorf("key = %q", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("time = %v, want %v", msg.Time, at)
	}
	if len(msg.Headers) != 2 || msg.Headers[0].Key != "eventType" || string(msg.Headers[0].Value) != "translation.completed" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["type"] != "translation.completed" || body["source_lang"] != "en-US" || body["terms"] != float64(2) {
		t.Errorf("payload = %v", body)
	}
	if _, ok := body["error_kind"]; ok {
		t.Error("error_kind should be omitted when empty")
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	t.Parallel()

	p := newTestPublisher(t, &fakeWriter{err: io.ErrClosedPipe})
	err := p.Publish(context.Background(), Event{Type: DictationEnded})
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Publish error = %v, want wrapped io.ErrClosedPipe", err)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	if err := newTestPublisher(t, w).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	if err := Discard.Publish(context.Background(), Event{Type: LanguagesSwapped}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := Discard.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
