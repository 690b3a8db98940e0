package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/medscribe/pkg/provider/stt"
	"github.com/MrWong99/medscribe/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "es-ES"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "es-ES", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	// Container audio (webm/ogg) is self-describing, so no encoding params.
	for _, key := range []string{"encoding", "sample_rate", "channels"} {
		if _, ok := q[key]; ok {
			t.Errorf("expected no %q param without an encoding", key)
		}
	}
}

func TestBuildURL_RawEncoding(t *testing.T) {
	p, err := New("key", WithModel("nova-2-medical"), WithLanguage("en-US"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Encoding: "linear16", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-2-medical", q.Get("model"))
	assertEqual(t, "language", "en-US", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()

	keywords := []types.KeywordBoost{
		{Keyword: "hypertension", Boost: 5},
		{Keyword: "metformin", Boost: 3.5},
	}

	tests := []struct {
		name  string
		model string
		param string
		want  []string
	}{
		{name: "nova-3 uses keyterm", model: "nova-3", param: "keyterm", want: []string{"hypertension", "metformin"}},
		{name: "nova-3-medical uses keyterm", model: "nova-3-medical", param: "keyterm", want: []string{"hypertension", "metformin"}},
		{name: "nova-2 uses boosted keywords", model: "nova-2", param: "keywords", want: []string{"hypertension:5", "metformin:3.5"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", WithModel(tc.model))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			rawURL, err := p.buildURL(stt.StreamConfig{Keywords: keywords})
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(rawURL)
			got := u.Query()[tc.param]
			if len(got) != len(tc.want) {
				t.Fatalf("%s: want %v, got %v", tc.param, tc.want, got)
			}
			for i := range tc.want {
				assertEqual(t, tc.param, tc.want[i], got[i])
			}
		})
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	for _, key := range []string{"keywords", "keyterm"} {
		if _, ok := u.Query()[key]; ok {
			t.Errorf("expected no %q param when none provided", key)
		}
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "patient reports chest pain",
				"confidence": 0.95
			}]
		}
	}`)

	ev, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if len(ev.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(ev.Segments))
	}
	if !ev.Segments[0].IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "patient reports chest pain", ev.Segments[0].Text)
}

func TestParseDeepgramResponse_Partial(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":" patient ","confidence":0.7}]}}`)

	ev, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.HasFinal() {
		t.Error("expected no final segment for partial result")
	}
	assertEqual(t, "text", "patient", ev.Segments[0].Text)
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "silence", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`},
		{name: "invalid json", raw: `{invalid`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := parseDeepgramResponse([]byte(tc.raw)); ok {
				t.Errorf("expected ok=false for %s", tc.name)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- Streaming tests ----

func TestStartStream_DeliversEvents(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		gotAudio <- data
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hi per"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hi pertension"}]}}`))
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{Language: "en-US"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio([]byte{0x1a, 0x45}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case data := <-gotAudio:
		if len(data) != 2 {
			t.Errorf("server received %d bytes, want 2", len(data))
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for audio")
	}

	var events []types.RecognitionEvent
	for ev := range sess.Events() {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	assertEqual(t, "interim", "hi per", events[0].Text())
	if !events[1].HasFinal() {
		t.Error("expected second event to be final")
	}
	if err := sess.Err(); err != nil {
		t.Errorf("expected nil Err after normal closure, got %v", err)
	}
}

func TestStartStream_AbnormalClosureSetsErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusInternalError, "boom")
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	for range sess.Events() {
	}
	if sess.Err() == nil {
		t.Error("expected non-nil Err after abnormal closure")
	}
}

func TestSendAudio_AfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.SendAudio([]byte{1}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close: want ErrSessionClosed, got %v", err)
	}
	// Close is idempotent.
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
