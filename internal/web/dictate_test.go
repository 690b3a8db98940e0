package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/medscribe/internal/resilience"
	"github.com/MrWong99/medscribe/internal/session"
	"github.com/MrWong99/medscribe/internal/transcript"
	"github.com/MrWong99/medscribe/internal/translate"
	genmock "github.com/MrWong99/medscribe/pkg/provider/genmodel/mock"
	sttmock "github.com/MrWong99/medscribe/pkg/provider/stt/mock"
	"github.com/MrWong99/medscribe/pkg/types"
)

func dialDictate(t *testing.T, ctx context.Context, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/api/session/dictate", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads snapshots until cond holds.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, what string, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if typ != websocket.MessageText {
			t.Fatalf("unexpected message type %v", typ)
		}
		var snap session.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
	}
}

func expectClose(t *testing.T, ctx context.Context, conn *websocket.Conn, want websocket.StatusCode) {
	t.Helper()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != want {
		t.Errorf("close status = %v (err %v), want %v", got, err, want)
	}
}

func final(text string) types.RecognitionEvent {
	return types.RecognitionEvent{Segments: []types.RecognitionSegment{{Text: text, IsFinal: true}}}
}

// waitForChunks polls until the recognizer has received n audio chunks.
// Frames are forwarded by the socket reader independently of snapshots.
func waitForChunks(t *testing.T, rec *sttmock.Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for rec.SendAudioCallCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("recognizer received %d chunks, want %d", rec.SendAudioCallCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.SendAudioCallCount(); got != n {
		t.Errorf("recognizer received %d chunks, want %d", got, n)
	}
}

func TestDictate_StopByClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialDictate(t, ctx, f.srv.URL)
	readUntil(t, ctx, conn, "listening", func(s session.Snapshot) bool { return s.Listening })

	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x1a, 0x45, 0xdf, 0xa3}); err != nil {
		t.Fatalf("Write audio: %v", err)
	}
	f.rec.Emit(final("hi pertension"))
	snap := readUntil(t, ctx, conn, "final text", func(s session.Snapshot) bool { return s.SourceText == "hypertension " })
	if !snap.Listening {
		t.Error("expected Listening while dictating")
	}
	waitForChunks(t, f.rec, 1)

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("Write stop: %v", err)
	}
	snap = readUntil(t, ctx, conn, "stopped", func(s session.Snapshot) bool { return !s.Listening })
	if snap.SourceText != "hypertension " {
		t.Errorf("SourceText = %q after stop", snap.SourceText)
	}
	expectClose(t, ctx, conn, websocket.StatusNormalClosure)

	if f.sess.Snapshot().Listening {
		t.Error("session still listening")
	}
}

func TestDictate_RecognizerFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialDictate(t, ctx, f.srv.URL)
	readUntil(t, ctx, conn, "listening", func(s session.Snapshot) bool { return s.Listening })

	f.rec.Emit(final("fever"))
	f.rec.Finish(errors.New("upstream closed"))

	snap := readUntil(t, ctx, conn, "failure", func(s session.Snapshot) bool { return !s.Listening })
	if snap.RecognizerError == "" {
		t.Error("expected RecognizerError in the final snapshot")
	}
	if snap.SourceText != "fever " {
		t.Errorf("SourceText = %q, want finalized text kept", snap.SourceText)
	}
	expectClose(t, ctx, conn, websocket.StatusNormalClosure)

	// The session stays usable for typed input.
	resp := f.do(t, http.MethodPut, "/api/session/text", `{"text":"cough"}`)
	wantStatus(t, resp, http.StatusOK)
}

func TestDictate_ClientDisconnectStopsDictation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialDictate(t, ctx, f.srv.URL)
	readUntil(t, ctx, conn, "listening", func(s session.Snapshot) bool { return s.Listening })
	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for f.sess.Snapshot().Listening {
		if time.Now().After(deadline) {
			t.Fatal("session still listening after client disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.rec.CloseCalls() == 0 {
		t.Error("recognizer stream not closed")
	}
}

func TestDictate_AlreadyListening(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialDictate(t, ctx, f.srv.URL)
	readUntil(t, ctx, conn, "listening", func(s session.Snapshot) bool { return s.Listening })

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/api/session/dictate", nil)
	if err == nil {
		t.Fatal("second dictation socket should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("response = %v, want 409", resp)
	}

	// Typed edits are refused while dictating.
	resp2 := f.do(t, http.MethodPut, "/api/session/text", `{"text":"x"}`)
	wantStatus(t, resp2, http.StatusConflict)
}

func TestDictate_NoRecognizer(t *testing.T) {
	t.Parallel()

	enhancer, _ := transcript.NewEnhancer(transcript.DefaultRules())
	sess, err := session.New(session.Config{}, enhancer, nil, translate.New(&genmock.Model{}, resilience.NewRateLimiter()))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	srv := newTestServer(t, New(sess).Handler())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/session/dictate", nil)
	if err == nil {
		t.Fatal("expected refusal without a recognizer")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestLatestSnapshot_KeepsNewest(t *testing.T) {
	t.Parallel()

	l := newLatestSnapshot()
	l.put(session.Snapshot{Seq: 3, SourceText: "new"})
	l.put(session.Snapshot{Seq: 2, SourceText: "old"})
	if got := l.get(); got.SourceText != "new" {
		t.Errorf("get() = %q, want newest", got.SourceText)
	}
	select {
	case <-l.ready:
	default:
		t.Error("ready not signalled")
	}
}
