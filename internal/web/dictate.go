package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/medscribe/internal/session"
	"github.com/MrWong99/medscribe/pkg/provider/stt"
)

const (
	// maxAudioMessage bounds a single audio frame from the browser.
	maxAudioMessage = 1 << 20

	writeTimeout = 5 * time.Second
)

// errClientClosed ends a dictation whose socket was closed by the client.
var errClientClosed = errors.New("web: dictation socket closed by client")

// controlMessage is a text frame sent by the client on the dictation socket.
type controlMessage struct {
	Type string `json:"type"`
}

// latestSnapshot holds the newest undelivered snapshot. Intermediate
// snapshots are dropped when the socket is slower than the recognizer; the
// client only ever needs the latest display state.
type latestSnapshot struct {
	mu    sync.Mutex
	snap  session.Snapshot
	ready chan struct{}
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{ready: make(chan struct{}, 1)}
}

// put stores s unless a newer snapshot is already held.
func (l *latestSnapshot) put(s session.Snapshot) {
	l.mu.Lock()
	if s.Seq < l.snap.Seq {
		l.mu.Unlock()
		return
	}
	l.snap = s
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) get() session.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// dictation is one websocket-driven dictation.
type dictation struct {
	sess   *session.Session
	conn   *websocket.Conn
	latest *latestSnapshot

	// finished is set once the final snapshot went out and the server
	// started the close handshake.
	finished atomic.Bool
}

// handleDictate upgrades to a websocket and runs one dictation. Binary frames
// are forwarded to the recognizer as audio. A text frame {"type":"stop"} or
// closing the socket stops dictation. Every session change is pushed to the
// client as a JSON snapshot; the server closes the socket once dictation has
// ended and the final snapshot is delivered.
func (s *Server) handleDictate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.sess.StartDictation(ctx); err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		if err := s.sess.StopDictation(); err != nil {
			slog.Warn("stop dictation", "err", err)
		}
	}()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("dictation: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxAudioMessage)

	d := &dictation{sess: s.sess, conn: conn, latest: newLatestSnapshot()}
	cancelSub := s.sess.Subscribe(d.latest.put)
	defer cancelSub()
	d.latest.put(s.sess.Snapshot())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.readAudio(gctx) })
	g.Go(func() error { return d.writeSnapshots(gctx) })

	switch err := g.Wait(); {
	case err == nil, errors.Is(err, errClientClosed):
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		slog.Warn("dictation socket failed", "err", err)
		conn.Close(websocket.StatusInternalError, "dictation failed")
	}
}

// readAudio forwards binary frames to the recognizer. A stop request ends
// dictation but keeps reading until the server closes the socket.
func (d *dictation) readAudio(ctx context.Context) error {
	for {
		typ, data, err := d.conn.Read(ctx)
		if err != nil {
			switch {
			case d.finished.Load():
				return nil
			case websocket.CloseStatus(err) != -1:
				return errClientClosed
			case ctx.Err() != nil:
				return ctx.Err()
			}
			return err
		}

		if typ == websocket.MessageText {
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "stop" {
				if err := d.sess.StopDictation(); err != nil {
					return err
				}
			}
			continue
		}

		// Audio racing the end of a recognizer stream is dropped; the
		// writer delivers the final state.
		err = d.sess.SendAudio(data)
		if err != nil && !errors.Is(err, session.ErrNotDictating) && !errors.Is(err, stt.ErrSessionClosed) {
			return err
		}
	}
}

// writeSnapshots sends the latest snapshot whenever one is pending. After
// delivering a snapshot with Listening false it closes the socket and
// returns nil.
func (d *dictation) writeSnapshots(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.latest.ready:
		}

		snap := d.latest.get()
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = d.conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return err
		}

		if !snap.Listening {
			d.finished.Store(true)
			return d.conn.Close(websocket.StatusNormalClosure, "dictation ended")
		}
	}
}
