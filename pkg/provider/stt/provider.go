// Package stt defines the Provider interface for streaming speech recognizers.
//
// A recognizer wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened for a language, a session accepts encoded audio
// frames and emits an ordered stream of [types.RecognitionEvent] values, each
// carrying interim and final segments.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/medscribe/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after the session has ended.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// Language is the BCP-47 tag for recognition (e.g., "en-US", "es-ES").
	Language string

	// Encoding names the raw audio encoding (e.g., "linear16", "opus").
	// Leave empty for containerised audio (webm, ogg) that the provider can
	// detect on its own.
	Encoding string

	// SampleRate is the audio sample rate in Hz. Only meaningful together
	// with Encoding.
	SampleRate int

	// Channels is the number of audio channels. Only meaningful together with
	// Encoding.
	Channels int

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for clinical terms.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open recognition session. It is an interface so
// that test code can provide mock implementations without a live connection.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a chunk of encoded audio. Calling SendAudio after the
	// session ended returns ErrSessionClosed (possibly wrapped).
	SendAudio(chunk []byte) error

	// Events returns the channel of recognition results in delivery order.
	// The channel is closed when the session ends, either because Close was
	// called or because the recognizer failed.
	Events() <-chan types.RecognitionEvent

	// Err reports why the session ended. It returns nil while the session is
	// running and after a clean Close; after a recognizer failure it returns
	// the failure. Only meaningful once Events is closed.
	Err() error

	// Close terminates the session and releases its resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming recognizer backend.
type Provider interface {
	// StartStream opens a new recognition session. The returned SessionHandle
	// is ready to accept audio immediately. The caller owns the handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
