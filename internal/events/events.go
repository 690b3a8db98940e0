// Package events publishes session activity to external consumers such as
// an analytics pipeline or an audit log.
//
// Events describe what happened (dictation started, translation failed, ...)
// together with languages, sizes and error kinds. They never carry the
// transcript or translation text, so publishing them does not persist
// clinical content.
package events

import (
	"context"
	"time"
)

// Type names an event.
type Type string

const (
	DictationStarted     Type = "dictation.started"
	DictationEnded       Type = "dictation.ended"
	TranslationCompleted Type = "translation.completed"
	TranslationFailed    Type = "translation.failed"
	LanguagesSwapped     Type = "languages.swapped"
)

// Event is one unit of session activity.
type Event struct {
	Type       Type      `json:"type"`
	Time       time.Time `json:"time"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`

	// Words and Chars size the source text at the time of the event.
	Words int `json:"words"`
	Chars int `json:"chars"`

	// Terms is the number of domain terms detected in the source text.
	Terms int `json:"terms"`

	// ErrorKind classifies a failed translation or recognizer stream.
	ErrorKind string `json:"error_kind,omitempty"`

	// Duration is the wall time of a translation, limiter wait included.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use
// and must not block the caller on network round-trips.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
func (discard) Close() error                         { return nil }
