// Package types defines the shared types used across medscribe packages.
//
// These types are the lingua franca between recognizer providers, the
// transcript pipeline and the session layer. Each package defines its own
// domain types; only cross-cutting data structures live here to avoid
// circular imports.
package types

import "strings"

// RecognitionSegment is a single span of recognised speech.
type RecognitionSegment struct {
	// Text is the transcribed speech content of this span.
	Text string

	// IsFinal reports whether the recognizer has committed to this span. Final
	// segments are never revised; interim segments are replaced by later events.
	IsFinal bool
}

// RecognitionEvent is one batch of results delivered by a streaming
// recognizer. Segments are in delivery order. Segments finalised by earlier
// events are not repeated; only new or updated spans are present.
type RecognitionEvent struct {
	Segments []RecognitionSegment
}

// HasFinal reports whether at least one segment in the event is final.
func (e RecognitionEvent) HasFinal() bool {
	for _, s := range e.Segments {
		if s.IsFinal {
			return true
		}
	}
	return false
}

// Text joins the text of all segments with single spaces. Useful for logging.
func (e RecognitionEvent) Text() string {
	parts := make([]string, 0, len(e.Segments))
	for _, s := range e.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// KeywordBoost represents a keyword to boost in speech recognition.
// Used to improve recognition of clinical vocabulary (drug names, conditions).
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "metformin").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
