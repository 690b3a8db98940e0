// Package genmodel defines the Model interface for generative text backends
// used by the translation client.
//
// The request and response shapes mirror the Gemini generateContent API: a
// single prompt in, a list of candidates out, each with content made of
// parts. Callers read candidates[0].content.parts[0].text and treat its
// absence as a malformed answer, so the response types keep every level of
// that path optional instead of flattening it.
//
// Implementations must be safe for concurrent use and must issue at most one
// upstream request per Generate call (no internal retries).
package genmodel

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedResponse is wrapped by backends when a successful call yields
// no response at all.
var ErrMalformedResponse = errors.New("genmodel: malformed response")

// GenerationConfig carries sampling parameters forwarded to the backend. Zero
// values mean "use the backend default".
type GenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GenerateRequest is a single-turn prompt.
type GenerateRequest struct {
	Prompt string
	Config GenerationConfig
}

// Part is one piece of candidate content. Text is nil when the part carries
// no text (e.g. inline data or a function call).
type Part struct {
	Text *string `json:"text,omitempty"`
}

// Content is the body of a candidate.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Candidate is one alternative answer produced by the model.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// GenerateResponse is the backend's answer to a GenerateRequest.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates,omitempty"`
}

// FirstText returns candidates[0].content.parts[0].text. ok is false when any
// element along that path is missing. An empty string is a present value.
func (r *GenerateResponse) FirstText() (text string, ok bool) {
	if r == nil || len(r.Candidates) == 0 {
		return "", false
	}
	c := r.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0].Text == nil {
		return "", false
	}
	return *c.Parts[0].Text, true
}

// TextResponse builds a single-candidate response carrying text. Useful for
// adapters and tests.
func TextResponse(text string) *GenerateResponse {
	return &GenerateResponse{
		Candidates: []Candidate{{
			Content: &Content{Role: "model", Parts: []Part{{Text: &text}}},
		}},
	}
}

// Model is the abstraction over any generative text backend.
type Model interface {
	// Generate sends req to the backend and returns its answer. Non-2xx
	// answers are reported as an error wrapping *StatusError when the backend
	// exposes an HTTP status.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// StatusError reports a non-2xx HTTP answer from a model backend.
type StatusError struct {
	// StatusCode is the HTTP status code (e.g. 429).
	StatusCode int

	// Status is the backend's symbolic status, when provided
	// (e.g. "RESOURCE_EXHAUSTED", "PERMISSION_DENIED").
	Status string

	// Message is the backend's human-readable description.
	Message string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("status %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}
