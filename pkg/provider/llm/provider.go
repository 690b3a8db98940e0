// Package llm defines the Provider interface for chat-style Large Language
// Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a
// local Ollama instance, ...) behind a uniform completion call. medscribe uses
// it as an alternative translation backend through the genmodel/llmmodel
// adapter, so only the non-streaming completion path is exposed.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"fmt"
)

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero means
	// use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history. If the provider does not natively support a
	// dedicated system prompt, implementors should prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// When the backend rejects the request with an HTTP status, the returned
	// error wraps an *APIError carrying that status.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// APIError reports a non-2xx answer from an LLM backend.
type APIError struct {
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Message is the backend's error description.
	Message string

	// Err is the SDK error this APIError was derived from, if any.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }
