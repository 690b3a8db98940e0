package translate

import (
	"errors"
	"fmt"
)

// Kind classifies a translation failure.
type Kind int

const (
	// TransportError covers every network or non-2xx failure not matched by a
	// more specific kind. It is the zero value.
	TransportError Kind = iota
	// InvalidInput means the source text was blank. No quota is consumed.
	InvalidInput
	// UnknownLanguage means a speech code is missing from the language table.
	UnknownLanguage
	// RateLimitExceeded means the backend rejected the call for quota reasons.
	RateLimitExceeded
	// PermissionDenied means the credentials were rejected or lack access.
	PermissionDenied
	// ModelUnavailable means the configured model does not exist.
	ModelUnavailable
	// MalformedResponse means the backend answered 2xx without a text result.
	MalformedResponse
)

var kindNames = map[Kind]string{
	TransportError:    "transport_error",
	InvalidInput:      "invalid_input",
	UnknownLanguage:   "unknown_language",
	RateLimitExceeded: "rate_limit_exceeded",
	PermissionDenied:  "permission_denied",
	ModelUnavailable:  "model_unavailable",
	MalformedResponse: "malformed_response",
}

// String returns the snake_case name used in logs, metrics and JSON.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// User-facing messages.
const (
	msgInvalidInput      = "Please enter some text to translate."
	msgRateLimit         = "Rate limit exceeded. Free tier allows 15 requests per minute. Please wait 60 seconds and try again."
	msgModelUnavailable  = "Model not available. Please verify your API key."
	msgInvalidKey        = "Invalid API key. Get a new key at https://aistudio.google.com/apikey"
	msgNoPermission      = "API key doesn't have permission. Create a new key."
	msgMalformedResponse = "Translation failed: the model returned no text."
)

// Error is a classified translation failure. Message is safe to show to the
// end user; Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translate: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("translate: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain. ok is false when
// err carries no classification.
func KindOf(err error) (k Kind, ok bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// UserMessage returns the end-user message for err. Errors without a
// classification fall back to err.Error().
func UserMessage(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
