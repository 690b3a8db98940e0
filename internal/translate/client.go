// Package translate turns dictated text into another language through a
// generative model while staying inside the model's request quota.
//
// [Client.Translate] performs exactly one model call per invocation that
// passes input validation, gated by a shared [resilience.RateLimiter]. Every
// failure is reported as an [*Error] whose [Kind] tells the caller what went
// wrong and whose Message can be shown to the user as is. There is no
// automatic retry: a new Translate call is a new request against the quota.
package translate

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"

	"github.com/MrWong99/medscribe/internal/observe"
	"github.com/MrWong99/medscribe/internal/resilience"
	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
)

// Request is one translation job. Languages are recognizer speech codes such
// as "en-US".
type Request struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// Option is a functional option for [New].
type Option func(*Client)

// WithTemperature sets the sampling temperature sent with every request.
// Zero leaves the backend default.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.config.Temperature = t
	}
}

// WithMaxOutputTokens caps the length of the model's answer. Zero leaves the
// backend default.
func WithMaxOutputTokens(n int) Option {
	return func(c *Client) {
		c.config.MaxOutputTokens = n
	}
}

// WithBackendName sets the label reported in logs and provider error metrics.
// Default: "model".
func WithBackendName(name string) Option {
	return func(c *Client) {
		c.backend = name
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client translates text through a [genmodel.Model]. It is safe for
// concurrent use; callers that want one request in flight at a time must
// serialise themselves.
type Client struct {
	model   genmodel.Model
	limiter *resilience.RateLimiter
	config  genmodel.GenerationConfig
	backend string
	metrics *observe.Metrics
}

// New returns a Client that sends requests to model once limiter admits them.
// It panics if model or limiter is nil.
func New(model genmodel.Model, limiter *resilience.RateLimiter, opts ...Option) *Client {
	if model == nil {
		panic("translate: model must not be nil")
	}
	if limiter == nil {
		panic("translate: limiter must not be nil")
	}
	c := &Client{
		model:   model,
		limiter: limiter,
		backend: "model",
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Translate translates req.Text from req.SourceLang to req.TargetLang.
//
// Blank text fails with InvalidInput before the limiter is consulted, so it
// never consumes quota. Past that point exactly one limiter slot is used,
// whatever the outcome. All returned errors are *Error; a context that ends
// while waiting for a slot yields a TransportError wrapping ctx.Err().
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "translate.Translate",
		trace.WithAttributes(
			attribute.String("translate.source", req.SourceLang),
			attribute.String("translate.target", req.TargetLang),
			attribute.Int("translate.chars", len(req.Text)),
		),
	)
	defer span.End()

	out, err := c.translate(ctx, req)

	elapsed := time.Since(start)
	status, kind := "ok", ""
	if err != nil {
		k, _ := KindOf(err)
		status, kind = "error", k.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		observe.Logger(ctx).Warn("translation failed",
			"backend", c.backend,
			"kind", kind,
			"duration", elapsed,
			"err", err,
		)
	} else {
		observe.Logger(ctx).Debug("translation done",
			"backend", c.backend,
			"source", req.SourceLang,
			"target", req.TargetLang,
			"duration", elapsed,
		)
	}
	c.metrics.RecordTranslateRequest(ctx, status, kind)
	c.metrics.TranslateDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("status", status)))
	return out, err
}

func (c *Client) translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", &Error{Kind: InvalidInput, Message: msgInvalidInput}
	}

	if err := c.limiter.Admit(ctx); err != nil {
		return "", &Error{Kind: TransportError, Message: "Translation cancelled.", Err: err}
	}

	src, err := ResolveModelCode(req.SourceLang)
	if err != nil {
		return "", err
	}
	tgt, err := ResolveModelCode(req.TargetLang)
	if err != nil {
		return "", err
	}

	resp, err := c.model.Generate(ctx, genmodel.GenerateRequest{
		Prompt: BuildPrompt(req.Text, DisplayName(src), DisplayName(tgt)),
		Config: c.config,
	})
	if err != nil {
		te := Classify(err)
		c.metrics.RecordProviderError(ctx, c.backend, te.Kind.String())
		return "", te
	}

	text, ok := resp.FirstText()
	if !ok {
		return "", &Error{Kind: MalformedResponse, Message: msgMalformedResponse}
	}
	return strings.TrimSpace(text), nil
}

// RateStatus reports the limiter's current window occupancy.
func (c *Client) RateStatus() resilience.RateStatus {
	return c.limiter.Status()
}

// Classify maps a model failure to an *Error. Undecodable answers are
// MalformedResponse. An HTTP status, when the chain
// carries one, decides first: 429, 403 and 404 map to RateLimitExceeded,
// PermissionDenied and ModelUnavailable. Otherwise the message is searched,
// case-insensitively, for quota, not-found, key and permission phrasing in
// that order. Anything else is a TransportError.
func Classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, genmodel.ErrMalformedResponse) {
		return &Error{Kind: MalformedResponse, Message: msgMalformedResponse, Err: err}
	}

	status := 0
	var se *genmodel.StatusError
	var ge *googleapi.Error
	switch {
	case errors.As(err, &se):
		status = se.StatusCode
	case errors.As(err, &ge):
		status = ge.Code
	}
	switch status {
	case 429:
		return &Error{Kind: RateLimitExceeded, Message: msgRateLimit, Err: err}
	case 403:
		return &Error{Kind: PermissionDenied, Message: msgInvalidKey, Err: err}
	case 404:
		return &Error{Kind: ModelUnavailable, Message: msgModelUnavailable, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "quota", "rate limit", "resource_exhausted"):
		return &Error{Kind: RateLimitExceeded, Message: msgRateLimit, Err: err}
	case containsAny(msg, "404", "not found"):
		return &Error{Kind: ModelUnavailable, Message: msgModelUnavailable, Err: err}
	case containsAny(msg, "api key", "403"):
		return &Error{Kind: PermissionDenied, Message: msgInvalidKey, Err: err}
	case containsAny(msg, "permission_denied", "permission denied"):
		return &Error{Kind: PermissionDenied, Message: msgNoPermission, Err: err}
	default:
		return &Error{Kind: TransportError, Message: "Translation failed: " + err.Error(), Err: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
