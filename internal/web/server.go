// Package web serves the medscribe HTTP API: the dictation session state, the
// typed-input and translation actions, the websocket that carries microphone
// audio to the recognizer, and the operational endpoints (health, readiness,
// metrics).
//
// Routes:
//
//	GET  /healthz                  liveness probe
//	GET  /readyz                   readiness probe
//	GET  /metrics                  Prometheus exposition
//	GET  /api/languages            supported languages
//	GET  /api/ratelimit            translation quota status
//	GET  /api/session              current session snapshot
//	PUT  /api/session/text         replace the source text
//	PUT  /api/session/languages    change the language pair
//	POST /api/session/swap         swap languages and texts
//	POST /api/session/translate    translate the source text
//	GET  /api/session/dictate      websocket: binary audio in, JSON snapshots out
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/medscribe/internal/observe"
	"github.com/MrWong99/medscribe/internal/resilience"
	"github.com/MrWong99/medscribe/internal/session"
)

const (
	defaultShutdownTimeout   = 15 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// RateReporter exposes the translation quota. [translate.Client] implements it.
type RateReporter interface {
	RateStatus() resilience.RateStatus
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics sets the metrics used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMetricsHandler serves h at /metrics. Without it the route is not
// registered.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithCheckers adds readiness checks evaluated by /readyz.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// WithRateReporter serves r's status at /api/ratelimit. Without it the route
// answers 404.
func WithRateReporter(r RateReporter) Option {
	return func(s *Server) {
		s.rates = r
	}
}

// WithShutdownTimeout bounds graceful shutdown in [Server.Run].
// Default: 15s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server is the HTTP front end of one medscribe session.
type Server struct {
	sess            *session.Session
	rates           RateReporter
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	checkers        []Checker
	shutdownTimeout time.Duration

	handler http.Handler
}

// New creates a Server for sess. It panics if sess is nil.
func New(sess *session.Session, opts ...Option) *Server {
	if sess == nil {
		panic("web: session must not be nil")
	}
	s := &Server{
		sess:            sess,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /api/ratelimit", s.handleRateLimit)
	mux.HandleFunc("GET /api/session", s.handleSnapshot)
	mux.HandleFunc("PUT /api/session/text", s.handleEditText)
	mux.HandleFunc("PUT /api/session/languages", s.handleSetLanguages)
	mux.HandleFunc("POST /api/session/swap", s.handleSwap)
	mux.HandleFunc("POST /api/session/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/session/dictate", s.handleDictate)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx, so open dictation sockets end when ctx
// ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		slog.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
