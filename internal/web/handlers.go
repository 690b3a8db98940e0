package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/medscribe/internal/session"
	"github.com/MrWong99/medscribe/internal/transcript"
	"github.com/MrWong99/medscribe/internal/translate"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type editTextRequest struct {
	Text string `json:"text"`
}

type languagesRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	Translation string           `json:"translation"`
	Session     session.Snapshot `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, translate.Languages())
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	if s.rates == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.rates.RateStatus())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleEditText(w http.ResponseWriter, r *http.Request) {
	var req editTextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sess.EditSource(req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSetLanguages(w http.ResponseWriter, r *http.Request) {
	var req languagesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sess.SetLanguages(req.Source, req.Target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSwap(w http.ResponseWriter, _ *http.Request) {
	if err := s.sess.Swap(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	out, err := s.sess.Translate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{Translation: out, Session: s.sess.Snapshot()})
}

// decodeBody decodes a JSON body into v. On failure it writes a 400 and
// reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps session and translation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrTranslationInProgress),
		errors.Is(err, session.ErrDictating),
		errors.Is(err, transcript.ErrListening),
		errors.Is(err, transcript.ErrAlreadyListening):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoRecognizer):
		return http.StatusServiceUnavailable
	}

	kind, ok := translate.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case translate.InvalidInput, translate.UnknownLanguage:
		return http.StatusBadRequest
	case translate.RateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// writeError writes err as a JSON error body. Classified translation errors
// carry their user-facing message and kind.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: translate.UserMessage(err)}
	if kind, ok := translate.KindOf(err); ok {
		resp.Kind = kind.String()
	}
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, resp)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
