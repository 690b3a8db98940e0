// Package session ties one dictation workspace together: the transcript
// accumulator, the recognizer stream that feeds it, the language pair and the
// last translation.
//
// A [Session] is the calling layer described by the translation client's
// contract: it serialises translate requests, keeps the source text and the
// previous translation untouched when a request fails, and reports recognizer
// failures without giving up the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/medscribe/internal/events"
	"github.com/MrWong99/medscribe/internal/observe"
	"github.com/MrWong99/medscribe/internal/transcript"
	"github.com/MrWong99/medscribe/internal/translate"
	"github.com/MrWong99/medscribe/pkg/provider/stt"
	"github.com/MrWong99/medscribe/pkg/types"
)

var (
	// ErrTranslationInProgress is returned when a translation is requested
	// or the texts are swapped while another translation is outstanding.
	ErrTranslationInProgress = errors.New("session: translation in progress")

	// ErrDictating is returned by operations that are disabled while the
	// recognizer is running.
	ErrDictating = errors.New("session: not allowed while dictating")

	// ErrNotDictating is returned by SendAudio when no recognizer stream is
	// open.
	ErrNotDictating = errors.New("session: not dictating")

	// ErrNoRecognizer is returned by StartDictation when the session was
	// built without a recognizer.
	ErrNoRecognizer = errors.New("session: no recognizer configured")
)

// Translator is the part of [translate.Client] the session depends on.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (string, error)
}

var _ Translator = (*translate.Client)(nil)

// Config holds the initial language pair and the audio format forwarded to
// the recognizer.
type Config struct {
	// SourceLang is the recognizer speech code. Default: "en-US".
	SourceLang string

	// TargetLang is the translation target speech code. Default: "es-ES".
	TargetLang string

	// Encoding, SampleRate and Channels describe raw audio. Leave Encoding
	// empty for self-describing containers (webm, ogg).
	Encoding   string
	SampleRate int
	Channels   int

	// KeywordBoost is the boost sent with every domain term so the
	// recognizer favours clinical vocabulary. Zero disables keyword hints.
	KeywordBoost float64
}

// Option is a functional option for [New].
type Option func(*Session)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithPublisher sets the sink for session activity events. Default:
// [events.Discard].
func WithPublisher(p events.Publisher) Option {
	return func(s *Session) {
		s.publisher = p
	}
}

// Snapshot is the complete display state of a session.
type Snapshot struct {
	// Seq counts published changes. A snapshot with a higher Seq is never
	// older than one with a lower Seq.
	Seq uint64 `json:"seq"`

	SourceText  string   `json:"source_text"`
	Terms       []string `json:"terms"`
	Translation string   `json:"translation"`
	SourceLang  string   `json:"source_lang"`
	TargetLang  string   `json:"target_lang"`
	Listening   bool     `json:"listening"`
	Translating bool     `json:"translating"`
	Words       int      `json:"words"`
	Chars       int      `json:"chars"`

	// Error is the user-facing message of the last failed translation.
	Error string `json:"error,omitempty"`
	// ErrorKind is the classification of Error.
	ErrorKind string `json:"error_kind,omitempty"`
	// RecognizerError describes the last recognizer failure.
	RecognizerError string `json:"recognizer_error,omitempty"`
}

// Session is one dictation and translation workspace. All methods are safe
// for concurrent use.
type Session struct {
	acc        *transcript.Accumulator
	recognizer stt.Provider
	translator Translator
	metrics    *observe.Metrics
	publisher  events.Publisher
	cfg        Config
	keywords   []types.KeywordBoost

	// opMu serialises control operations. It is never taken from observer
	// callbacks, so it may be held while the accumulator notifies.
	opMu sync.Mutex

	// mu guards the fields below. It is never held while calling into the
	// accumulator.
	mu          sync.Mutex
	seq         uint64
	source      transcript.Update
	sourceLang  string
	targetLang  string
	translation string
	translErr   error
	translating bool
	stream      stt.SessionHandle
	pumpDone    chan struct{}

	subsMu   sync.Mutex
	subs     map[int]func(Snapshot)
	nextSub  int
	notifyMu sync.Mutex

	unsubscribe func()
}

// New creates an idle session. recognizer may be nil, in which case only
// manual input is available. It fails when either language is not in the
// language table.
func New(cfg Config, enhancer *transcript.Enhancer, recognizer stt.Provider, translator Translator, opts ...Option) (*Session, error) {
	if enhancer == nil {
		return nil, errors.New("session: enhancer must not be nil")
	}
	if translator == nil {
		return nil, errors.New("session: translator must not be nil")
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = "en-US"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "es-ES"
	}
	if err := checkLanguages(cfg.SourceLang, cfg.TargetLang); err != nil {
		return nil, err
	}

	s := &Session{
		acc:        transcript.NewAccumulator(enhancer),
		recognizer: recognizer,
		translator: translator,
		cfg:        cfg,
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		subs:       make(map[int]func(Snapshot)),
	}
	if cfg.KeywordBoost != 0 {
		for _, term := range enhancer.Terms() {
			s.keywords = append(s.keywords, types.KeywordBoost{Keyword: term, Boost: cfg.KeywordBoost})
		}
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.publisher == nil {
		s.publisher = events.Discard
	}
	s.source = s.acc.Snapshot()
	s.unsubscribe = s.acc.Subscribe(s.onUpdate)
	return s, nil
}

func checkLanguages(source, target string) error {
	if _, err := translate.ResolveModelCode(source); err != nil {
		return fmt.Errorf("session: source language: %w", err)
	}
	if _, err := translate.ResolveModelCode(target); err != nil {
		return fmt.Errorf("session: target language: %w", err)
	}
	return nil
}

// StartDictation opens a recognizer stream in the source language and starts
// merging its events into the transcript. Dictation resumes after the text
// currently on display.
func (s *Session) StartDictation(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.recognizer == nil {
		return ErrNoRecognizer
	}
	if s.acc.State() == transcript.Listening {
		return transcript.ErrAlreadyListening
	}

	s.mu.Lock()
	lang := s.sourceLang
	s.mu.Unlock()

	handle, err := s.recognizer.StartStream(ctx, stt.StreamConfig{
		Language:   lang,
		Encoding:   s.cfg.Encoding,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Keywords:   s.keywords,
	})
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "start_stream")
		return fmt.Errorf("session: start dictation: %w", err)
	}

	if err := s.acc.Start(s.acc.Snapshot().Text); err != nil {
		_ = handle.Close()
		return fmt.Errorf("session: start dictation: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.stream = handle
	s.pumpDone = done
	s.mu.Unlock()

	s.metrics.ActiveDictations.Add(ctx, 1)
	slog.Info("dictation started", "language", lang)
	go s.pump(handle, done)
	s.emit(ctx, events.DictationStarted, "", 0)
	return nil
}

// pump feeds recognizer events to the accumulator in delivery order until the
// stream ends.
func (s *Session) pump(handle stt.SessionHandle, done chan struct{}) {
	ctx := context.Background()
	defer close(done)
	defer s.metrics.ActiveDictations.Add(ctx, -1)

	for ev := range handle.Events() {
		if s.acc.Apply(ev) {
			s.metrics.RecordRecognitionEvent(ctx, ev.HasFinal())
		}
	}

	s.mu.Lock()
	current := s.stream == handle
	if current {
		s.stream = nil
	}
	s.mu.Unlock()
	if !current {
		// Stopped by StopDictation.
		return
	}

	if err := handle.Err(); err != nil {
		slog.Warn("recognizer failed", "err", err)
		s.metrics.RecordProviderError(ctx, "stt", "stream")
		s.acc.Fail(err)
		s.emit(ctx, events.DictationEnded, "recognizer", 0)
	} else {
		slog.Info("recognizer stream ended")
		s.acc.Stop()
		s.emit(ctx, events.DictationEnded, "", 0)
	}
	_ = handle.Close()
}

// SendAudio forwards one encoded audio chunk to the recognizer.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	handle := s.stream
	s.mu.Unlock()
	if handle == nil {
		return ErrNotDictating
	}
	if err := handle.SendAudio(chunk); err != nil {
		return fmt.Errorf("session: send audio: %w", err)
	}
	return nil
}

// StopDictation ends dictation. Interim text is discarded; finalized text
// stays. Stopping an idle session does nothing.
func (s *Session) StopDictation() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	handle, done := s.stream, s.pumpDone
	s.stream = nil
	s.mu.Unlock()

	s.acc.Stop()
	if handle == nil {
		return nil
	}
	err := handle.Close()
	<-done
	slog.Info("dictation stopped")
	s.emit(context.Background(), events.DictationEnded, "", 0)
	if err != nil {
		return fmt.Errorf("session: stop dictation: %w", err)
	}
	return nil
}

// EditSource replaces the source text with a manual edit. Rejected with
// [transcript.ErrListening] while dictating.
func (s *Session) EditSource(text string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.acc.Edit(text)
}

// SetLanguages changes the language pair. Both codes must be in the language
// table. Rejected while dictating because the recognizer language is fixed
// per stream.
func (s *Session) SetLanguages(source, target string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.acc.State() == transcript.Listening {
		return ErrDictating
	}
	if err := checkLanguages(source, target); err != nil {
		return err
	}
	s.mu.Lock()
	s.sourceLang, s.targetLang = source, target
	s.mu.Unlock()
	s.publish()
	return nil
}

// Swap exchanges the languages and the texts: the last translation becomes
// the source text and the source text becomes the translation. The new
// source goes through the enhancer and term detection like a manual edit;
// no translation is requested. Swap is disabled while dictating or
// translating.
func (s *Session) Swap() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.acc.State() == transcript.Listening {
		return ErrDictating
	}

	s.mu.Lock()
	if s.translating {
		s.mu.Unlock()
		return ErrTranslationInProgress
	}
	newSource := s.translation
	s.translation = s.source.Text
	s.sourceLang, s.targetLang = s.targetLang, s.sourceLang
	s.translErr = nil
	s.mu.Unlock()

	// Publishes through the accumulator subscription.
	if err := s.acc.Edit(newSource); err != nil {
		return err
	}
	s.emit(context.Background(), events.LanguagesSwapped, "", 0)
	return nil
}

// Translate translates the current source text into the target language.
// Only one translation may be outstanding per session. On failure the source
// text and the previous translation are kept and the classified error is
// exposed in the snapshot.
func (s *Session) Translate(ctx context.Context) (string, error) {
	s.opMu.Lock()
	s.mu.Lock()
	if s.translating {
		s.mu.Unlock()
		s.opMu.Unlock()
		return "", ErrTranslationInProgress
	}
	s.translating = true
	req := translate.Request{
		Text:       s.source.Text,
		SourceLang: s.sourceLang,
		TargetLang: s.targetLang,
	}
	s.mu.Unlock()
	s.opMu.Unlock()
	s.publish()

	start := time.Now()
	out, err := s.translator.Translate(ctx, req)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.translating = false
	if err != nil {
		s.translErr = err
	} else {
		s.translation = out
		s.translErr = nil
	}
	s.mu.Unlock()
	s.publish()

	if err != nil {
		kind := "unknown"
		if k, ok := translate.KindOf(err); ok {
			kind = k.String()
		}
		s.emit(ctx, events.TranslationFailed, kind, elapsed)
		return "", fmt.Errorf("session: translate: %w", err)
	}
	s.emit(ctx, events.TranslationCompleted, "", elapsed)
	return out, nil
}

// Snapshot returns the current display state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.source
	words, chars := transcript.DisplayStats(u.Text)

	snap := Snapshot{
		Seq:        s.seq,
		SourceText: u.Text,
		Terms:      u.Terms,
		Listening:  u.Listening,
		Words:      words,
		Chars:      chars,
	}
	if u.Err != nil {
		snap.RecognizerError = u.Err.Error()
	}
	snap.Translation = s.translation
	snap.SourceLang = s.sourceLang
	snap.TargetLang = s.targetLang
	snap.Translating = s.translating
	if s.translErr != nil {
		snap.Error = translate.UserMessage(s.translErr)
		if k, ok := translate.KindOf(s.translErr); ok {
			snap.ErrorKind = k.String()
		}
	}
	return snap
}

// Subscribe registers fn for every future snapshot. fn runs synchronously on
// the goroutine that changed the session; it must return quickly and must not
// call mutating Session methods. The returned function removes the
// subscription.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// onUpdate caches the accumulator state and republishes it. Accumulator
// deliveries are serialised in mutation order, so the cache never goes back
// in time.
func (s *Session) onUpdate(u transcript.Update) {
	s.mu.Lock()
	s.source = u
	s.mu.Unlock()
	s.publish()
}

// publish delivers the current snapshot to every subscriber in subscription
// order.
func (s *Session) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.seq++
	s.mu.Unlock()
	snap := s.Snapshot()
	s.subsMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// emit publishes an activity event describing the current session state.
// Publish failures are logged; they never fail the operation.
func (s *Session) emit(ctx context.Context, typ events.Type, errKind string, d time.Duration) {
	s.mu.Lock()
	words, chars := transcript.DisplayStats(s.source.Text)
	ev := events.Event{
		Type:       typ,
		Time:       time.Now().UTC(),
		SourceLang: s.sourceLang,
		TargetLang: s.targetLang,
		Words:      words,
		Chars:      chars,
		Terms:      len(s.source.Terms),
		ErrorKind:  errKind,
		Duration:   d,
	}
	s.mu.Unlock()

	// Publishing must outlive a cancelled request context.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("session event not published", "type", typ, "err", err)
	}
}

// Close stops dictation and detaches the session from its accumulator.
func (s *Session) Close() error {
	err := s.StopDictation()
	s.unsubscribe()
	return err
}
