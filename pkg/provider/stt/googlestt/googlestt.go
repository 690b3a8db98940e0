// Package googlestt provides a recognizer backed by the Google Cloud
// Speech-to-Text streaming API. It implements the stt.Provider interface.
//
// Credentials follow the usual Google client rules: an explicit
// option.ClientOption passed to New, otherwise Application Default
// Credentials (GOOGLE_APPLICATION_CREDENTIALS).
package googlestt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/medscribe/pkg/provider/stt"
	"github.com/MrWong99/medscribe/pkg/types"
)

const (
	defaultLanguage = "en-US"

	// defaultOpusRate is the sample rate browsers use for Opus in webm/ogg.
	defaultOpusRate = 48000

	// drainTimeout bounds how long Close waits for the final results after
	// half-closing the stream.
	drainTimeout = 5 * time.Second
)

// recognizeStream is the subset of speechpb.Speech_StreamingRecognizeClient
// the session uses.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Option is a functional option for configuring the Google Provider.
type Option func(*Provider)

// WithModel selects the recognition model (e.g., "medical_dictation",
// "latest_long"). Empty keeps the API default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language used when the StreamConfig
// does not name one.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithClientOptions passes options to the underlying speech client
// (credentials file, API key, endpoint).
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
type Provider struct {
	model      string
	language   string
	clientOpts []option.ClientOption

	client *speech.Client
	open   func(ctx context.Context) (recognizeStream, error)
}

var _ stt.Provider = (*Provider)(nil)

// New creates a speech client and returns a Provider using it. Call Close to
// release the client.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	client, err := speech.NewClient(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("googlestt: new client: %w", err)
	}
	p.client = client
	p.open = func(ctx context.Context) (recognizeStream, error) {
		return client.StreamingRecognize(ctx)
	}
	return p, nil
}

// Close releases the speech client.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// StartStream opens a streaming recognition session and sends the
// recognition config as the first request.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	req, err := p.configRequest(cfg)
	if err != nil {
		return nil, fmt.Errorf("googlestt: %w", err)
	}

	// The stream outlives the request that started it.
	sessCtx, cancel := context.WithCancel(context.Background())
	stream, err := p.open(sessCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("googlestt: open stream: %w", err)
	}
	if err := stream.Send(req); err != nil {
		cancel()
		return nil, fmt.Errorf("googlestt: send config: %w", err)
	}

	sess := &session{
		stream:   stream,
		events:   make(chan types.RecognitionEvent, 64),
		audio:    make(chan []byte, 256),
		ctx:      sessCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop()
	go sess.writeLoop()
	return sess, nil
}

// configRequest builds the StreamingConfig request for cfg.
func (p *Provider) configRequest(cfg stt.StreamConfig) (*speechpb.StreamingRecognizeRequest, error) {
	enc, err := encodingOf(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	rate := cfg.SampleRate
	if rate == 0 && (enc == speechpb.RecognitionConfig_WEBM_OPUS || enc == speechpb.RecognitionConfig_OGG_OPUS) {
		rate = defaultOpusRate
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		SampleRateHertz:            int32(rate),
		AudioChannelCount:          int32(cfg.Channels),
		LanguageCode:               lang,
		Model:                      p.model,
		EnableAutomaticPunctuation: true,
	}
	if len(cfg.Keywords) > 0 {
		// One context per boost value; the API applies a single boost to
		// all phrases of a context.
		byBoost := map[float64]*speechpb.SpeechContext{}
		for _, kw := range cfg.Keywords {
			sc, ok := byBoost[kw.Boost]
			if !ok {
				sc = &speechpb.SpeechContext{Boost: float32(kw.Boost)}
				byBoost[kw.Boost] = sc
				rc.SpeechContexts = append(rc.SpeechContexts, sc)
			}
			sc.Phrases = append(sc.Phrases, kw.Keyword)
		}
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         rc,
				InterimResults: true,
			},
		},
	}, nil
}

// encodingOf maps a StreamConfig encoding name to the API enum. An empty
// name means webm/opus, which is what browsers record.
func encodingOf(name string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToLower(name) {
	case "", "webm", "webm_opus":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	case "ogg", "ogg_opus", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "linear16", "pcm":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "flac":
		return speechpb.RecognitionConfig_FLAC, nil
	case "mulaw":
		return speechpb.RecognitionConfig_MULAW, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding %q", name)
	}
}

// ---- session ----

// session is a live Google streaming session. It implements stt.SessionHandle.
type session struct {
	stream recognizeStream
	events chan types.RecognitionEvent
	audio  chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	readDone chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues an audio chunk for delivery.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("googlestt: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("googlestt: %w", stt.ErrSessionClosed)
	}
}

// Events returns the channel of recognition events.
func (s *session) Events() <-chan types.RecognitionEvent { return s.events }

// Err returns the terminal session error, if any.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close half-closes the stream so the API flushes its last results, waits
// briefly for them and then tears the stream down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.readDone:
		case <-time.After(drainTimeout):
		}
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *session) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// writeLoop is the only goroutine that sends on the stream. It half-closes
// the stream once the session is closed.
func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
			})
			if err != nil {
				// Recv reports the underlying status.
				return
			}
		case <-s.done:
			_ = s.stream.CloseSend()
			return
		}
	}
}

// readLoop receives responses and forwards recognition events. It closes the
// events channel when the stream ends.
func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)
	defer close(s.events)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-s.done:
				// Closed by us.
			default:
				s.fail(fmt.Errorf("googlestt: recv: %w", err))
			}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			s.fail(fmt.Errorf("googlestt: stream error %d: %s", st.GetCode(), st.GetMessage()))
			return
		}

		ev, ok := parseResponse(resp)
		if !ok {
			continue
		}
		// Results that arrive after Close still reach the caller until the
		// drain timeout cancels the stream.
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

// parseResponse converts a streaming response into a RecognitionEvent using
// the top alternative of every result. Returns false when nothing was
// recognised.
func parseResponse(resp *speechpb.StreamingRecognizeResponse) (types.RecognitionEvent, bool) {
	var ev types.RecognitionEvent
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		ev.Segments = append(ev.Segments, types.RecognitionSegment{Text: text, IsFinal: r.GetIsFinal()})
	}
	return ev, len(ev.Segments) > 0
}
