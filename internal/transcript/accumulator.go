package transcript

import (
	"errors"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/medscribe/pkg/types"
)

var (
	// ErrAlreadyListening is returned by Start while dictation is active.
	ErrAlreadyListening = errors.New("transcript: already listening")

	// ErrListening is returned by Edit while dictation is active; manual edits
	// are only accepted while idle.
	ErrListening = errors.New("transcript: cannot edit while listening")
)

// State is the dictation state of an [Accumulator].
type State int

const (
	// Idle accepts manual edits and ignores recognition events.
	Idle State = iota
	// Listening merges recognition events and rejects manual edits.
	Listening
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}

// Update is pushed to observers after every change to the displayed text.
type Update struct {
	// Text is the enhanced display text: Enhance(finalized + interim).
	Text string

	// Terms are the domain terms detected in Text.
	Terms []string

	// Listening reports whether dictation is active.
	Listening bool

	// Err is the last recognizer failure reported through Fail. It is cleared
	// by Start and Edit.
	Err error
}

// Accumulator merges recognition events into a finalized buffer that only
// ever grows and an interim buffer that each event replaces.
//
// Observers registered with Subscribe are called synchronously, in mutation
// order, after every change. They may call Snapshot but must not call
// mutating methods from inside the callback.
type Accumulator struct {
	enhancer *Enhancer

	mu        sync.Mutex
	state     State
	finalized string
	interim   string
	lastErr   error
	subs      map[int]func(Update)
	nextSub   int

	// notifyMu serialises mutators and their deliveries so observers see
	// updates in mutation order. It is always taken before mu and is held
	// while observers run; mu is not.
	notifyMu sync.Mutex
}

// NewAccumulator returns an idle Accumulator with empty buffers. It panics if
// enhancer is nil.
func NewAccumulator(enhancer *Enhancer) *Accumulator {
	if enhancer == nil {
		panic("transcript: enhancer must not be nil")
	}
	return &Accumulator{enhancer: enhancer, subs: make(map[int]func(Update))}
}

// Start begins dictation. finalized is seeded with current (the text on
// display, so dictation resumes after typed text), followed by a single space
// when current is non-empty and does not already end in whitespace. The
// interim buffer is cleared.
func (a *Accumulator) Start(current string) error {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	if a.state == Listening {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	a.finalized = current
	if current != "" {
		if r, _ := utf8.DecodeLastRuneInString(current); !unicode.IsSpace(r) {
			a.finalized += " "
		}
	}
	a.interim = ""
	a.lastErr = nil
	a.state = Listening
	a.publishLocked()
	return nil
}

// Apply merges ev into the buffers. The interim buffer is reset, then each
// segment is handled in order: final segments are appended to finalized
// followed by one space, interim segments overwrite the interim buffer so the
// last one wins. Events received while idle are dropped and Apply reports
// false.
func (a *Accumulator) Apply(ev types.RecognitionEvent) bool {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	if a.state != Listening {
		a.mu.Unlock()
		return false
	}
	a.interim = ""
	for _, seg := range ev.Segments {
		if seg.IsFinal {
			a.finalized += seg.Text + " "
			continue
		}
		a.interim = seg.Text
	}
	a.publishLocked()
	return true
}

// Stop ends dictation. The interim buffer is discarded; finalized text is
// kept. Stopping an idle accumulator does nothing.
func (a *Accumulator) Stop() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	if a.state != Listening {
		a.mu.Unlock()
		return
	}
	a.state = Idle
	a.interim = ""
	a.publishLocked()
}

// Fail reports a recognizer error. The accumulator stops as in Stop and the
// error is delivered to observers. It is never fatal: Start may be called
// again.
func (a *Accumulator) Fail(err error) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	a.state = Idle
	a.interim = ""
	a.lastErr = err
	a.publishLocked()
}

// Edit replaces the finalized text with Enhance(text) and clears the interim
// buffer. Edits are rejected with ErrListening while dictating.
func (a *Accumulator) Edit(text string) error {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	if a.state == Listening {
		a.mu.Unlock()
		return ErrListening
	}
	a.finalized = a.enhancer.Enhance(text)
	a.interim = ""
	a.lastErr = nil
	a.publishLocked()
	return nil
}

// State returns the current dictation state.
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Buffers returns the raw finalized and interim buffers.
func (a *Accumulator) Buffers() (finalized, interim string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized, a.interim
}

// Snapshot returns the current display state.
func (a *Accumulator) Snapshot() Update {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updateLocked()
}

// Subscribe registers fn for every future update. The returned function
// removes the subscription; calling it more than once is safe.
func (a *Accumulator) Subscribe(fn func(Update)) (cancel func()) {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

func (a *Accumulator) updateLocked() Update {
	text := a.enhancer.Enhance(a.finalized + a.interim)
	return Update{
		Text:      text,
		Terms:     a.enhancer.DetectTerms(text),
		Listening: a.state == Listening,
		Err:       a.lastErr,
	}
}

// publishLocked computes the update, releases mu and delivers the update to
// every subscriber. The caller must hold notifyMu and mu.
func (a *Accumulator) publishLocked() {
	u := a.updateLocked()
	subs := make([]func(Update), 0, len(a.subs))
	for id := 0; id < a.nextSub; id++ {
		if fn, ok := a.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(u)
	}
}

// DisplayStats counts words and characters of displayed text.
func DisplayStats(text string) (words, chars int) {
	return len(strings.Fields(text)), utf8.RuneCountInString(text)
}
