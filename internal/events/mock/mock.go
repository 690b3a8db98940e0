// Package mock provides a recording events.Publisher for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/medscribe/internal/events"
)

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event

	// PublishErr, if non-nil, is returned by every Publish call.
	PublishErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

var _ events.Publisher = (*Publisher)(nil)

// Publish records ev and returns PublishErr.
func (p *Publisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.PublishErr
}

// Close records the call.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// Events returns a copy of the recorded events in publish order. Thread-safe.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Types returns the types of the recorded events in publish order.
func (p *Publisher) Types() []events.Type {
	evs := p.Events()
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
