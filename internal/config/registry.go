package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
	"github.com/MrWong99/medscribe/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	model map[string]func(ProviderEntry) (genmodel.Model, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		model: make(map[string]func(ProviderEntry) (genmodel.Model, error)),
	}
}

// RegisterSTT registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterModel registers a generative model factory under name.
func (r *Registry) RegisterModel(name string, factory func(ProviderEntry) (genmodel.Model, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model[name] = factory
}

// CreateSTT instantiates a recognizer using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateModel instantiates a generative model using the factory registered under entry.Name.
func (r *Registry) CreateModel(entry ProviderEntry) (genmodel.Model, error) {
	r.mu.RLock()
	factory, ok := r.model[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: model/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
