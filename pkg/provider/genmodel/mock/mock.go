// Package mock provides a test double for the genmodel.Model interface.
//
// Example:
//
//	m := &mock.Model{Response: genmodel.TextResponse("Hola")}
//	resp, err := m.Generate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the GenerateRequest passed to Generate.
	Req genmodel.GenerateRequest
}

// Model is a mock implementation of genmodel.Model.
type Model struct {
	mu sync.Mutex

	// Response is returned by Generate when Err is nil.
	Response *genmodel.GenerateResponse

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// GenerateFunc, if set, overrides Response and Err.
	GenerateFunc func(ctx context.Context, req genmodel.GenerateRequest) (*genmodel.GenerateResponse, error)

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns the configured result.
func (m *Model) Generate(ctx context.Context, req genmodel.GenerateRequest) (*genmodel.GenerateResponse, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	fn, resp, err := m.GenerateFunc, m.Response, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CallCount returns the number of Generate calls. Thread-safe.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}

// LastRequest returns the most recent request and whether one exists.
func (m *Model) LastRequest() (genmodel.GenerateRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.GenerateCalls) == 0 {
		return genmodel.GenerateRequest{}, false
	}
	return m.GenerateCalls[len(m.GenerateCalls)-1].Req, true
}

// Reset clears all recorded calls. Thread-safe.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = nil
}

// Ensure Model implements genmodel.Model at compile time.
var _ genmodel.Model = (*Model)(nil)
