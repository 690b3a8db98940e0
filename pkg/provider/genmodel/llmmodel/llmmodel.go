// Package llmmodel adapts any llm.Provider (OpenAI, any-llm-go backends) to
// the genmodel.Model interface so chat-completion services can serve as the
// translation backend.
package llmmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
	"github.com/MrWong99/medscribe/pkg/provider/llm"
)

// Ensure Model implements the genmodel.Model interface at compile time.
var _ genmodel.Model = (*Model)(nil)

// Model sends the prompt as a single user message and wraps the reply as a
// one-candidate response.
type Model struct {
	provider llm.Provider
}

// New wraps p. It panics if p is nil.
func New(p llm.Provider) *Model {
	if p == nil {
		panic("llmmodel: provider must not be nil")
	}
	return &Model{provider: p}
}

// Generate implements genmodel.Model.
func (m *Model) Generate(ctx context.Context, req genmodel.GenerateRequest) (*genmodel.GenerateResponse, error) {
	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Config.Temperature,
		MaxTokens:   req.Config.MaxOutputTokens,
	})
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("llmmodel: %w", &genmodel.StatusError{
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Message,
			})
		}
		return nil, fmt.Errorf("llmmodel: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llmmodel: empty completion: %w", genmodel.ErrMalformedResponse)
	}
	return genmodel.TextResponse(resp.Content), nil
}
