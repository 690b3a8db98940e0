// Package genai provides the Gemini genmodel.Model, backed by Google's
// official Go SDK (github.com/google/generative-ai-go).
//
// Extra client settings such as custom endpoints are passed through
// google.golang.org/api/option. API errors are surfaced as
// *genmodel.StatusError so translation failures classify by HTTP status.
package genai

import (
	"context"
	"errors"
	"fmt"

	gogenai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.0-flash-exp"

// Ensure Model implements the genmodel.Model interface at compile time.
var _ genmodel.Model = (*Model)(nil)

// Model implements genmodel.Model through the generative-ai-go SDK.
// It is safe for concurrent use.
type Model struct {
	client *gogenai.Client
	model  string
}

// New creates an SDK client authenticated with apiKey. Extra client options
// (e.g. option.WithEndpoint) are appended after the key.
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := gogenai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	return &Model{client: client, model: model}, nil
}

// Close releases the SDK client's resources.
func (m *Model) Close() error {
	return m.client.Close()
}

// Generate implements genmodel.Model. A fresh GenerativeModel handle is built
// per call because the SDK stores sampling parameters on the handle.
func (m *Model) Generate(ctx context.Context, req genmodel.GenerateRequest) (*genmodel.GenerateResponse, error) {
	gm := m.client.GenerativeModel(m.model)
	if req.Config.Temperature != 0 {
		gm.SetTemperature(float32(req.Config.Temperature))
	}
	if req.Config.MaxOutputTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.Config.MaxOutputTokens))
	}

	resp, err := gm.GenerateContent(ctx, gogenai.Text(req.Prompt))
	if err != nil {
		var blocked *gogenai.BlockedError
		if errors.As(err, &blocked) {
			// The request succeeded but produced no usable candidate.
			return &genmodel.GenerateResponse{}, nil
		}
		return nil, fmt.Errorf("genai: generate: %w", mapError(err))
	}
	return convertResponse(resp), nil
}

// mapError converts googleapi errors into *genmodel.StatusError so callers can
// classify by HTTP status. Other errors are returned unchanged.
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Error()
		}
		return &genmodel.StatusError{StatusCode: gerr.Code, Message: msg}
	}
	return err
}

// convertResponse maps the SDK response onto genmodel types. Non-text parts
// are kept as parts without text so positional access stays faithful.
func convertResponse(resp *gogenai.GenerateContentResponse) *genmodel.GenerateResponse {
	out := &genmodel.GenerateResponse{}
	if resp == nil {
		return out
	}
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		cand := genmodel.Candidate{FinishReason: finishReason(c.FinishReason)}
		if c.Content != nil {
			content := &genmodel.Content{Role: c.Content.Role}
			for _, p := range c.Content.Parts {
				if t, ok := p.(gogenai.Text); ok {
					s := string(t)
					content.Parts = append(content.Parts, genmodel.Part{Text: &s})
					continue
				}
				content.Parts = append(content.Parts, genmodel.Part{})
			}
			cand.Content = content
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}

func finishReason(r gogenai.FinishReason) string {
	if r == gogenai.FinishReasonUnspecified {
		return ""
	}
	return r.String()
}
