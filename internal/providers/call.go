package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/seekerlab/deepresearch/internal/ratelimit"
)

// Call performs one LLM operation.
type Call[T any] func() (T, error)

// WithTracking runs call and records its outcome on the manager: an error
// puts the provider into cooldown and is returned unchanged; a success bumps
// the provider's request counters. Step code stays free of failover
// bookkeeping.
func WithTracking[T any](m *Manager, p Name, call Call[T]) (T, error) {
	v, err := call()
	if err != nil {
		m.MarkError(p, err)
		var zero T
		return zero, err
	}
	m.MarkSuccess(p)
	return v, nil
}

// LLM is the narrow generation interface the pipeline components consume.
type LLM interface {
	Generate(ctx context.Context, model string, messages []llms.MessageContent, opts ...llms.CallOption) (string, error)
}

// Caller issues LLM calls through the failover manager with rate limiting
// and outcome tracking applied. APIKey, when set, is the caller-supplied key
// forwarded to whichever provider is selected.
type Caller struct {
	manager *Manager
	limiter *ratelimit.Limiter
	apiKey  string
}

// NewCaller wraps the manager and limiter. apiKey may be empty to use the
// configured provider keys.
func NewCaller(manager *Manager, limiter *ratelimit.Limiter, apiKey string) *Caller {
	return &Caller{manager: manager, limiter: limiter, apiKey: apiKey}
}

// Generate issues one chat completion against the currently selected
// provider and returns the first choice's text.
func (c *Caller) Generate(ctx context.Context, model string, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	client, provider, err := c.manager.Client(model, c.apiKey)
	if err != nil {
		return "", err
	}

	resp, err := WithTracking(c.manager, provider, func() (*llms.ContentResponse, error) {
		return client.GenerateContent(ctx, messages, opts...)
	})
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", provider)
	}
	return resp.Choices[0].Content, nil
}
