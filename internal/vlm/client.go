// Package vlm sends nutrition-label images to a vision language model and
// returns its raw answer.
package vlm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nutrilabel/internal/apperr"
	applog "nutrilabel/internal/log"
	"nutrilabel/internal/nutrition"
)

// Usage reports the tokens consumed by one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a single extraction call.
type Request struct {
	ImageURL    string
	Instruction string
}

// Output is the raw model answer plus accounting. Latency covers the
// successful call only, not earlier attempts or backoff.
type Output struct {
	Content  string
	Usage    Usage
	Model    string
	Latency  time.Duration
	Attempts int
}

// Provider performs one completion against a concrete model API.
type Provider interface {
	Complete(ctx context.Context, req Request) (Output, error)
}

// Policy bounds the retry loop. The wait after attempt n is BaseDelay<<n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy makes three attempts waiting 1s, 2s and 4s.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Client wraps a Provider with the extraction prompt and bounded retries.
type Client struct {
	provider Provider
	policy   Policy
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customises a Client.
type Option func(*Client)

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient builds a Client. Zero policy fields fall back to DefaultPolicy.
func NewClient(provider Provider, policy Policy, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, errors.New("vlm: provider must not be nil")
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy.BaseDelay
	}
	c := &Client{provider: provider, policy: policy, sleep: sleepContext}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extract asks the model to read the label at imageURL. Upstream failures are
// retried per the policy, waiting after every failed attempt, and end in
// KindModelUnavailable. An empty answer is KindEmptyResponse and is not
// retried.
func (c *Client) Extract(ctx context.Context, imageURL string) (Output, error) {
	const op = "vlm.Extract"

	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return Output{}, apperr.Msg(apperr.KindValidation, op, "image_url must not be empty")
	}

	req := Request{ImageURL: imageURL, Instruction: nutrition.Instruction()}
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		applog.Debug(ctx, "calling vision model", "attempt", attempt+1, "maxAttempts", c.policy.MaxAttempts)
		out, err := c.provider.Complete(ctx, req)
		if err == nil {
			out.Attempts = attempt + 1
			if strings.TrimSpace(out.Content) == "" {
				return out, apperr.Msg(apperr.KindEmptyResponse, op, "model returned no content")
			}
			return out, nil
		}

		var kinded *apperr.Error
		if errors.As(err, &kinded) && !kinded.Kind.Retryable() {
			return Output{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, apperr.E(apperr.KindModelUnavailable, op, ctxErr)
		}

		lastErr = err
		delay := c.policy.BaseDelay << attempt
		applog.Warn(ctx, "vision model call failed", "attempt", attempt+1, "retryIn", delay.String(), "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return Output{}, apperr.E(apperr.KindModelUnavailable, op, err)
		}
	}

	return Output{}, apperr.E(apperr.KindModelUnavailable, op,
		fmt.Errorf("giving up after %d attempts: %w", c.policy.MaxAttempts, lastErr))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
