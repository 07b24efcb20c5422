package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Call states of one completion request. Sending re-enters itself while
// the retry policy has attempts left.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// RetryPolicy controls how Client re-issues failed completion calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
}

// DefaultRetryPolicy matches the behavior the CLI ships with.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Exponential: true,
}

// Backoff returns the delay before retrying after the given zero-based
// attempt: base_delay * 2^attempt when exponential, else a constant
// base_delay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if !p.Exponential {
		return p.BaseDelay
	}
	return p.BaseDelay << uint(attempt)
}

// Client drives one provider through the retry policy. Safe for use from a
// single turn at a time, matching the one-turn-per-session model.
type Client struct {
	provider Provider
	policy   RetryPolicy
	log      *slog.Logger

	// sleep is swappable so tests can observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient wraps provider with policy.
func NewClient(provider Provider, policy RetryPolicy, log *slog.Logger) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Client{
		provider: provider,
		policy:   policy,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Complete issues the request, retrying transient failures under the
// policy and blocking the calling turn between attempts. Exhaustion
// returns a RemoteError carrying the last underlying error. A malformed
// tool-argument response is a validation failure and is not retried.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	state := StateIdle
	c.log.Debug("completion call", "provider", c.provider.Name(), "state", state, "model", req.Model)
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		state = StateSending
		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			state = StateSucceeded
			c.log.Debug("completion finished",
				"provider", c.provider.Name(),
				"state", state,
				"finish_reason", resp.FinishReason,
				"total_tokens", resp.Usage.TotalTokens)
			return resp, nil
		}
		if errors.Is(err, ErrInvalidToolArguments) {
			return nil, err
		}
		lastErr = err

		delay := c.policy.Backoff(attempt)
		c.log.Warn("completion attempt failed",
			"provider", c.provider.Name(),
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &RemoteError{Provider: c.provider.Name(), Attempts: attempt + 1, Err: err}
		}
	}

	state = StateFailed
	c.log.Error("completion exhausted retries",
		"provider", c.provider.Name(),
		"state", state,
		"attempts", c.policy.MaxAttempts,
		"error", lastErr)
	return nil, &RemoteError{Provider: c.provider.Name(), Attempts: c.policy.MaxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
