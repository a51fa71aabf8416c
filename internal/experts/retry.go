package experts

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/linesage/linesage/internal/models"
)

// RetryConfig defines retry behavior for expert calls.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultRetryConfig retries a transient failure exactly once with a short
// jittered backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// AskWithRetry calls the expert and retries transient failures per the
// config. Permanent failures and context cancellation return immediately.
func AskWithRetry(ctx context.Context, e Expert, systemPrompt, userPrompt string, cfg RetryConfig) (*models.ExpertResponse, error) {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &AgentError{Expert: e.Name(), Kind: ErrTimeout, Message: "deadline exceeded before attempt"}
			}
			return nil, err
		}

		resp, err := e.Ask(ctx, systemPrompt, userPrompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var ae *AgentError
		if !errors.As(err, &ae) || !ae.Transient() || attempt == cfg.MaxRetries {
			return nil, err
		}

		wait := jitter(delay, cfg.JitterFactor)
		select {
		case <-ctx.Done():
			return nil, &AgentError{Expert: e.Name(), Kind: ErrTimeout, Message: "deadline exceeded during backoff"}
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return nil, lastErr
}

func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	spread := float64(d) * factor
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
