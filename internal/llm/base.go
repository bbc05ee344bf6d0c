package llm

import (
	"context"
	"time"
)

// retrier holds shared retry configuration for the provider variants.
type retrier struct {
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{maxRetries: maxRetries, retryDelay: retryDelay}
}

// Retry runs op, retrying with linear backoff while isRetryable(err) holds.
func (r retrier) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= r.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}

// buildHistory appends prompt as the final user turn, and, only when
// history is empty, folds systemPrompt in ahead of it per spec.md's "bytes
// reach the model exactly once" rule.
func buildHistory(history []ChatMessage, prompt, systemPrompt string) (fullHistory []ChatMessage, system string) {
	out := make([]ChatMessage, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, ChatMessage{Role: RoleUser, Content: prompt})
	if len(history) == 0 {
		system = systemPrompt
	}
	return out, system
}
