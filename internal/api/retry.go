package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RetryConfig configures bounded exponential-backoff retry.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; each subsequent
	// delay doubles via Multiplier.
	InitialBackoff time.Duration
	// Multiplier is the backoff growth factor.
	Multiplier float64
}

// DefaultRetryConfig returns the policy used by the retrying call sites:
// up to 3 additional attempts with 1s, 2s, 4s waits between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		Multiplier:     2.0,
	}
}

// Classifier decides whether a failure is worth another attempt.
type Classifier func(error) bool

// DefaultClassifier retries everything except a caller-initiated abort.
// HTTP errors are retried too: the retrying call sites accept the cost of
// re-trying a permanent 4xx a few times rather than hand-rolling per-status
// classification.
func DefaultClassifier(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Retry executes op with bounded exponential backoff. classify decides
// retryability; a nil classify uses DefaultClassifier. On exhaustion the
// last observed error is surfaced annotated with the attempt count.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) (json.RawMessage, error), classify Classifier) (json.RawMessage, error) {
	if classify == nil {
		classify = DefaultClassifier
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := cfg.InitialBackoff
			for i := 1; i < attempt; i++ {
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			}
			select {
			case <-ctx.Done():
				return nil, abortError(ctx.Err())
			case <-time.After(backoff):
			}
		}

		res, err := op(ctx)
		attempts++
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !classify(err) {
			return nil, err
		}
	}

	var re *RequestError
	if errors.As(lastErr, &re) {
		annotated := *re
		annotated.Attempts = attempts
		return nil, &annotated
	}
	return nil, &RequestError{Kind: KindTransport, Attempts: attempts, Err: lastErr}
}
