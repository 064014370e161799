package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: 20 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	op := func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		if attempts < 4 {
			return nil, transportError(errors.New("flaky"))
		}
		return json.RawMessage(`"ok"`), nil
	}

	started := time.Now()
	res, err := Retry(context.Background(), cfg, op, nil)
	elapsed := time.Since(started)

	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if string(res) != `"ok"` {
		t.Errorf("result = %s, want \"ok\"", res)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}

	// Waits are 20ms, 40ms, 80ms: 140ms total, doubling each time.
	if elapsed < 140*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 140ms of backoff", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, backoff grew past the expected schedule", elapsed)
	}
}

func TestRetry_AbortNeverRetried(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	op := func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return nil, abortError(context.Canceled)
	}

	_, err := Retry(context.Background(), cfg, op, nil)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (abort is terminal even on attempt 1)", attempts)
	}
	if !IsAbort(err) {
		t.Errorf("err = %v, want abort", err)
	}
}

func TestRetry_HTTPErrorRetriedToCap(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	op := func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return nil, httpError(503, "warming up")
	}

	_, err := Retry(context.Background(), cfg, op, nil)

	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (1 + 3 retries)", attempts)
	}

	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T, want *RequestError", err)
	}
	if re.Kind != KindHTTP || re.Status != 503 {
		t.Errorf("err = %v, want the last observed HTTP 503", re)
	}
	if re.Attempts != 4 {
		t.Errorf("Attempts annotation = %d, want 4", re.Attempts)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	op := func(ctx context.Context) (json.RawMessage, error) {
		cancel()
		return nil, transportError(errors.New("flaky"))
	}

	started := time.Now()
	_, err := Retry(ctx, cfg, op, nil)

	if !IsAbort(err) {
		t.Errorf("err = %v, want abort", err)
	}
	if time.Since(started) > time.Second {
		t.Error("cancellation during backoff should return promptly")
	}
}

func TestRetry_CustomClassifier(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	op := func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		return nil, httpError(404, "no such record")
	}

	terminal4xx := func(err error) bool {
		var re *RequestError
		if errors.As(err, &re) && re.Kind == KindHTTP && re.Status >= 400 && re.Status < 500 {
			return false
		}
		return DefaultClassifier(err)
	}

	_, err := Retry(context.Background(), cfg, op, terminal4xx)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (classifier marked 4xx terminal)", attempts)
	}
	var re *RequestError
	if !errors.As(err, &re) || re.Status != 404 {
		t.Errorf("err = %v, want HTTP 404", err)
	}
}
