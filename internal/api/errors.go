package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a request failure.
type ErrorKind string

const (
	// KindTimeout means the request bound elapsed before the server responded.
	KindTimeout ErrorKind = "timeout"

	// KindTransport means a network-level failure (DNS, connection refused).
	KindTransport ErrorKind = "transport"

	// KindAbort means the caller cancelled the request.
	KindAbort ErrorKind = "abort"

	// KindHTTP means the server responded with a non-2xx status.
	KindHTTP ErrorKind = "http"
)

// RequestError is the failure type surfaced by the gateway and everything
// layered on top of it.
type RequestError struct {
	Kind ErrorKind

	// Status is the HTTP status code, for KindHTTP.
	Status int

	// Message is the server-provided error message, for KindHTTP.
	Message string

	// Bound is the elapsed timeout bound, for KindTimeout.
	Bound time.Duration

	// Attempts is the total attempt count, set when retries are exhausted.
	Attempts int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *RequestError) Error() string {
	var msg string
	switch e.Kind {
	case KindTimeout:
		msg = fmt.Sprintf("request timed out after %s", e.Bound)
	case KindTransport:
		msg = fmt.Sprintf("transport failure: %v", e.Err)
	case KindAbort:
		msg = "request aborted"
	case KindHTTP:
		msg = fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	default:
		msg = fmt.Sprintf("request failed: %v", e.Err)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a fresh attempt.
// An abort is terminal; everything else, including HTTP errors, is
// retryable at the call sites that opt into retry (transient 5xx responses
// are common against a cold server process, and per-status classification
// is deliberately not attempted).
func (e *RequestError) Retryable() bool {
	return e.Kind != KindAbort
}

// timeoutError builds a timeout failure carrying the elapsed bound.
func timeoutError(bound time.Duration, err error) *RequestError {
	return &RequestError{Kind: KindTimeout, Bound: bound, Err: err}
}

// abortError builds a caller-cancellation failure.
func abortError(err error) *RequestError {
	return &RequestError{Kind: KindAbort, Err: err}
}

// transportError builds a network-level failure.
func transportError(err error) *RequestError {
	return &RequestError{Kind: KindTransport, Err: err}
}

// httpError builds a non-2xx response failure.
func httpError(status int, message string) *RequestError {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	return &RequestError{Kind: KindHTTP, Status: status, Message: message}
}

// IsAbort reports whether err is a caller-initiated cancellation.
func IsAbort(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind == KindAbort
	}
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is an elapsed request bound.
func IsTimeout(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind == KindTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}
