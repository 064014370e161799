package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/dinehall/datalayer/internal/metrics"
	"github.com/dinehall/datalayer/pkg/logger"
)

// DefaultTimeout bounds every request, uploads included.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the ambient bearer credential, when one exists.
type TokenSource interface {
	// Token returns the current bearer token, or "" when not signed in.
	Token() string
}

// Options carries per-request parameters.
type Options struct {
	// Body is marshalled to JSON when non-nil.
	Body interface{}

	// RawBody is sent as-is (multipart/binary uploads). When set, no
	// content-type is applied unless ContentType says otherwise.
	RawBody io.Reader

	// ContentType overrides the content-type header for RawBody payloads.
	ContentType string

	// Headers are additional header overrides.
	Headers map[string]string

	// Timeout overrides the gateway default for this request.
	Timeout time.Duration

	// Retry opts this request into the bounded-backoff retry policy.
	// Only read by the Client; the gateway issues a single attempt.
	Retry bool
}

// GatewayConfig configures the request gateway.
type GatewayConfig struct {
	// BaseURL is the record-store root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout is the default request bound (DefaultTimeout when zero).
	Timeout time.Duration

	// HTTPClient overrides the transport. The gateway applies its own
	// per-request deadlines, so the client should not carry a Timeout.
	HTTPClient *http.Client

	// Tokens supplies the ambient bearer credential. Optional.
	Tokens TokenSource

	// RequestsPerSecond enables a client-side rate limiter when positive.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size (defaults to 1 when limited).
	Burst int
}

// Gateway issues HTTP calls with bounded timeout and abort semantics.
// It is the only component that touches the network transport directly.
type Gateway struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	log        *logger.Logger
	collector  *metrics.Collector
}

// NewGateway creates a gateway against cfg.BaseURL.
func NewGateway(cfg GatewayConfig, log *logger.Logger, collector *metrics.Collector) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if log == nil {
		log = logger.NewDefault("gateway")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Gateway{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		limiter:    limiter,
		log:        log,
		collector:  collector,
	}, nil
}

// Do issues one HTTP call and returns the parsed JSON body on success.
// Failures are surfaced as *RequestError per the timeout/transport/abort/http
// taxonomy; nothing is swallowed.
func (g *Gateway) Do(ctx context.Context, method, path string, opts Options) (json.RawMessage, error) {
	bound := opts.Timeout
	if bound <= 0 {
		bound = g.timeout
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, abortError(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	req, err := g.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := g.httpClient.Do(req)
	elapsed := time.Since(started)

	if err != nil {
		reqErr := g.classifyTransport(err, bound)
		g.collector.ObserveRequest(method, string(reqErr.Kind), elapsed)
		g.log.WithError(reqErr).
			WithField("method", method).
			WithField("path", path).
			Warn("request failed")
		return nil, reqErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		reqErr := transportError(fmt.Errorf("read response body: %w", err))
		g.collector.ObserveRequest(method, string(KindTransport), elapsed)
		return nil, reqErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := httpError(resp.StatusCode, extractErrorMessage(body))
		g.collector.ObserveRequest(method, string(KindHTTP), elapsed)
		g.log.WithField("method", method).
			WithField("path", path).
			WithField("status", resp.StatusCode).
			Debug("server rejected request")
		return nil, reqErr
	}

	g.collector.ObserveRequest(method, "success", elapsed)

	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, opts Options) (*http.Request, error) {
	var body io.Reader
	contentType := ""

	switch {
	case opts.RawBody != nil:
		// Binary/multipart payloads carry their own framing; no JSON
		// content-type is applied.
		body = opts.RawBody
		contentType = opts.ContentType
	case opts.Body != nil:
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, transportError(fmt.Errorf("marshal request body: %w", err))
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, transportError(fmt.Errorf("create request: %w", err))
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// The bearer credential is attached only when the session has one and
	// the caller did not already set its own.
	if g.tokens != nil {
		if token := g.tokens.Token(); token != "" && opts.Headers["Authorization"] == "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if isMutating(method) {
		req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		req.Header.Set("Pragma", "no-cache")
		req.Header.Set("Expires", "0")
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// classifyTransport maps a transport-level failure onto the error taxonomy.
func (g *Gateway) classifyTransport(err error, bound time.Duration) *RequestError {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(bound, err)
	}
	if errors.Is(err, context.Canceled) {
		return abortError(err)
	}
	return transportError(err)
}

// extractErrorMessage pulls the server's error message out of a failure
// body, preferring the "error" field, then "message".
func extractErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return msg
	}
	return gjson.GetBytes(body, "message").String()
}

// isMutating reports whether method changes server state.
func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
