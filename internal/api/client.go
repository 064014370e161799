package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/dinehall/datalayer/internal/metrics"
	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/pkg/logger"
)

// DefaultCacheableEndpoints is the enumerated set of static endpoints
// whose GET responses may be cached. Record-bearing reads (orders, menu
// items, users) are deliberately excluded so concurrent mutation by other
// actors is never hidden behind a stale entry.
var DefaultCacheableEndpoints = []string{
	"/health",
	"/capabilities",
}

// ClientOptions configures the orchestrating client.
type ClientOptions struct {
	// Retry is the backoff policy for requests that opt into retry.
	Retry RetryConfig

	// CacheableEndpoints replaces DefaultCacheableEndpoints when non-nil.
	CacheableEndpoints []string

	Logger    *logger.Logger
	Collector *metrics.Collector
}

// Client turns independent UI actions into a consistent view of server
// state: it routes every request through the in-flight registry (dedup),
// optionally through the retry policy, consults the response cache for
// eligible reads, and on every successful mutation invalidates the cache
// and announces the change on the sync bus.
type Client struct {
	gateway   *Gateway
	cache     *Cache
	inflight  *Inflight
	bus       *syncbus.Bus
	retry     RetryConfig
	cacheable map[string]bool
	log       *logger.Logger
	collector *metrics.Collector
}

// NewClient wires the orchestration layer together. Cache, inflight and bus
// are constructor-injected so tests can run isolated instances.
func NewClient(gateway *Gateway, cache *Cache, inflight *Inflight, bus *syncbus.Bus, opts ClientOptions) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("client")
	}

	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	endpoints := opts.CacheableEndpoints
	if endpoints == nil {
		endpoints = DefaultCacheableEndpoints
	}
	cacheable := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		cacheable[e] = true
	}

	return &Client{
		gateway:   gateway,
		cache:     cache,
		inflight:  inflight,
		bus:       bus,
		retry:     retry,
		cacheable: cacheable,
		log:       log,
		collector: opts.Collector,
	}
}

// Request issues one logical request through the full orchestration path.
func (c *Client) Request(ctx context.Context, method, path string, opts Options) (json.RawMessage, error) {
	if opts.RawBody != nil {
		// Streaming bodies cannot be replayed, so uploads bypass dedup
		// and retry and go straight to the gateway.
		res, err := c.gateway.Do(ctx, method, path, opts)
		return c.settle(method, res, err)
	}

	var bodyBytes []byte
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, transportError(fmt.Errorf("marshal request body: %w", err))
		}
		bodyBytes = data
		opts.Body = json.RawMessage(data)
	}

	key := method + " " + path + " " + string(bodyBytes)
	cacheable := method == http.MethodGet && c.cacheable[path]

	if cacheable {
		if payload, ok := c.cache.Get(key); ok {
			c.collector.RecordCacheHit()
			return payload, nil
		}
		c.collector.RecordCacheMiss()
	}

	op := func(ctx context.Context) (json.RawMessage, error) {
		return c.gateway.Do(ctx, method, path, opts)
	}
	if opts.Retry {
		inner := op
		first := true
		op = func(ctx context.Context) (json.RawMessage, error) {
			return Retry(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
				if !first {
					c.collector.RecordRetry()
				}
				first = false
				return inner(ctx)
			}, nil)
		}
	}

	res, shared, err := c.inflight.Do(ctx, key, op)
	if shared {
		c.collector.RecordDedupShared()
	}
	c.collector.SetInflight(c.inflight.Outstanding())
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.cache.Put(key, res)
	}
	return c.settle(method, res, nil)
}

// settle applies the mutation side effects: a successful mutating call
// invalidates the whole cache and announces the change; a failed one does
// neither, so subscribers never refetch on failure.
func (c *Client) settle(method string, res json.RawMessage, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if isMutating(method) {
		c.cache.InvalidateAll()
		c.collector.RecordInvalidation()
		c.bus.Publish(syncbus.TopicDataRefresh, nil)
	}
	return res, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, opts)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, path, Options{Body: body})
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPut, path, Options{Body: body})
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPatch, path, Options{Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodDelete, path, Options{})
}

// Upload posts a multipart body with the file under field and returns the
// parsed response. The multipart writer supplies the content-type; no JSON
// content-type is applied.
func (c *Client) Upload(ctx context.Context, path, field, filename string, file io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, transportError(fmt.Errorf("create multipart field: %w", err))
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, transportError(fmt.Errorf("copy upload payload: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, transportError(fmt.Errorf("finalize multipart body: %w", err))
	}

	return c.Request(ctx, http.MethodPost, path, Options{
		RawBody:     &buf,
		ContentType: w.FormDataContentType(),
	})
}

// NormalizeList returns the canonical item array from a list response,
// which may arrive either as a bare JSON array or as an {items, ...}
// envelope.
func NormalizeList(raw json.RawMessage) (json.RawMessage, error) {
	v := gjson.ParseBytes(raw)
	if v.IsArray() {
		return raw, nil
	}
	if items := v.Get("items"); items.Exists() && items.IsArray() {
		return json.RawMessage(items.Raw), nil
	}
	return nil, fmt.Errorf("unexpected list response shape")
}
