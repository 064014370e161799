package api

import (
	"context"
	"encoding/json"
	"sync"
)

// Inflight deduplicates concurrent identical requests: all callers that
// arrive while an operation for the same key is pending share its single
// outcome instead of issuing their own network call.
//
// A caller that cancels detaches only itself. The underlying operation is
// aborted once every attached caller has withdrawn interest; otherwise it
// runs to settlement, at which point the registry entry is removed and the
// key becomes eligible for a fresh call.
type Inflight struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	done     chan struct{}
	result   json.RawMessage
	err      error
	interest int
	cancel   context.CancelFunc
	settled  bool
}

// NewInflight creates an empty registry.
func NewInflight() *Inflight {
	return &Inflight{calls: make(map[string]*call)}
}

// Do runs fn under key, or attaches to an already-pending run of the same
// key. The returned shared flag reports whether this caller joined an
// existing operation.
func (r *Inflight) Do(ctx context.Context, key string, fn func(context.Context) (json.RawMessage, error)) (result json.RawMessage, shared bool, err error) {
	r.mu.Lock()
	if c, ok := r.calls[key]; ok {
		c.interest++
		r.mu.Unlock()
		res, err := r.wait(ctx, key, c)
		return res, true, err
	}

	// The operation outlives any single caller: it is bound to a context
	// cancelled only when all attached callers have withdrawn.
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call{
		done:     make(chan struct{}),
		interest: 1,
		cancel:   cancel,
	}
	r.calls[key] = c
	r.mu.Unlock()

	go func() {
		res, err := fn(opCtx)
		r.mu.Lock()
		c.result, c.err = res, err
		c.settled = true
		delete(r.calls, key)
		r.mu.Unlock()
		cancel()
		close(c.done)
	}()

	res, err := r.wait(ctx, key, c)
	return res, false, err
}

// wait blocks until the call settles or the caller's context is cancelled.
func (r *Inflight) wait(ctx context.Context, key string, c *call) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		r.mu.Lock()
		c.interest--
		if c.interest == 0 && !c.settled {
			// Last interested caller gone: abort the underlying operation.
			c.cancel()
		}
		r.mu.Unlock()
		return nil, abortError(ctx.Err())
	}
}

// Outstanding returns the number of distinct pending keys.
func (r *Inflight) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
