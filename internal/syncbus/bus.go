// Package syncbus provides the in-process publish/subscribe channel used to
// announce server-state changes to interested views. Any part of the UI may
// publish that server state changed; data-consuming views subscribe and
// refetch in response.
package syncbus

import (
	"sync"

	"github.com/dinehall/datalayer/pkg/logger"
)

// Canonical topics.
const (
	// TopicDataRefresh tells subscribers to re-fetch their own view of
	// server state. It carries no payload.
	TopicDataRefresh = "data-refresh"

	// TopicEntityUpdated identifies an entity kind and its new value so
	// subscribers may update without a full re-fetch if they trust the
	// payload.
	TopicEntityUpdated = "entity-updated"
)

// EntityUpdate is the payload published on TopicEntityUpdated.
type EntityUpdate struct {
	// Kind names the entity collection that changed, e.g. "orders".
	Kind string
	// Payload is the new value, when the publisher has one.
	Payload interface{}
}

// Handler processes a published payload.
type Handler func(payload interface{})

type subscription struct {
	id      int64
	handler Handler
}

// Bus is a process-wide publish/subscribe channel. Handlers run
// synchronously in subscription order on the goroutine that calls Publish.
// A publish with zero subscribers is dropped; there is no queuing across
// publishes.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]subscription
	nextID int64
	log    *logger.Logger
}

// New creates an empty bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("syncbus")
	}
	return &Bus{
		subs: make(map[string][]subscription),
		log:  log,
	}
}

// Subscribe registers a handler for a topic and returns its unsubscribe
// function. Unsubscribing during a handler's own invocation does not affect
// delivery to handlers already scheduled in that publish cycle.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every handler registered for topic at publish
// time, once each, synchronously, in subscription order.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	b.log.WithField("topic", topic).WithField("subscribers", len(subs)).Debug("publish")

	// Handlers are invoked outside the lock so they may subscribe or
	// unsubscribe without deadlocking.
	for _, s := range subs {
		s.handler(payload)
	}
}

// SubscriberCount returns the number of handlers registered for topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
