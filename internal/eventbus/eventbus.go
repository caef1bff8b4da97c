// Package eventbus implements the single-process typed pub/sub used for
// on-chain events (§2 Event Bus). Subscribers registered before startup
// observe events in the order they registered; the state engine's
// subscription must be registered before the policy engine's so that dev
// metrics are updated before any policy reads them (§5 ordering
// guarantee).
package eventbus

import (
	"context"
	"sync"

	"github.com/curvesentinel/node/internal/events"
	"github.com/curvesentinel/node/pkg/observability"
)

// Handler processes one event. Dispatch is synchronous and in subscriber
// registration order (see Publish), so a handler must not block
// indefinitely — a slow handler delays every subscriber after it.
type Handler func(ctx context.Context, evt events.Event)

// Bus is a single-process, in-order-per-publisher, fan-out-per-subscriber
// event bus. Subscribers are appended to an ordered slice so that
// registration order is preserved for components (like the state engine)
// whose ordering relative to other subscribers matters.
type Bus struct {
	logger *observability.Logger

	mu          sync.RWMutex
	subscribers []subscriber
}

type subscriber struct {
	name    string
	handler Handler
}

func New(logger *observability.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a catch-all handler. name is used only for logging.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber{name: name, handler: handler})
}

// Publish dispatches evt synchronously, in subscriber registration order.
// Dispatch is synchronous by design: it is what lets the state engine's
// DevWalletSell handling complete before the policy engine evaluates the
// same event (§5). Each handler is still isolated from panics so one
// subscriber's failure does not prevent the others from observing evt.
func (b *Bus) Publish(ctx context.Context, evt events.Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, s, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscriber, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event subscriber panicked", nil, map[string]interface{}{
				"subscriber": s.name,
				"event_kind": string(evt.Kind),
				"recovered":  r,
			})
		}
	}()
	s.handler(ctx, evt)
}
