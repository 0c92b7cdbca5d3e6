package events

import (
	"context"
	"fmt"
	"sync"

	"fieldsync_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// InMemoryBus is a synchronous-subscribe, optionally-async-publish event bus.
// It is process-local; cross-process delivery is the job of the task queue.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the named event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously.
// Handler panics are recovered and logged; a failing handler never
// affects the publisher or its siblings.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event handler panicked",
						"event", event.EventName(), "panic", fmt.Sprint(r))
				}
			}()
			// Detach from the request context so in-flight handlers survive
			// the originating HTTP request completing.
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil {
				b.log.Error("event handler failed",
					"event", event.EventName(), "error", err)
			}
		}(h)
	}
}

// PublishSync dispatches the event to all handlers and waits for them,
// returning the first error encountered.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		g.Go(func() error {
			return h.Handle(gctx, event)
		})
	}
	return g.Wait()
}

// Compile-time check that InMemoryBus implements Bus.
var _ Bus = (*InMemoryBus)(nil)
