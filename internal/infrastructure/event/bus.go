package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fintrack/backend/internal/domain/shared"
)

// InMemoryEventBus dispatches domain events to in-process handlers
// synchronously, in publish order. Services publish after their own state
// change is committed, so handlers observe a consistent store. A failing
// handler is logged and skipped: connection lifecycle events are
// notifications, not part of the state change itself.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Publish delivers each event to every interested handler
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, evt := range events {
		for _, handler := range b.registry.HandlersFor(evt.EventType()) {
			if err := b.dispatch(ctx, handler, evt); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.String("aggregate_id", evt.AggregateID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler; with no explicit types the handler's own
// EventTypes() declaration decides what it receives
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start marks the bus running
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop marks the bus stopped
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

// dispatch invokes one handler, converting a panic into an error so a
// misbehaving handler cannot take down the publisher
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, evt)
}

// HandlerFunc adapts a plain function into an EventHandler for the given
// event types. Used to wire small observers at startup without a type per
// handler.
type HandlerFunc struct {
	Types []string
	Fn    func(ctx context.Context, evt shared.DomainEvent) error
}

// Handle invokes the wrapped function
func (h *HandlerFunc) Handle(ctx context.Context, evt shared.DomainEvent) error {
	return h.Fn(ctx, evt)
}

// EventTypes returns the event types the function is interested in
func (h *HandlerFunc) EventTypes() []string {
	return h.Types
}

// Ensure the implementations satisfy the domain ports
var (
	_ shared.EventBus     = (*InMemoryEventBus)(nil)
	_ shared.EventHandler = (*HandlerFunc)(nil)
)
