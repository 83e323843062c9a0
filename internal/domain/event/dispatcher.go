package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AllEvents subscribes a handler to every event name
const AllEvents = "*"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// DispatchAll dispatches multiple events
	DispatchAll(events []DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// FuncHandler adapts a function into an EventHandler.
// Use a pointer so Unsubscribe can find it again.
type FuncHandler struct {
	fn    func(DomainEvent) error
	names []string
}

// NewFuncHandler subscribes fn to the given names, or to all events if none are given
func NewFuncHandler(fn func(DomainEvent) error, names ...string) *FuncHandler {
	if len(names) == 0 {
		names = []string{AllEvents}
	}
	return &FuncHandler{fn: fn, names: names}
}

// Handle calls the wrapped function
func (h *FuncHandler) Handle(event DomainEvent) error {
	return h.fn(event)
}

// HandledEvents returns the subscribed names
func (h *FuncHandler) HandledEvents() []string {
	return h.names
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// Synchronous dispatch delivers events on the caller's goroutine, in order.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool, logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
		logger:   logger,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	all := d.handlers[AllEvents]
	targets := make([]EventHandler, 0, len(named)+len(all))
	targets = append(targets, named...)
	targets = append(targets, all...)
	d.mu.RUnlock()

	for _, handler := range targets {
		if d.async {
			go d.deliver(handler, event)
		} else {
			d.deliver(handler, event)
		}
	}
}

// deliver runs one handler; a failing or panicking observer never reaches the publisher
func (d *InMemoryDispatcher) deliver(handler EventHandler, event DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", event.EventName()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := handler.Handle(event); err != nil {
		d.logger.Warn("event handler failed",
			zap.String("event", event.EventName()),
			zap.Error(err))
	}
}

// DispatchAll dispatches multiple events
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, event := range events {
		d.Dispatch(event)
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		kept := make([]EventHandler, 0, len(handlers))
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		d.handlers[eventName] = kept
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// DispatchAll does nothing
func (d *NullDispatcher) DispatchAll(events []DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
