// Package events provides the in-process event bus that connects the kernel
// and the role control loops. Delivery is at-most-once per suppression
// window; durable state lives in the store, so a dropped event is recovered
// by the next reconciliation cycle.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

const (
	TaskCreated      Type = "task:created"
	TaskAssigned     Type = "task:assigned"
	TaskBlocked      Type = "task:blocked"
	TaskReviewNeeded Type = "task:review_needed"
	TaskApproved     Type = "task:approved"
	TaskRejected     Type = "task:rejected"
	TaskCompleted    Type = "task:completed"
	AgentIdle        Type = "agent:idle"
)

// Event is a notification about an entity, usually a task.
type Event struct {
	Type     Type
	EntityID string
	Payload  map[string]string
}

// Handler processes a single event. Errors are logged, never propagated to
// the dispatcher.
type Handler func(Event) error

// DefaultWindow is how long a (type, entity) pair stays suppressed after
// dispatch.
const DefaultWindow = 5 * time.Second

// Bus fans events out to subscribers. Duplicate events for the same
// (type, entity) pair within the suppression window are dropped, which
// keeps redundant reconciliation and recovery dispatches from stacking up.
type Bus struct {
	mu       sync.Mutex
	handlers map[Type][]Handler
	pending  map[string]struct{}
	window   time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewBus creates a bus with the default suppression window.
func NewBus(logger *slog.Logger) *Bus {
	return NewBusWithWindow(logger, DefaultWindow)
}

// NewBusWithWindow creates a bus with a custom suppression window.
func NewBusWithWindow(logger *slog.Logger, window time.Duration) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Type][]Handler),
		pending:  make(map[string]struct{}),
		window:   window,
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Dispatch delivers the event to all subscribers of its type, each in its
// own goroutine. It returns false if the event was suppressed as a
// duplicate, true otherwise.
func (b *Bus) Dispatch(ev Event) bool {
	key := string(ev.Type) + ":" + ev.EntityID

	b.mu.Lock()
	if _, dup := b.pending[key]; dup {
		b.mu.Unlock()
		b.logger.Debug("event suppressed", "type", ev.Type, "entity", ev.EntityID)
		return false
	}
	b.pending[key] = struct{}{}
	handlers := make([]Handler, len(b.handlers[ev.Type]))
	copy(handlers, b.handlers[ev.Type])
	b.mu.Unlock()

	time.AfterFunc(b.window, func() {
		b.mu.Lock()
		delete(b.pending, key)
		b.mu.Unlock()
	})

	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panic",
						"type", ev.Type, "entity", ev.EntityID, "panic", r)
				}
			}()
			if err := h(ev); err != nil {
				b.logger.Error("event handler failed",
					"type", ev.Type, "entity", ev.EntityID, "error", err)
			}
		}()
	}
	return true
}

// Wait blocks until all in-flight handler goroutines have returned.
// Intended for tests and shutdown.
func (b *Bus) Wait() {
	b.wg.Wait()
}
