// Package bus is the in-process notification channel between the messaging
// engine and the surrounding UI layer.
package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event is one engine notification.
type Event struct {
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// Well-known event types emitted by the engine.
const (
	EventStoreChanged    = "store.changed"    // merge, reconcile or delete touched the store
	EventSendFailed      = "send.failed"      // write failure surfaced to the user
	EventSessionClosed   = "session.closed"   // session state discarded
	EventAutoReplyQueued = "autoreply.queued" // trigger matched, generation started
)

// EventBus is a topic-based publish/subscribe hub. Handlers run synchronously
// in registration order; "*" subscribes to everything.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	nextID   int
	logger   *slog.Logger
}

type namedHandler struct {
	ID      string
	Handler EventHandler
}

func New(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers: make(map[string][]namedHandler),
		logger:   logger,
	}
}

// On registers a handler and returns its id for Off. Ids come from a
// monotonic counter, so they stay unique across unsubscribes.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eventType + "-" + strconv.Itoa(eb.nextID)
	eb.nextID++
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by id.
func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	handlers := eb.handlers[eventType]
	for i, h := range handlers {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to matching and wildcard handlers. A panicking
// handler is logged and does not take down the engine.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.RUnlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(event)
		}(h)
	}
}

// EmitAsync delivers the event on its own goroutine.
func (eb *EventBus) EmitAsync(event Event) {
	go eb.Emit(event)
}
