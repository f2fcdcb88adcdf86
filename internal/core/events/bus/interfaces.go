package bus

import "time"

// AnyEvent subscribes a handler to every event type.
const AnyEvent = "*"

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Handlers subscribe by Event.Type(). Publish is synchronous: handlers run
// in the publisher's goroutine, in subscription order, and their errors are
// joined into the returned error.
// A handler may publish or subscribe from inside its callback.
type EventBus interface {
	Publish(event Event) error
	// Subscribe registers handler for eventType or AnyEvent.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. A nil sub is ignored.
	Unsubscribe(sub Subscription) error

	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	// GetMetrics is only populated while at least one observer is registered.
	GetMetrics() EventBusMetrics
}

// Event is an immutable message transported by the bus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Priority() int
	Metadata() map[string]any
}

// EventHandler is invoked per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel deregisters the handler. Repeated calls are no-ops.
	Cancel() error
}

// EventBusObserver receives delivery callbacks. Observers must return quickly.
type EventBusObserver interface {
	OnPublish(eventType string, event Event)
	OnDelivered(eventType string, handlers int, err error, durationMicros int64)
}

type EventBusMetrics struct {
	Published         uint64 `json:"published"`
	DeliveredHandlers uint64 `json:"delivered_handlers"`
	Errors            uint64 `json:"errors"`
	SubscribersActive uint64 `json:"subscribers_active"`
}
