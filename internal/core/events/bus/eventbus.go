package bus

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNilHandler  = errors.New("bus: nil handler")
	ErrEmptyType   = errors.New("bus: empty event type")
	ErrScopeClosed = errors.New("bus: scope closed")
)

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
	prio    int
	meta    map[string]any
}

func (e simpleEvent) Type() string             { return e.typeStr }
func (e simpleEvent) Source() string           { return e.source }
func (e simpleEvent) Timestamp() time.Time     { return e.ts }
func (e simpleEvent) Data() any                { return e.data }
func (e simpleEvent) Priority() int            { return e.prio }
func (e simpleEvent) Metadata() map[string]any { return e.meta }

// NewEvent creates a basic Event stamped with the current time.
func NewEvent(typ, src string, data any, priority int, metadata map[string]any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data, prio: priority, meta: metadata}
}

type subscription struct {
	id        string
	seq       uint64
	eventType string
	handler   EventHandler
	active    atomic.Bool
	bus       *inMemoryBus
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active.Load() }

func (s *subscription) Cancel() error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	s.bus.remove(s)
	return nil
}

type inMemoryBus struct {
	mu  sync.RWMutex
	seq uint64
	// handlers: eventType -> subID -> subscription
	handlers  map[string]map[string]*subscription
	metrics   EventBusMetrics
	observers map[EventBusObserver]struct{}
}

// New creates an empty bus.
func New() EventBus {
	return &inMemoryBus{
		handlers:  make(map[string]map[string]*subscription),
		observers: make(map[EventBusObserver]struct{}),
	}
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if eventType == "" {
		return nil, ErrEmptyType
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]*subscription)
	}
	b.seq++
	s := &subscription{
		id:        uuid.NewString(),
		seq:       b.seq,
		eventType: eventType,
		handler:   handler,
		bus:       b,
	}
	s.active.Store(true)
	b.handlers[eventType][s.id] = s
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	b.observers[obs] = struct{}{}
	b.mu.Unlock()
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	delete(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) GetMetrics() EventBusMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mm, ok := b.handlers[s.eventType]; ok {
		delete(mm, s.id)
	}
}

// snapshot collects the handlers for etype plus the wildcard handlers,
// ordered by subscription time.
func (b *inMemoryBus) snapshot(etype string) ([]*subscription, []EventBusObserver) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var subs []*subscription
	for _, s := range b.handlers[etype] {
		subs = append(subs, s)
	}
	if etype != AnyEvent {
		for _, s := range b.handlers[AnyEvent] {
			subs = append(subs, s)
		}
	}
	slices.SortFunc(subs, func(x, y *subscription) int { return cmp.Compare(x.seq, y.seq) })

	var obs []EventBusObserver
	if len(b.observers) > 0 {
		obs = make([]EventBusObserver, 0, len(b.observers))
		for o := range b.observers {
			obs = append(obs, o)
		}
	}
	return subs, obs
}

func (b *inMemoryBus) Publish(event Event) error {
	start := time.Now()
	etype := event.Type()
	subs, obs := b.snapshot(etype)

	for _, o := range obs {
		o.OnPublish(etype, event)
	}

	var all error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		all = errors.Join(all, s.handler(event))
	}

	if len(obs) > 0 {
		dur := time.Since(start).Microseconds()
		for _, o := range obs {
			o.OnDelivered(etype, delivered, all, dur)
		}
		b.mu.Lock()
		b.metrics.Published++
		b.metrics.DeliveredHandlers += uint64(delivered)
		if all != nil {
			b.metrics.Errors++
		}
		var active uint64
		for _, m := range b.handlers {
			active += uint64(len(m))
		}
		b.metrics.SubscribersActive = active
		b.mu.Unlock()
	}
	return all
}
