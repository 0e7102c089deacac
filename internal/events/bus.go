package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an asynchronous publish-subscribe dispatcher. Components
// communicate through it instead of holding references to each other:
// the scheduler emits ping results, the monitor emits up/down transitions,
// and the notifiers react without knowing who produced them.
type EventBus struct {
	mu       sync.RWMutex
	subs     map[EventType][]subscription
	stopCh   chan struct{}
	stopped  bool
	inflight sync.WaitGroup
}

type subscription struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:   make(map[EventType][]subscription),
		stopCh: make(chan struct{}),
	}
}

// Subscribe registers a handler for an event type. The name identifies the
// subscriber in logs and is the key Unsubscribe matches on.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subs[eventType] = append(eb.subs[eventType], subscription{
		name:    name,
		handler: handler,
	})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Unsubscribe removes a named handler from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs, exists := eb.subs[eventType]
	if !exists {
		return
	}

	filtered := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.name != name {
			filtered = append(filtered, sub)
		}
	}
	eb.subs[eventType] = filtered

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("unsubscribed from event")
}

// Emit publishes an event to all subscribers without waiting for them.
// Each handler runs in its own goroutine.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}

	subs := eb.subs[event.Type]
	if len(subs) == 0 {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, sub := range subs {
		eb.inflight.Add(1)
		go func() {
			defer eb.inflight.Done()
			runHandler(ctx, sub, event)
		}()
	}
}

// EmitSync publishes an event and waits for every subscriber to finish.
// It returns the first handler error encountered, if any.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	eb.mu.RLock()
	if eb.stopped {
		eb.mu.RUnlock()
		return nil
	}

	subs := eb.subs[event.Type]
	if len(subs) == 0 {
		eb.mu.RUnlock()
		return nil
	}

	// Copy subscriptions so handlers run without holding the lock.
	pending := make([]subscription, len(subs))
	copy(pending, subs)
	eb.mu.RUnlock()

	var (
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)

	for _, sub := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runHandler(ctx, sub, event); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}

	wg.Wait()
	return firstErr
}

// runHandler invokes a single subscription. Panics are recovered and logged
// so one misbehaving subscriber cannot take down the dispatcher.
func runHandler(ctx context.Context, sub subscription, event Event) error {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", sub.name).
			Msg("event handler failed")
		return err
	}
	return nil
}

// Stop signals the EventBus to stop accepting new events and waits for all
// in-flight handlers to complete.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	eb.stopped = true
	close(eb.stopCh)
	eb.mu.Unlock()

	eb.inflight.Wait()
	log.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for an event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs[eventType])
}
