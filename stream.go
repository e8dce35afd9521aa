package livequery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autom8ter/machine/v4"
)

// EventKind is the kind of write an invalidation was requested for
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventRemove EventKind = "remove"
)

// Outcome is the result of an invalidation request
type Outcome string

const (
	// OutcomeNotified means the cursors were notified
	OutcomeNotified Outcome = "notified"
	// OutcomeSuperseded means a later update to the same document began before this one committed.
	// Its changes are carried forward by the later update.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeFetchFailed means the refresh fetch returned an error and the ticket was aborted
	OutcomeFetchFailed Outcome = "fetchFailed"
	// OutcomeMissing means the refreshed document no longer exists and the ticket was aborted
	OutcomeMissing Outcome = "missing"
	// OutcomeUnregistered means the collection is not registered with the invalidator
	OutcomeUnregistered Outcome = "unregistered"
)

// Event describes the result of a single invalidation request
type Event struct {
	Collection string         `json:"collection"`
	Kind       EventKind      `json:"kind"`
	ID         string         `json:"id"`
	Outcome    Outcome        `json:"outcome"`
	Added      int            `json:"added"`
	Removed    int            `json:"removed"`
	Changed    int            `json:"changed"`
	Fields     map[string]any `json:"fields,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EventHandler handles an event. Returning false stops the subscription.
type EventHandler func(ctx context.Context, event Event) (bool, error)

// eventQueue is an unbounded FIFO of events awaiting delivery to subscribers
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push queues the event without blocking. It returns false once the queue is closed.
func (q *eventQueue) push(event Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, event)
	q.signal()
	return true
}

// take blocks until events are queued and returns all of them.
// It returns false once the queue is closed and drained.
func (q *eventQueue) take() ([]Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			events := q.events
			q.events = nil
			q.mu.Unlock()
			return events, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.ready
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// publish queues the event for delivery. It never blocks the write path on subscribers.
func (i *Invalidator) publish(ctx context.Context, event Event) {
	event.Timestamp = time.Now()
	i.metrics.invalidation(event.Collection, event.Kind, event.Outcome)
	if !i.events.push(event) {
		i.logger.Debug(ctx, "dropped event published after close", map[string]any{
			"collection": event.Collection,
			"id":         event.ID,
		})
	}
}

// stream delivers queued events in order until the queue is closed and drained
func (i *Invalidator) stream(ctx context.Context) error {
	defer close(i.streamed)
	for {
		events, ok := i.events.take()
		if !ok {
			return nil
		}
		for _, event := range events {
			i.deliver(ctx, event)
		}
	}
}

func (i *Invalidator) deliver(ctx context.Context, event Event) {
	// a subscription that ends while a message is being sent to it closes the channel under the sender
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn(ctx, "subscriber went away during event delivery", map[string]any{
				"collection": event.Collection,
				"id":         event.ID,
				"panic":      fmt.Sprint(r),
			})
		}
	}()
	i.machine.Publish(ctx, machine.Message{
		Channel: event.Collection,
		Body:    event,
	})
}

// Subscribe streams the invalidation events of a collection to the handler until the context is cancelled,
// the handler returns false or the invalidator is closed. It blocks while subscribed.
func (i *Invalidator) Subscribe(ctx context.Context, collection string, fn EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(i.ctx, cancel)
	defer stop()
	return i.machine.Subscribe(ctx, collection, func(ctx context.Context, msg machine.Message) (bool, error) {
		event, ok := msg.Body.(Event)
		if !ok {
			return true, nil
		}
		return fn(ctx, event)
	})
}
