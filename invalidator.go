// Package livequery keeps live queries (cursors) over a document store in sync with the writes made to it.
// Writers call InvalidateInsert, InvalidateRemove and InvalidateUpdate after each mutation; the Invalidator
// works out which cursors are affected and issues added, removed and changed callbacks. Updates refresh only
// the fields named by their modifier, and concurrent refreshes of the same document are ordered with
// per document version tickets so that a slow refresh can never publish stale values.
package livequery

import (
	"context"
	"sort"
	"sync"

	"github.com/autom8ter/livequery/internal/safe"
	"github.com/autom8ter/machine/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

const (
	callbackAdded   = "added"
	callbackRemoved = "removed"
	callbackChanged = "changed"
)

// Invalidator forwards write notifications to the cursors registered on each collection.
// It holds non-owning references to collections and cursors; their owners register and deregister them.
// Cursor callbacks run one write at a time and must not call back into the Invalidator synchronously.
type Invalidator struct {
	config      Config
	collections *safe.Map[Collection]

	mu      sync.RWMutex
	cursors map[string][]Cursor

	// dispatch serializes notification passes so that cursors observe one write at a time
	dispatch sync.Mutex

	lifecycle sync.RWMutex
	closed    bool
	inflight  sync.WaitGroup
	shutdown  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	events   *eventQueue
	streamed chan struct{}

	logger      Logger
	machine     machine.Machine
	ownsMachine bool
	registerer prometheus.Registerer
	metrics    *metrics
	fetches    *semaphore.Weighted
}

// New creates an Invalidator
func New(cfg Config, opts ...Opt) (*Invalidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	i := &Invalidator{
		config:      cfg,
		collections: safe.NewMap[Collection](nil),
		cursors:     map[string][]Cursor{},
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		logger, err := NewLogger(cfg.LogLevel, map[string]any{"component": "livequery"})
		if err != nil {
			return nil, err
		}
		i.logger = logger
	}
	if i.machine == nil {
		i.machine = machine.New()
		i.ownsMachine = true
	}
	if cfg.Metrics {
		if i.registerer == nil {
			i.registerer = prometheus.DefaultRegisterer
		}
		m, err := newMetrics(i.registerer)
		if err != nil {
			return nil, err
		}
		i.metrics = m
	}
	if cfg.MaxConcurrentFetches > 0 {
		i.fetches = semaphore.NewWeighted(cfg.MaxConcurrentFetches)
	}
	i.ctx, i.cancel = context.WithCancel(context.Background())
	i.events = newEventQueue()
	i.streamed = make(chan struct{})
	i.machine.Go(i.ctx, i.stream)
	return i, nil
}

// RegisterCollection registers the collection under the given name, replacing any collection registered under it
func (i *Invalidator) RegisterCollection(name string, collection Collection) {
	i.collections.Set(name, collection)
}

// UnregisterCollection removes the collection registered under the given name
func (i *Invalidator) UnregisterCollection(name string) {
	i.collections.Del(name)
}

// Collection returns the collection registered under the given name
func (i *Invalidator) Collection(name string) (Collection, bool) {
	return i.collections.Lookup(name)
}

// Collections returns the names of the registered collections in sorted order
func (i *Invalidator) Collections() []string {
	var names []string
	i.collections.Range(func(name string, _ Collection) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// AddCursor registers the cursor on the collection. Adding a cursor that is already registered is a no-op.
func (i *Invalidator) AddCursor(collection string, cursor Cursor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if lo.Contains(i.cursors[collection], cursor) {
		return
	}
	i.cursors[collection] = append(i.cursors[collection], cursor)
}

// RemoveCursor deregisters the cursor from the collection
func (i *Invalidator) RemoveCursor(collection string, cursor Cursor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	remaining := lo.Filter(i.cursors[collection], func(c Cursor, _ int) bool {
		return c != cursor
	})
	if len(remaining) == 0 {
		delete(i.cursors, collection)
		return
	}
	i.cursors[collection] = remaining
}

// Cursors returns the cursors registered on the collection
func (i *Invalidator) Cursors(collection string) []Cursor {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Cursor(nil), i.cursors[collection]...)
}

// InvalidateInsert notifies the cursors whose selector matches the inserted document
func (i *Invalidator) InvalidateInsert(ctx context.Context, collection string, doc *Document) {
	if doc == nil {
		i.logger.Warn(ctx, "asked to invalidate insert of a nil document", map[string]any{"collection": collection})
		return
	}
	i.dispatch.Lock()
	defer i.dispatch.Unlock()
	event := Event{Collection: collection, Kind: EventInsert, ID: doc.ID(), Outcome: OutcomeNotified}
	for _, cursor := range i.Cursors(collection) {
		if cursor.Matches(doc) {
			cursor.Added(doc)
			event.Added++
			i.metrics.callback(collection, callbackAdded)
		}
	}
	i.publish(ctx, event)
}

// InvalidateRemove notifies the cursors tracking the removed document
func (i *Invalidator) InvalidateRemove(ctx context.Context, collection string, id string) {
	i.dispatch.Lock()
	defer i.dispatch.Unlock()
	event := Event{Collection: collection, Kind: EventRemove, ID: id, Outcome: OutcomeNotified}
	for _, cursor := range i.Cursors(collection) {
		if cursor.Tracks(id) {
			cursor.Removed(id)
			event.Removed++
			i.metrics.callback(collection, callbackRemoved)
		}
	}
	if c, ok := i.collections.Lookup(collection); ok {
		c.Versions().Release(id)
	}
	i.publish(ctx, event)
}

// InvalidateUpdate refreshes the fields of the document touched by the modifier and notifies the affected cursors.
// It returns once the refresh has been scheduled; notifications are issued after the document has been fetched.
// Failures are logged, never returned: the write itself has already succeeded.
func (i *Invalidator) InvalidateUpdate(ctx context.Context, collectionName string, id string, modifier Modifier) {
	tags := map[string]any{"collection": collectionName, "id": id}
	collection, ok := i.collections.Lookup(collectionName)
	if !ok {
		i.logger.Warn(ctx, "asked to invalidate update of an unregistered collection", tags)
		i.publish(ctx, Event{Collection: collectionName, Kind: EventUpdate, ID: id, Outcome: OutcomeUnregistered})
		return
	}
	i.lifecycle.RLock()
	defer i.lifecycle.RUnlock()
	if i.closed {
		i.logger.Warn(ctx, "asked to invalidate update after close", tags)
		return
	}
	update, remove := Classify(modifier)
	version, ticket := collection.Versions().Begin(id, update.Union(remove))

	// the refresh outlives the write that triggered it
	ctx = context.WithoutCancel(ctx)
	i.inflight.Add(1)
	i.machine.Go(ctx, func(ctx context.Context) error {
		defer i.inflight.Done()
		i.refresh(ctx, collectionName, collection, id, version, ticket)
		return nil
	})
}

func (i *Invalidator) refresh(ctx context.Context, collectionName string, collection Collection, id string, version *VersionManager, ticket Ticket) {
	tags := map[string]any{"collection": collectionName, "id": id, "version": ticket.Version}
	if i.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.config.FetchTimeout)
		defer cancel()
	}
	if i.fetches != nil {
		if err := i.fetches.Acquire(ctx, 1); err != nil {
			version.Abort(ticket)
			i.logger.Error(ctx, "failed to schedule document refresh", err, tags)
			i.publish(ctx, Event{Collection: collectionName, Kind: EventUpdate, ID: id, Outcome: OutcomeFetchFailed})
			return
		}
		defer i.fetches.Release(1)
	}
	result := i.fetch(ctx, collection, id)

	i.dispatch.Lock()
	defer i.dispatch.Unlock()
	switch result.Status {
	case FetchFailed:
		version.Abort(ticket)
		i.logger.Error(ctx, "failed to refresh document", result.Err, tags)
		i.publish(ctx, Event{Collection: collectionName, Kind: EventUpdate, ID: id, Outcome: OutcomeFetchFailed})
	case FetchNotFound:
		// the document was removed concurrently: removal notifications belong to InvalidateRemove
		version.Abort(ticket)
		i.logger.Debug(ctx, "refreshed document no longer exists", tags)
		i.publish(ctx, Event{Collection: collectionName, Kind: EventUpdate, ID: id, Outcome: OutcomeMissing})
	case FetchFound:
		i.publish(ctx, i.notifyUpdate(ctx, collectionName, id, result.Document, version, ticket))
	}
}

func (i *Invalidator) fetch(ctx context.Context, collection Collection, id string) FetchResult {
	i.metrics.fetchStarted()
	defer i.metrics.fetchDone()
	return Fetch(ctx, collection, id)
}

type cursorState struct {
	cursor  Cursor
	tracked bool
	matches bool
}

// notifyUpdate runs the added, removed and changed passes against a snapshot of the cursors' state taken before any callback
func (i *Invalidator) notifyUpdate(ctx context.Context, collection string, id string, doc *Document, version *VersionManager, ticket Ticket) Event {
	states := lo.Map(i.Cursors(collection), func(cursor Cursor, _ int) cursorState {
		return cursorState{
			cursor:  cursor,
			tracked: cursor.Tracks(id),
			matches: cursor.Matches(doc),
		}
	})
	event := Event{Collection: collection, Kind: EventUpdate, ID: id, Outcome: OutcomeNotified}
	for _, s := range states {
		if !s.tracked && s.matches {
			s.cursor.Added(doc)
			event.Added++
			i.metrics.callback(collection, callbackAdded)
		}
	}
	for _, s := range states {
		if s.tracked && !s.matches {
			s.cursor.Removed(id)
			event.Removed++
			i.metrics.callback(collection, callbackRemoved)
		}
	}
	merged, ok := version.Commit(ticket, doc.Project(ticket.Fields.Slice()))
	if !ok {
		i.logger.Debug(ctx, "refresh superseded by a later update", map[string]any{
			"collection": collection,
			"id":         id,
			"version":    ticket.Version,
		})
		event.Outcome = OutcomeSuperseded
		return event
	}
	event.Fields = merged
	for _, s := range states {
		if s.tracked && s.matches {
			s.cursor.Changed(id, lo.Assign(merged))
			event.Changed++
			i.metrics.callback(collection, callbackChanged)
		}
	}
	return event
}

// Wait blocks until every scheduled update refresh has completed
func (i *Invalidator) Wait() {
	i.inflight.Wait()
}

// Close stops accepting update invalidations, waits for the scheduled refreshes to complete and delivers
// the queued events. It then ends every subscription and closes the machine if the invalidator created it.
func (i *Invalidator) Close(ctx context.Context) error {
	i.lifecycle.Lock()
	i.closed = true
	i.lifecycle.Unlock()
	done := make(chan struct{})
	go func() {
		i.inflight.Wait()
		i.events.close()
		<-i.streamed
		close(done)
	}()
	select {
	case <-done:
		i.shutdown.Do(func() {
			i.cancel()
			if i.ownsMachine {
				i.machine.Close()
			}
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
