package store

import (
	"context"
	"sync"

	"github.com/autom8ter/livequery"
)

// Handle is a running live query
type Handle struct {
	collection *Collection
	cursor     *livequery.LiveCursor
	once       sync.Once
	stopped    chan struct{}
}

// Observe runs the query and keeps it live: callbacks receive the initial result set as added documents
// followed by every change to it. The query stops when Stop is called or the context is cancelled.
func (c *Collection) Observe(ctx context.Context, selector livequery.Selector, callbacks livequery.ObserveCallbacks) (*Handle, error) {
	cursor := livequery.NewCursor(selector, callbacks)
	// holding writes keeps inserts and removes from slipping between the initial query and the registration
	c.writes.Lock()
	docs, err := c.Find(ctx, selector)
	if err != nil {
		c.writes.Unlock()
		return nil, err
	}
	cursor.Seed(docs)
	c.inv.AddCursor(c.name, cursor)
	c.writes.Unlock()

	h := &Handle{collection: c, cursor: cursor, stopped: make(chan struct{})}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.Stop()
			case <-h.stopped:
			}
		}()
	}
	return h, nil
}

// Cursor returns the live query's cursor
func (h *Handle) Cursor() *livequery.LiveCursor {
	return h.cursor
}

// Stop deregisters the live query. It is safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.collection.inv.RemoveCursor(h.collection.name, h.cursor)
		close(h.stopped)
	})
}

// Done is closed once the live query has been stopped
func (h *Handle) Done() <-chan struct{} {
	return h.stopped
}
