package livequery

import (
	"sync"
)

// Cursor is a live query registration. The invalidator calls into cursors synchronously and never owns them:
// cursors are added and removed by whoever created them. Implementations must be comparable (usually a pointer)
// since registration is by reference.
type Cursor interface {
	// Matches returns true if the document belongs to the cursor's result set
	Matches(doc *Document) bool
	// Tracks returns true if the document is currently part of the cursor's result set
	Tracks(id string) bool
	// Added is called when a document enters the result set
	Added(doc *Document)
	// Removed is called when a document leaves the result set
	Removed(id string)
	// Changed is called with the changed top level fields of a document in the result set.
	// A nil value marks a field that no longer exists.
	Changed(id string, fields map[string]any)
}

// ObserveCallbacks receive the notifications of a LiveCursor. Nil callbacks are skipped.
type ObserveCallbacks struct {
	Added   func(doc *Document)
	Removed func(id string)
	Changed func(id string, fields map[string]any)
}

// LiveCursor is a Cursor that keeps track of its result set membership and forwards notifications to callbacks
type LiveCursor struct {
	mu        sync.RWMutex
	selector  Selector
	ids       map[string]struct{}
	callbacks ObserveCallbacks
}

// NewCursor creates a LiveCursor with an empty result set
func NewCursor(selector Selector, callbacks ObserveCallbacks) *LiveCursor {
	return &LiveCursor{
		selector:  selector,
		ids:       map[string]struct{}{},
		callbacks: callbacks,
	}
}

// Seed loads the documents matching the selector into the result set, calling Added for each of them
func (c *LiveCursor) Seed(docs Documents) {
	for _, doc := range docs {
		if c.Matches(doc) {
			c.Added(doc)
		}
	}
}

// Selector returns the cursor's selector
func (c *LiveCursor) Selector() Selector {
	return c.selector
}

// Matches satisfies the Cursor interface
func (c *LiveCursor) Matches(doc *Document) bool {
	return c.selector.Matches(doc)
}

// Tracks satisfies the Cursor interface
func (c *LiveCursor) Tracks(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[id]
	return ok
}

// IDs returns the identifiers in the result set
func (c *LiveCursor) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	return ids
}

// Added satisfies the Cursor interface
func (c *LiveCursor) Added(doc *Document) {
	c.mu.Lock()
	c.ids[doc.ID()] = struct{}{}
	c.mu.Unlock()
	if c.callbacks.Added != nil {
		c.callbacks.Added(doc)
	}
}

// Removed satisfies the Cursor interface
func (c *LiveCursor) Removed(id string) {
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
	if c.callbacks.Removed != nil {
		c.callbacks.Removed(id)
	}
}

// Changed satisfies the Cursor interface
func (c *LiveCursor) Changed(id string, fields map[string]any) {
	if c.callbacks.Changed != nil {
		c.callbacks.Changed(id, fields)
	}
}
