package livequery

import (
	"sync"
	"sync/atomic"

	"github.com/autom8ter/livequery/internal/safe"
)

// Ticket guards a single in-flight refresh of a document
type Ticket struct {
	// Version is unique per document and strictly increasing
	Version uint64 `json:"version"`
	// Fields is the set of fields the refresh must project. It includes the fields of earlier attempts
	// that were superseded or aborted before they could commit.
	Fields Fields `json:"fields"`
}

// VersionManager provides optimistic concurrency control over refreshes of a single document.
// Only the most recently issued ticket may commit.
type VersionManager struct {
	mu      sync.Mutex
	issued  uint64
	current uint64
	pending Fields
	values  map[string]any
}

// NewVersionManager creates an empty VersionManager
func NewVersionManager() *VersionManager {
	return &VersionManager{
		pending: NewFields(),
		values:  map[string]any{},
	}
}

// Begin issues a new ticket that supersedes every ticket issued before it
func (v *VersionManager) Begin(fields Fields) Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issued++
	v.current = v.issued
	v.pending = v.pending.Union(fields)
	return Ticket{
		Version: v.issued,
		Fields:  v.pending.Clone(),
	}
}

// Abort discards the ticket. Aborting a ticket that is no longer current is a no-op.
func (v *VersionManager) Abort(ticket Ticket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != 0 && v.current == ticket.Version {
		v.current = 0
	}
}

// Commit merges the projected field values into the last known state if the ticket is still current.
// It returns the merged values of the ticket's fields, with a nil value for each field missing from the projection.
// It returns false, and leaves the state untouched, if the ticket has been superseded, aborted or already committed.
func (v *VersionManager) Commit(ticket Ticket, projection map[string]any) (map[string]any, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == 0 || v.current != ticket.Version {
		return nil, false
	}
	v.current = 0
	merged := make(map[string]any, ticket.Fields.Len())
	for field := range ticket.Fields {
		val, ok := projection[field]
		if ok {
			v.values[field] = val
		} else {
			delete(v.values, field)
		}
		merged[field] = val
	}
	v.pending = v.pending.Without(ticket.Fields)
	return merged, true
}

// Current returns the version of the current ticket, if any
func (v *VersionManager) Current() (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.current != 0
}

// Values returns a copy of the last committed field values
func (v *VersionManager) Values() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	values := make(map[string]any, len(v.values))
	for k, val := range v.values {
		values[k] = val
	}
	return values
}

// Versions holds the version managers of a collection keyed by document id
type Versions struct {
	mu       sync.Mutex
	managers *safe.Map[*VersionManager]
	// floor is the highest version issued by a released manager; new managers start above it
	floor uint64
}

// NewVersions creates an empty Versions registry
func NewVersions() *Versions {
	return &Versions{managers: safe.NewMap[*VersionManager](nil)}
}

// Get returns the version manager of the document, creating it on first use
func (v *Versions) Get(id string) *VersionManager {
	return v.managers.GetOrCreate(id, func() *VersionManager {
		manager := NewVersionManager()
		manager.issued = atomic.LoadUint64(&v.floor)
		return manager
	})
}

// Begin issues a ticket on the document's version manager, creating it on first use
func (v *Versions) Begin(id string, fields Fields) (*VersionManager, Ticket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	manager := v.Get(id)
	return manager, manager.Begin(fields)
}

// Release drops the version state of the document unless a refresh of it is in flight.
// It returns true if the state was dropped.
func (v *Versions) Release(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	manager, ok := v.managers.Lookup(id)
	if !ok {
		return false
	}
	if _, inflight := manager.Current(); inflight {
		return false
	}
	manager.mu.Lock()
	if manager.issued > atomic.LoadUint64(&v.floor) {
		atomic.StoreUint64(&v.floor, manager.issued)
	}
	manager.mu.Unlock()
	v.managers.Del(id)
	return true
}

// Len returns the number of tracked documents
func (v *Versions) Len() int {
	return v.managers.Len()
}
