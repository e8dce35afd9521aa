package testutil

import (
	"sync"
	"time"

	"github.com/autom8ter/livequery"
	"github.com/brianvoe/gofakeit/v6"
)

// NewItemDoc creates a fake item document with the given status
func NewItemDoc(status string) *livequery.Document {
	doc, err := livequery.NewDocumentFrom(map[string]interface{}{
		"_id":      gofakeit.UUID(),
		"name":     gofakeit.BuzzWord(),
		"status":   status,
		"priority": gofakeit.IntRange(0, 10),
		"owner": map[string]interface{}{
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
		},
		"tags":      []string{gofakeit.HackerNoun(), gofakeit.HackerVerb()},
		"timestamp": gofakeit.DateRange(time.Now().Truncate(7200*time.Hour), time.Now()),
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// MustDoc creates a document from the value and panics if it is invalid
func MustDoc(value any) *livequery.Document {
	doc, err := livequery.NewDocumentFrom(value)
	if err != nil {
		panic(err)
	}
	return doc
}

// Call is a recorded cursor callback
type Call struct {
	Callback string
	ID       string
	Document *livequery.Document
	Fields   map[string]any
}

// Recorder records the callbacks it receives
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Callbacks returns observe callbacks that record into the recorder
func (r *Recorder) Callbacks() livequery.ObserveCallbacks {
	return livequery.ObserveCallbacks{
		Added: func(doc *livequery.Document) {
			r.record(Call{Callback: "added", ID: doc.ID(), Document: doc})
		},
		Removed: func(id string) {
			r.record(Call{Callback: "removed", ID: id})
		},
		Changed: func(id string, fields map[string]any) {
			r.record(Call{Callback: "changed", ID: id, Fields: fields})
		},
	}
}

func (r *Recorder) record(call Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns the recorded callbacks in the order they were received
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Filter returns the recorded calls of the given callback
func (r *Recorder) Filter(callback string) []Call {
	var calls []Call
	for _, c := range r.Calls() {
		if c.Callback == callback {
			calls = append(calls, c)
		}
	}
	return calls
}

// Reset clears the recorded calls
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
