package livequery

import (
	"context"

	"github.com/autom8ter/livequery/errors"
)

// Collection is a named document store handle
type Collection interface {
	// FindOne returns the document with the given id. A nil document (or an errors.NotFound error) means the document does not exist.
	FindOne(ctx context.Context, id string) (*Document, error)
	// Versions returns the collection's per document version managers
	Versions() *Versions
}

// FetchStatus is the outcome of a point lookup
type FetchStatus int

const (
	// FetchFailed means the lookup returned an error
	FetchFailed FetchStatus = iota
	// FetchNotFound means the document does not exist
	FetchNotFound
	// FetchFound means the document was returned
	FetchFound
)

// String returns the name of the status
func (s FetchStatus) String() string {
	switch s {
	case FetchFound:
		return "found"
	case FetchNotFound:
		return "notFound"
	default:
		return "failed"
	}
}

// FetchResult is the three-way result of a point lookup
type FetchResult struct {
	Status   FetchStatus
	Document *Document
	Err      error
}

// Fetch looks up the document and classifies the result
func Fetch(ctx context.Context, collection Collection, id string) FetchResult {
	doc, err := collection.FindOne(ctx, id)
	switch {
	case err != nil && errors.Is(err, errors.NotFound):
		return FetchResult{Status: FetchNotFound}
	case err != nil:
		return FetchResult{Status: FetchFailed, Err: err}
	case doc == nil:
		return FetchResult{Status: FetchNotFound}
	default:
		return FetchResult{Status: FetchFound, Document: doc}
	}
}
