// Package kv defines the key value storage the document store is built on.
// Providers register themselves with kv/registry.
package kv

import "context"

// DB is a transactional key value database
type DB interface {
	// Tx runs fn inside a transaction. The transaction commits if fn returns nil and is discarded otherwise.
	Tx(ctx context.Context, isUpdate bool, fn func(ctx context.Context, tx Tx) error) error
	// Batch returns a write batch for bulk loading
	Batch() Batch
	// DropPrefix deletes every key with one of the given prefixes
	DropPrefix(ctx context.Context, prefix ...[]byte) error
	Close(ctx context.Context) error
}

// IterOpts configures an iterator
type IterOpts struct {
	Prefix  []byte `json:"prefix"`
	Seek    []byte `json:"seek"`
	Reverse bool   `json:"reverse"`
}

// Tx is a key value transaction
type Tx interface {
	// Get returns the value stored under the key, or nil if the key does not exist
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	NewIterator(opts IterOpts) (Iterator, error)
}

// Iterator iterates over keys in order
type Iterator interface {
	Seek(key []byte)
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}

// Batch is a write only batch that is applied on Flush
type Batch interface {
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Flush(ctx context.Context) error
}
