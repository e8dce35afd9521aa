// Package store is a document store over a kv.DB whose writes keep the live queries of a livequery.Invalidator up to date.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/autom8ter/livequery"
	"github.com/autom8ter/livequery/errors"
	"github.com/autom8ter/livequery/kv"
	"github.com/segmentio/ksuid"
)

// Collection is a named set of documents stored under docs/<name>/<id>.
// It implements livequery.Collection and reports every committed write to the invalidator.
type Collection struct {
	name     string
	db       kv.DB
	inv      *livequery.Invalidator
	versions *livequery.Versions
	// writes serializes read-modify-write cycles
	writes sync.Mutex
}

// Open creates a handle to the named collection and registers it with the invalidator
func Open(name string, db kv.DB, inv *livequery.Invalidator) (*Collection, error) {
	if name == "" {
		return nil, errors.New(errors.Validation, "empty collection name")
	}
	c := &Collection{
		name:     name,
		db:       db,
		inv:      inv,
		versions: livequery.NewVersions(),
	}
	inv.RegisterCollection(name, c)
	return c, nil
}

// Name returns the collection's name
func (c *Collection) Name() string {
	return c.name
}

// DB returns the kv store backing the collection
func (c *Collection) DB() kv.DB {
	return c.db
}

// Versions satisfies the livequery.Collection interface
func (c *Collection) Versions() *livequery.Versions {
	return c.versions
}

func (c *Collection) prefix() []byte {
	return []byte(fmt.Sprintf("docs/%s/", c.name))
}

func (c *Collection) key(id string) []byte {
	return append(c.prefix(), []byte(id)...)
}

// FindOne returns the document with the given id, or nil if it does not exist
func (c *Collection) FindOne(ctx context.Context, id string) (*livequery.Document, error) {
	var doc *livequery.Document
	if err := c.db.Tx(ctx, false, func(ctx context.Context, tx kv.Tx) error {
		var err error
		doc, err = c.get(ctx, tx, id)
		return err
	}); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Collection) get(ctx context.Context, tx kv.Tx, id string) (*livequery.Document, error) {
	bits, err := tx.Get(ctx, c.key(id))
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to get %s/%s", c.name, id)
	}
	if bits == nil {
		return nil, nil
	}
	return livequery.NewDocumentFromBytes(bits)
}

// FindOption configures a Find
type FindOption func(*findOptions)

type findOptions struct {
	descending bool
	limit      int
}

// Descending returns documents in reverse id order. Generated ids are ksuids, so this lists the newest inserts first.
func Descending() FindOption {
	return func(o *findOptions) {
		o.descending = true
	}
}

// Limit stops the query after n matching documents. Zero means no limit.
func Limit(n int) FindOption {
	return func(o *findOptions) {
		o.limit = n
	}
}

// Find returns the documents matching the selector in id order
func (c *Collection) Find(ctx context.Context, selector livequery.Selector, opts ...FindOption) (livequery.Documents, error) {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	var docs livequery.Documents
	if err := c.db.Tx(ctx, false, func(ctx context.Context, tx kv.Tx) error {
		iter, err := tx.NewIterator(kv.IterOpts{Prefix: c.prefix(), Reverse: o.descending})
		if err != nil {
			return err
		}
		defer iter.Close()
		for ; iter.Valid(); iter.Next() {
			bits, err := iter.Item().Value()
			if err != nil {
				return errors.Wrap(err, errors.Internal, "failed to read %s", string(iter.Item().Key()))
			}
			doc, err := livequery.NewDocumentFromBytes(bits)
			if err != nil {
				return err
			}
			if !selector.Matches(doc) {
				continue
			}
			docs = append(docs, doc)
			if o.limit > 0 && len(docs) == o.limit {
				return nil
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return docs, nil
}

// Insert stores a new document and returns its id. A ksuid is assigned when the document has none.
func (c *Collection) Insert(ctx context.Context, doc *livequery.Document) (string, error) {
	docs, err := c.InsertMany(ctx, livequery.Documents{doc})
	if err != nil {
		return "", err
	}
	return docs.IDs()[0], nil
}

// InsertMany stores new documents in a single transaction
func (c *Collection) InsertMany(ctx context.Context, docs livequery.Documents) (livequery.Documents, error) {
	inserted := make(livequery.Documents, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || !doc.Valid() {
			return nil, errors.New(errors.Validation, "invalid document")
		}
		doc = doc.Clone()
		if doc.ID() == "" {
			if err := doc.Set(livequery.IDField, ksuid.New().String()); err != nil {
				return nil, err
			}
		}
		inserted = append(inserted, doc)
	}
	c.writes.Lock()
	defer c.writes.Unlock()
	if err := c.db.Tx(ctx, true, func(ctx context.Context, tx kv.Tx) error {
		for _, doc := range inserted {
			existing, err := c.get(ctx, tx, doc.ID())
			if err != nil {
				return err
			}
			if existing != nil {
				return errors.New(errors.Validation, "document %s/%s already exists", c.name, doc.ID())
			}
			if err := tx.Set(ctx, c.key(doc.ID()), doc.Bytes()); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to insert %s/%s", c.name, doc.ID())
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	for _, doc := range inserted {
		c.inv.InvalidateInsert(ctx, c.name, doc)
	}
	return inserted, nil
}

// Load bulk loads documents with a write batch, replacing any stored document with the same id.
// Cursors see a replaced document as removed and then inserted.
func (c *Collection) Load(ctx context.Context, docs livequery.Documents) error {
	batch := c.db.Batch()
	for _, doc := range docs {
		if doc == nil || doc.ID() == "" {
			return errors.New(errors.Validation, "bulk loaded documents must have an id")
		}
		if err := batch.Set(ctx, c.key(doc.ID()), doc.Bytes()); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to load %s/%s", c.name, doc.ID())
		}
	}
	c.writes.Lock()
	defer c.writes.Unlock()
	replaced := map[string]bool{}
	if err := c.db.Tx(ctx, false, func(ctx context.Context, tx kv.Tx) error {
		for _, doc := range docs {
			existing, err := c.get(ctx, tx, doc.ID())
			if err != nil {
				return err
			}
			replaced[doc.ID()] = existing != nil
		}
		return nil
	}); err != nil {
		return err
	}
	if err := batch.Flush(ctx); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to load %s", c.name)
	}
	for _, doc := range docs {
		if replaced[doc.ID()] {
			c.inv.InvalidateRemove(ctx, c.name, doc.ID())
		}
		// a later document with the same id replaces this one
		replaced[doc.ID()] = true
		c.inv.InvalidateInsert(ctx, c.name, doc)
	}
	return nil
}

// Update applies the modifier to the stored document
func (c *Collection) Update(ctx context.Context, id string, modifier livequery.Modifier) error {
	_, err := c.update(ctx, id, modifier, false)
	return err
}

// Upsert applies the modifier to the stored document, inserting it when it does not exist.
// It returns true if the document was inserted.
func (c *Collection) Upsert(ctx context.Context, id string, modifier livequery.Modifier) (bool, error) {
	return c.update(ctx, id, modifier, true)
}

func (c *Collection) update(ctx context.Context, id string, modifier livequery.Modifier, upsert bool) (bool, error) {
	if len(modifier) == 0 {
		return false, errors.New(errors.Validation, "empty modifier")
	}
	var (
		inserted bool
		after    *livequery.Document
	)
	c.writes.Lock()
	defer c.writes.Unlock()
	if err := c.db.Tx(ctx, true, func(ctx context.Context, tx kv.Tx) error {
		doc, err := c.get(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case doc != nil:
			if err := Apply(doc, modifier); err != nil {
				return err
			}
		case upsert:
			inserted = true
			doc = livequery.NewDocument()
			if err := doc.Set(livequery.IDField, id); err != nil {
				return err
			}
			if err := ApplyInsert(doc, modifier); err != nil {
				return err
			}
		default:
			return errors.New(errors.NotFound, "document %s/%s does not exist", c.name, id)
		}
		after = doc
		return tx.Set(ctx, c.key(id), doc.Bytes())
	}); err != nil {
		return false, err
	}
	if inserted {
		c.inv.InvalidateInsert(ctx, c.name, after)
		return true, nil
	}
	c.inv.InvalidateUpdate(ctx, c.name, id, modifier)
	return false, nil
}

// Remove deletes the document with the given id
func (c *Collection) Remove(ctx context.Context, id string) error {
	c.writes.Lock()
	defer c.writes.Unlock()
	if err := c.db.Tx(ctx, true, func(ctx context.Context, tx kv.Tx) error {
		existing, err := c.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.New(errors.NotFound, "document %s/%s does not exist", c.name, id)
		}
		return tx.Delete(ctx, c.key(id))
	}); err != nil {
		return err
	}
	c.inv.InvalidateRemove(ctx, c.name, id)
	return nil
}

// Drop removes every document in the collection
func (c *Collection) Drop(ctx context.Context) error {
	c.writes.Lock()
	defer c.writes.Unlock()
	docs, err := c.Find(ctx, nil)
	if err != nil {
		return err
	}
	if err := c.db.DropPrefix(ctx, c.prefix()); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to drop %s", c.name)
	}
	for _, id := range docs.IDs() {
		c.inv.InvalidateRemove(ctx, c.name, id)
	}
	return nil
}
