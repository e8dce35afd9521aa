package badger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
)

type badgerBatch struct {
	batch *badger.WriteBatch
}

func (b *badgerBatch) Set(ctx context.Context, key, value []byte) error {
	return b.batch.SetEntry(&badger.Entry{
		Key:   key,
		Value: value,
	})
}

func (b *badgerBatch) Delete(ctx context.Context, key []byte) error {
	return b.batch.Delete(key)
}

func (b *badgerBatch) Flush(ctx context.Context) error {
	return b.batch.Flush()
}
