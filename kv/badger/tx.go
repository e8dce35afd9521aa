package badger

import (
	"context"

	"github.com/autom8ter/livequery/kv"
	"github.com/autom8ter/livequery/kv/kvutil"
	"github.com/dgraph-io/badger/v3"
)

type badgerTx struct {
	txn *badger.Txn
}

func (b *badgerTx) NewIterator(kopts kv.IterOpts) (kv.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.PrefetchSize = 10
	opts.Prefix = kopts.Prefix
	opts.Reverse = kopts.Reverse
	iter := b.txn.NewIterator(opts)
	switch {
	case kopts.Seek != nil:
		iter.Seek(kopts.Seek)
	case kopts.Reverse && kvutil.PrefixEnd(kopts.Prefix) != nil:
		// reverse iteration starts at the last key of the prefix
		iter.Seek(kvutil.PrefixEnd(kopts.Prefix))
	default:
		iter.Rewind()
	}
	return &badgerIterator{iter: iter, opts: kopts}, nil
}

func (b *badgerTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	i, err := b.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return i.ValueCopy(nil)
}

func (b *badgerTx) Set(ctx context.Context, key, value []byte) error {
	return b.txn.SetEntry(&badger.Entry{
		Key:   key,
		Value: value,
	})
}

func (b *badgerTx) Delete(ctx context.Context, key []byte) error {
	return b.txn.Delete(key)
}
