// Package local backs the report cache with an embedded badger store, so a
// single prradar instance keeps reports across restarts without any
// external service.
package local

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

type Cache struct {
	db *badger.DB
}

// NewLocalCache opens (or creates) a badger store under dir.
func NewLocalCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	// badger's own logging is chatty at INFO; we only surface real errors
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open local cache at %s", dir)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	var content []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return content, err
}

func (c *Cache) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), content)
		if duration > 0 {
			entry = entry.WithTTL(duration)
		}
		return txn.SetEntry(entry)
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}
