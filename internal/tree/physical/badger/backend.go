// Package badger provides a BadgerDB-based state backend.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/carvexyz/tree-node/internal/storage"
	"github.com/carvexyz/tree-node/internal/tree/physical"
)

const (
	KeyPath       = "path"
	KeyInMemory   = "in_memory"
	KeySyncWrites = "sync_writes"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the badger backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:       "~/.tree/state",
		KeyInMemory:   "false",
		KeySyncWrites: "true",
	}
}

// NewFactory creates a new badger backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	inMemory, err := storage.GetBool(config, KeyInMemory, false)
	if err != nil {
		return nil, err
	}

	path := storage.GetString(config, KeyPath, "")
	if path == "" && !inMemory {
		return nil, storage.NewConfigError("badger", KeyPath, "required (unless in_memory=true)")
	}

	syncWrites, err := storage.GetBool(config, KeySyncWrites, true)
	if err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if inMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		path = storage.ExpandPath(path)
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
		}
		opts = badgerdb.DefaultOptions(path)
	}
	opts.SyncWrites = syncWrites
	opts.Logger = nil // Suppress badger's internal logging

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	return &Backend{db: db}, nil
}

// Backend is a BadgerDB implementation of physical.Backend.
type Backend struct {
	db     *badgerdb.DB
	closed atomic.Bool
}

func recordKey(namespace, key string) []byte {
	return []byte(namespace + "/" + key)
}

// Put stores a record.
func (b *Backend) Put(_ context.Context, namespace, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(recordKey(namespace, key), value)
	})
	if err != nil {
		return fmt.Errorf("badger: put: %w", err)
	}
	return nil
}

// PutBatch applies all writes in a single transaction.
func (b *Backend) PutBatch(_ context.Context, writes []physical.Write) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		for _, w := range writes {
			k := recordKey(w.Namespace, w.Key)
			if w.Value == nil {
				if err := txn.Delete(k); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(k, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: put batch: %w", err)
	}
	return nil
}

// Get retrieves a record.
func (b *Backend) Get(_ context.Context, namespace, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var val []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(recordKey(namespace, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, physical.ErrNotFound
		}
		return nil, fmt.Errorf("badger: get: %w", err)
	}
	return val, nil
}

// Delete removes a record. Idempotent.
func (b *Backend) Delete(_ context.Context, namespace, key string) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(recordKey(namespace, key))
	})
	if err != nil {
		return fmt.Errorf("badger: delete: %w", err)
	}
	return nil
}

// List returns all records in a namespace.
func (b *Backend) List(_ context.Context, namespace string) (map[string][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	prefix := []byte(namespace + "/")
	out := make(map[string][]byte)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key()[len(prefix):])] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
