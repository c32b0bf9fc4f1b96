// Package physical provides the durable storage interface for tree state.
//
// State is a small namespaced key/value set: carving records, officiant
// membership, per-carving nonces, and the gallery ordering. The store keeps
// the authoritative copy in memory and writes through; backends only need
// to survive restarts, not serve queries.
package physical

import (
	"context"
	"errors"
)

// Namespaces used by the tree store.
const (
	NSCarving   = "carving"
	NSOfficiant = "officiant"
	NSNonce     = "nonce"
	NSMeta      = "meta"
)

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// Write is one pending mutation. A nil Value deletes the record.
type Write struct {
	Namespace string
	Key       string
	Value     []byte
}

// Backend is the physical storage interface for tree state.
// All implementations must be safe for concurrent use.
type Backend interface {
	// Put stores a record, replacing any existing value.
	Put(ctx context.Context, namespace, key string, value []byte) error

	// PutBatch applies a set of writes atomically where the backend
	// supports it, and in order otherwise.
	PutBatch(ctx context.Context, writes []Write) error

	// Get retrieves a record. Returns ErrNotFound if absent.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// List returns all records in a namespace, keyed by record key.
	List(ctx context.Context, namespace string) (map[string][]byte, error)

	// Close releases backend resources.
	Close() error
}
