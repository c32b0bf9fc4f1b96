// Package memory provides an in-memory state backend for testing.
package memory

import (
	"context"

	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/internal/tree/physical/badger"
)

func init() {
	physical.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() map[string]string {
	return map[string]string{
		badger.KeyInMemory: "true",
	}
}

// NewFactory creates a new in-memory backend using BadgerDB's in-memory mode.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	config[badger.KeyInMemory] = "true"
	return badger.NewFactory(ctx, config)
}
