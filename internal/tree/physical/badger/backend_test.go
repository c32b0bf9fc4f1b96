package badger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/internal/tree/physical/badger"
)

func newBackend(t *testing.T) physical.Backend {
	t.Helper()
	b, err := badger.NewFactory(context.Background(), map[string]string{
		badger.KeyPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPutGetDelete(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, physical.NSCarving, "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := b.Get(ctx, physical.NSCarving, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want %q", got, "v1")
	}

	if err := b.Delete(ctx, physical.NSCarving, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, physical.NSCarving, "k1"); !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting an absent record is not an error.
	if err := b.Delete(ctx, physical.NSCarving, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, physical.NSCarving, "k", []byte("carving")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put(ctx, physical.NSNonce, "k", []byte("nonce")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := b.Get(ctx, physical.NSNonce, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "nonce" {
		t.Errorf("Get = %q, want %q", got, "nonce")
	}

	list, err := b.List(ctx, physical.NSCarving)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || string(list["k"]) != "carving" {
		t.Errorf("List = %v, want single carving record", list)
	}
}

func TestPutBatch(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, physical.NSOfficiant, "gone", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := b.PutBatch(ctx, []physical.Write{
		{Namespace: physical.NSCarving, Key: "a", Value: []byte("1")},
		{Namespace: physical.NSNonce, Key: "a", Value: []byte("2")},
		{Namespace: physical.NSOfficiant, Key: "gone", Value: nil},
	})
	if err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	if _, err := b.Get(ctx, physical.NSCarving, "a"); err != nil {
		t.Errorf("Get after batch: %v", err)
	}
	if _, err := b.Get(ctx, physical.NSOfficiant, "gone"); !errors.Is(err, physical.ErrNotFound) {
		t.Errorf("Get deleted = %v, want ErrNotFound", err)
	}
}

func TestClosed(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Put(ctx, physical.NSCarving, "k", []byte("v")); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Put after close = %v, want ErrClosed", err)
	}
	// Double close is safe.
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
