package keyring

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func newKeyring(t *testing.T) *Keyring {
	t.Helper()
	return New(t.TempDir())
}

func TestGenerateAndLoad(t *testing.T) {
	kr := newKeyring(t)
	ctx := context.Background()

	key, err := kr.Generate(ctx, "work")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if key.PublicKey == "" {
		t.Fatal("empty public key")
	}

	byAlias, err := kr.Load(ctx, "work")
	if err != nil {
		t.Fatalf("Load by alias: %v", err)
	}
	if byAlias.PublicKey != key.PublicKey {
		t.Errorf("loaded %s, want %s", byAlias.PublicKey, key.PublicKey)
	}

	byHex, err := kr.Load(ctx, strings.ToUpper(key.PublicKey))
	if err != nil {
		t.Fatalf("Load by hex: %v", err)
	}
	if !bytes.Equal(byHex.Keypair.Seed(), key.Keypair.Seed()) {
		t.Error("loaded keypair differs from generated")
	}
}

func TestLoadUnknown(t *testing.T) {
	kr := newKeyring(t)
	if _, err := kr.Load(context.Background(), "absent"); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("Load = %v, want ErrAliasNotFound", err)
	}
}

func TestImportDeterministic(t *testing.T) {
	kr := newKeyring(t)
	ctx := context.Background()

	seed := bytes.Repeat([]byte{7}, 32)
	key, err := kr.Import(ctx, seed, "seeded")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	// Importing the same seed again collides.
	if _, err := kr.Import(ctx, seed, "other"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second Import = %v, want ErrAlreadyExists", err)
	}

	loaded, err := kr.Load(ctx, "seeded")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Principal() != key.Principal() {
		t.Errorf("principal mismatch: %s vs %s", loaded.Principal(), key.Principal())
	}
}

func TestLoadOrGenerate(t *testing.T) {
	kr := newKeyring(t)
	ctx := context.Background()

	first, err := kr.LoadOrGenerate(ctx, DefaultAlias)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	second, err := kr.LoadOrGenerate(ctx, DefaultAlias)
	if err != nil {
		t.Fatalf("second LoadOrGenerate: %v", err)
	}
	if first.PublicKey != second.PublicKey {
		t.Error("LoadOrGenerate created a new key on second call")
	}
}

func TestDefaultKey(t *testing.T) {
	kr := newKeyring(t)
	ctx := context.Background()

	if _, err := kr.LoadDefault(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadDefault on empty keyring = %v, want ErrNotFound", err)
	}

	key, err := kr.Generate(ctx, "main")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := kr.SetDefault("main"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	got, err := kr.LoadDefault(ctx)
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if got.PublicKey != key.PublicKey {
		t.Errorf("default = %s, want %s", got.PublicKey, key.PublicKey)
	}

	if err := kr.SetDefault("nope"); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("SetDefault unknown alias = %v, want ErrAliasNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	kr := newKeyring(t)
	ctx := context.Background()

	a, err := kr.Generate(ctx, "a")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := kr.Generate(ctx, "b"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := kr.SetDefault("a"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	infos, err := kr.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d keys, want 2", len(infos))
	}
	defaults := 0
	for _, info := range infos {
		if info.IsDefault {
			defaults++
			if info.PublicKey != a.PublicKey {
				t.Errorf("default is %s, want %s", info.PublicKey, a.PublicKey)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("found %d default keys, want 1", defaults)
	}

	if err := kr.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kr.Load(ctx, "a"); err == nil {
		t.Error("deleted key still loads")
	}
	// Deleting the default cleared it.
	if _, err := kr.LoadDefault(ctx); err == nil {
		t.Error("default still resolves after deleting its key")
	}
}
