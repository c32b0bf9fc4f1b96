package tree_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/carvexyz/tree-node/internal/events"
	"github.com/carvexyz/tree-node/internal/tree"
	"github.com/carvexyz/tree-node/internal/tree/physical"
	badgerbackend "github.com/carvexyz/tree-node/internal/tree/physical/badger"
	_ "github.com/carvexyz/tree-node/internal/tree/physical/memory"
	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/identity"
	"github.com/carvexyz/tree-node/pkg/identity/ed25519"
	"github.com/carvexyz/tree-node/pkg/request"
)

func newKeypair(t *testing.T) *ed25519.Keypair {
	t.Helper()
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return kp
}

func principalOf(kp *ed25519.Keypair) identity.Principal {
	return identity.PrincipalOf(kp.PublicKey())
}

// newStore opens a store on an in-memory backend with kp's principal as
// root officiant.
func newStore(t *testing.T, root identity.Principal) *tree.Store {
	t.Helper()
	backend, err := physical.New(context.Background(), "memory", nil)
	if err != nil {
		t.Fatalf("physical.New: %v", err)
	}
	s, err := tree.Open(context.Background(), tree.Options{
		Backend: backend,
		Root:    root,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testID(n byte) carving.ID {
	var id carving.ID
	id[0] = n
	id[31] = n
	return id
}

func testContent(msg string) carving.Content {
	return carving.Content{To: "ada", From: "grace", Message: msg}
}

func TestRootAppointedOnOpen(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))

	if !s.IsOfficiant(principalOf(kp)) {
		t.Error("root is not an officiant")
	}
	if got := s.Officiants(); len(got) != 1 {
		t.Errorf("Officiants() = %v, want exactly the root", got)
	}
}

func TestAppointAndDismiss(t *testing.T) {
	root := principalOf(newKeypair(t))
	other := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()

	// A stranger cannot appoint.
	if err := s.Appoint(ctx, other, other); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Appoint by stranger = %v, want ErrNotOfficiant", err)
	}

	if err := s.Appoint(ctx, root, other); err != nil {
		t.Fatalf("Appoint: %v", err)
	}
	if !s.IsOfficiant(other) {
		t.Error("appointed principal is not an officiant")
	}

	// The new officiant has full capability, including dismissal.
	if err := s.Dismiss(ctx, other, root); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if s.IsOfficiant(root) {
		t.Error("dismissed principal is still an officiant")
	}

	// And the dismissed root lost everything.
	if err := s.Carve(ctx, tree.Direct(root), testID(1), testContent("hi")); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Carve after dismissal = %v, want ErrNotOfficiant", err)
	}
}

func TestCannotDismissSelf(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)

	if err := s.Dismiss(context.Background(), root, root); !errors.Is(err, tree.ErrCannotDismissSelf) {
		t.Errorf("Dismiss self = %v, want ErrCannotDismissSelf", err)
	}
	if !s.IsOfficiant(root) {
		t.Error("failed self-dismissal still removed the officiant")
	}
}

func TestDismissIsIdempotent(t *testing.T) {
	root := principalOf(newKeypair(t))
	other := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()

	// Revoking a principal that was never appointed succeeds as a no-op,
	// mirroring appoint's no-op on an existing officiant.
	stranger := principalOf(newKeypair(t))
	if err := s.Dismiss(ctx, root, stranger); err != nil {
		t.Errorf("Dismiss of non-member = %v, want nil", err)
	}

	if err := s.Appoint(ctx, root, other); err != nil {
		t.Fatalf("Appoint: %v", err)
	}
	if err := s.Dismiss(ctx, root, other); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if err := s.Dismiss(ctx, root, other); err != nil {
		t.Errorf("second Dismiss = %v, want nil", err)
	}
	if s.IsOfficiant(other) {
		t.Error("dismissed principal is still an officiant")
	}

	// A stranger still cannot dismiss anyone.
	if err := s.Dismiss(ctx, stranger, root); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Dismiss by stranger = %v, want ErrNotOfficiant", err)
	}
}

func TestCarveAndRead(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if _, err := s.Read(ctx, id); !errors.Is(err, tree.ErrCarvingNotFound) {
		t.Errorf("Read before carve = %v, want ErrCarvingNotFound", err)
	}

	content := testContent("for the first computer")
	if err := s.Carve(ctx, tree.Direct(root), id, content); err != nil {
		t.Fatalf("Carve: %v", err)
	}

	got, err := s.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.To != "ada" || got.From != "grace" || got.Message != content.Message {
		t.Errorf("Read = %+v, want %+v", got, content)
	}
	if st := s.Status(id); st != carving.StatusCreated {
		t.Errorf("Status = %s, want created", st)
	}
}

func TestCarveEmptyMessage(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)

	err := s.Carve(context.Background(), tree.Direct(root), testID(1), testContent(""))
	if !errors.Is(err, tree.ErrMessageCannotBeEmpty) {
		t.Errorf("Carve empty = %v, want ErrMessageCannotBeEmpty", err)
	}
}

func TestCarveTwice(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if err := s.Carve(ctx, tree.Direct(root), id, testContent("once")); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	if err := s.Carve(ctx, tree.Direct(root), id, testContent("twice")); !errors.Is(err, tree.ErrCarvingExists) {
		t.Errorf("second Carve = %v, want ErrCarvingExists", err)
	}
}

func TestScratchIsTerminal(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if err := s.Carve(ctx, tree.Direct(root), id, testContent("gone soon")); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	if err := s.Scratch(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Scratch: %v", err)
	}

	if _, err := s.Read(ctx, id); !errors.Is(err, tree.ErrCarvingNotFound) {
		t.Errorf("Read after scratch = %v, want ErrCarvingNotFound", err)
	}
	// The identifier is burned forever.
	if err := s.Carve(ctx, tree.Direct(root), id, testContent("again")); !errors.Is(err, tree.ErrCarvingExists) {
		t.Errorf("Carve after scratch = %v, want ErrCarvingExists", err)
	}
	// And scratching again finds nothing.
	if err := s.Scratch(ctx, tree.Direct(root), id); !errors.Is(err, tree.ErrCarvingNotFound) {
		t.Errorf("second Scratch = %v, want ErrCarvingNotFound", err)
	}
}

func TestPublicizeAndHide(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if err := s.Publicize(ctx, tree.Direct(root), id); !errors.Is(err, tree.ErrCarvingNotFound) {
		t.Errorf("Publicize unknown = %v, want ErrCarvingNotFound", err)
	}

	if err := s.Carve(ctx, tree.Direct(root), id, testContent("shown")); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	if err := s.Hide(ctx, tree.Direct(root), id); !errors.Is(err, tree.ErrCarvingNotInGallery) {
		t.Errorf("Hide unpublished = %v, want ErrCarvingNotInGallery", err)
	}

	if err := s.Publicize(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Publicize: %v", err)
	}
	if err := s.Publicize(ctx, tree.Direct(root), id); !errors.Is(err, tree.ErrCarvingAlreadyPublished) {
		t.Errorf("second Publicize = %v, want ErrCarvingAlreadyPublished", err)
	}

	gallery := s.Peruse(ctx)
	if len(gallery) != 1 || gallery[0].ID != id {
		t.Fatalf("Peruse = %v, want the published carving", gallery)
	}
	if gallery[0].Status != carving.StatusPublished {
		t.Errorf("gallery status = %s, want published", gallery[0].Status)
	}

	if err := s.Hide(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if got := s.Peruse(ctx); len(got) != 0 {
		t.Errorf("Peruse after hide = %v, want empty", got)
	}
	// Hidden content is still readable.
	if _, err := s.Read(ctx, id); err != nil {
		t.Errorf("Read after hide: %v", err)
	}
	if st := s.Status(id); st != carving.StatusCreated {
		t.Errorf("Status after hide = %s, want created", st)
	}
}

func TestScratchPublishedLeavesGallery(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if err := s.Carve(ctx, tree.Direct(root), id, testContent("brief")); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	if err := s.Publicize(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Publicize: %v", err)
	}
	if err := s.Scratch(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Scratch: %v", err)
	}
	if got := s.Peruse(ctx); len(got) != 0 {
		t.Errorf("Peruse after scratch = %v, want empty", got)
	}
}

func TestGallerySwapRemoval(t *testing.T) {
	root := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()

	ids := []carving.ID{testID(1), testID(2), testID(3)}
	for i, id := range ids {
		if err := s.Carve(ctx, tree.Direct(root), id, testContent(fmt.Sprintf("number %d", i))); err != nil {
			t.Fatalf("Carve %d: %v", i, err)
		}
		if err := s.Publicize(ctx, tree.Direct(root), id); err != nil {
			t.Fatalf("Publicize %d: %v", i, err)
		}
	}

	// Removing the first entry swaps in the last.
	if err := s.Hide(ctx, tree.Direct(root), ids[0]); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	gallery := s.Peruse(ctx)
	if len(gallery) != 2 {
		t.Fatalf("gallery size = %d, want 2", len(gallery))
	}
	if gallery[0].ID != ids[2] || gallery[1].ID != ids[1] {
		t.Errorf("gallery order = [%s %s], want swap-with-last", gallery[0].ID.Hex(), gallery[1].ID.Hex())
	}
}

func signedRequest(t *testing.T, kp *ed25519.Keypair, req *request.Request, nonce uint64) *request.SignedRequest {
	t.Helper()
	sr, err := request.NewSignedRequest(req, nonce, kp)
	if err != nil {
		t.Fatalf("NewSignedRequest: %v", err)
	}
	return sr
}

func TestRelayedCarve(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	ctx := context.Background()
	id := testID(1)

	req := &request.Request{
		Kind:    request.KindCarve,
		ID:      id,
		To:      "ada",
		From:    "grace",
		Message: "via relay",
	}
	sr := signedRequest(t, kp, req, s.Nonce(id))

	rec := s.Submit(ctx, sr)
	if !rec.OK {
		t.Fatalf("Submit failed: %s", rec.Error)
	}
	if rec.Correlation != sr.Correlation {
		t.Errorf("receipt correlation = %s, want %s", rec.Correlation, sr.Correlation)
	}

	got, err := s.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Message != "via relay" {
		t.Errorf("Message = %q, want %q", got.Message, "via relay")
	}
	if n := s.Nonce(id); n != 1 {
		t.Errorf("Nonce after relayed carve = %d, want 1", n)
	}
}

func TestRelayReplayRejected(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	ctx := context.Background()
	id := testID(1)

	req := &request.Request{Kind: request.KindCarve, ID: id, Message: "once only"}
	sr := signedRequest(t, kp, req, 0)

	if rec := s.Submit(ctx, sr); !rec.OK {
		t.Fatalf("first Submit failed: %s", rec.Error)
	}
	rec := s.Submit(ctx, sr)
	if rec.OK {
		t.Fatal("replayed submission accepted")
	}
	if rec.Error != tree.ErrSignatureAlreadyUsed.Error() {
		t.Errorf("replay error = %q, want %q", rec.Error, tree.ErrSignatureAlreadyUsed)
	}
}

func TestRelayCrossOperationReplayRejected(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	ctx := context.Background()
	id := testID(1)

	carve := signedRequest(t, kp, &request.Request{Kind: request.KindCarve, ID: id, Message: "m"}, 0)
	if rec := s.Submit(ctx, carve); !rec.OK {
		t.Fatalf("carve: %s", rec.Error)
	}
	publicize := signedRequest(t, kp, &request.Request{Kind: request.KindPublicize, ID: id}, 1)
	if rec := s.Submit(ctx, publicize); !rec.OK {
		t.Fatalf("publicize: %s", rec.Error)
	}

	// The consumed publicize proof cannot authorize anything else.
	hide := &request.SignedRequest{
		Correlation: request.NewCorrelation(),
		Request:     request.Request{Kind: request.KindHide, ID: id},
		Proof:       publicize.Proof,
	}
	rec := s.Submit(ctx, hide)
	if rec.OK {
		t.Fatal("proof reused across operations was accepted")
	}
}

func TestRelayedTamperedContent(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	id := testID(1)

	sr := signedRequest(t, kp, &request.Request{Kind: request.KindCarve, ID: id, Message: "signed words"}, 0)
	sr.Request.Message = "different words"

	rec := s.Submit(context.Background(), sr)
	if rec.OK {
		t.Fatal("tampered request accepted")
	}
	if rec.Error != tree.ErrInvalidSignature.Error() {
		t.Errorf("error = %q, want %q", rec.Error, tree.ErrInvalidSignature)
	}
}

func TestRelayedNonOfficiantSigner(t *testing.T) {
	root := newKeypair(t)
	stranger := newKeypair(t)
	s := newStore(t, principalOf(root))
	id := testID(1)

	sr := signedRequest(t, stranger, &request.Request{Kind: request.KindCarve, ID: id, Message: "nope"}, 0)
	rec := s.Submit(context.Background(), sr)
	if rec.OK {
		t.Fatal("request signed by stranger accepted")
	}
	if rec.Error != tree.ErrInvalidSignature.Error() {
		t.Errorf("error = %q, want %q", rec.Error, tree.ErrInvalidSignature)
	}
}

func TestRelayedStaleNonce(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	id := testID(1)

	sr := signedRequest(t, kp, &request.Request{Kind: request.KindCarve, ID: id, Message: "m"}, 5)
	rec := s.Submit(context.Background(), sr)
	if rec.OK {
		t.Fatal("request at wrong nonce accepted")
	}
	if rec.Error != tree.ErrSignatureAlreadyUsed.Error() {
		t.Errorf("error = %q, want %q", rec.Error, tree.ErrSignatureAlreadyUsed)
	}
}

func TestFailedRelayDoesNotConsumeNonce(t *testing.T) {
	kp := newKeypair(t)
	s := newStore(t, principalOf(kp))
	ctx := context.Background()
	id := testID(1)

	// Publicize before carve fails on state, after authorization passed.
	sr := signedRequest(t, kp, &request.Request{Kind: request.KindPublicize, ID: id}, 0)
	if rec := s.Submit(ctx, sr); rec.OK {
		t.Fatal("publicize of unknown carving accepted")
	}
	if n := s.Nonce(id); n != 0 {
		t.Errorf("Nonce after failed operation = %d, want 0", n)
	}

	// The same proof still works once the state error is fixed elsewhere.
	carve := signedRequest(t, kp, &request.Request{Kind: request.KindCarve, ID: id, Message: "m"}, 0)
	if rec := s.Submit(ctx, carve); !rec.OK {
		t.Fatalf("carve after failed publicize: %s", rec.Error)
	}
}

func TestDirectModeRequiresOfficiant(t *testing.T) {
	root := principalOf(newKeypair(t))
	stranger := principalOf(newKeypair(t))
	s := newStore(t, root)
	ctx := context.Background()
	id := testID(1)

	if err := s.Carve(ctx, tree.Direct(stranger), id, testContent("m")); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Carve = %v, want ErrNotOfficiant", err)
	}
	if err := s.Scratch(ctx, tree.Direct(stranger), id); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Scratch = %v, want ErrNotOfficiant", err)
	}
	if err := s.Publicize(ctx, tree.Direct(stranger), id); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Publicize = %v, want ErrNotOfficiant", err)
	}
	if err := s.Hide(ctx, tree.Direct(stranger), id); !errors.Is(err, tree.ErrNotOfficiant) {
		t.Errorf("Hide = %v, want ErrNotOfficiant", err)
	}
}

func TestEventsEmitted(t *testing.T) {
	root := principalOf(newKeypair(t))
	backend, err := physical.New(context.Background(), "memory", nil)
	if err != nil {
		t.Fatalf("physical.New: %v", err)
	}

	var got []events.Kind
	s, err := tree.Open(context.Background(), tree.Options{
		Backend: backend,
		Root:    root,
		Emitter: events.EmitterFunc(func(_ context.Context, ev *events.Event) error {
			got = append(got, ev.Kind)
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	id := testID(1)
	if err := s.Carve(ctx, tree.Direct(root), id, testContent("m")); err != nil {
		t.Fatalf("Carve: %v", err)
	}
	if err := s.Publicize(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Publicize: %v", err)
	}
	if err := s.Hide(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if err := s.Scratch(ctx, tree.Direct(root), id); err != nil {
		t.Fatalf("Scratch: %v", err)
	}

	want := []events.Kind{events.KindStored, events.KindPublicized, events.KindHidden, events.KindDeleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReopenRestoresState(t *testing.T) {
	root := principalOf(newKeypair(t))
	dir := t.TempDir()
	ctx := context.Background()

	open := func() *tree.Store {
		backend, err := badgerbackend.NewFactory(ctx, map[string]string{
			badgerbackend.KeyPath: dir,
		})
		if err != nil {
			t.Fatalf("NewFactory: %v", err)
		}
		s, err := tree.Open(ctx, tree.Options{Backend: backend, Root: root})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	}

	s := open()
	published, hidden, scratched := testID(1), testID(2), testID(3)
	for i, id := range []carving.ID{published, hidden, scratched} {
		if err := s.Carve(ctx, tree.Direct(root), id, testContent(fmt.Sprintf("number %d", i))); err != nil {
			t.Fatalf("Carve: %v", err)
		}
	}
	if err := s.Publicize(ctx, tree.Direct(root), published); err != nil {
		t.Fatalf("Publicize: %v", err)
	}
	if err := s.Scratch(ctx, tree.Direct(root), scratched); err != nil {
		t.Fatalf("Scratch: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = open()
	defer s.Close()

	gallery := s.Peruse(ctx)
	if len(gallery) != 1 || gallery[0].ID != published {
		t.Fatalf("gallery after reopen = %v, want the published carving", gallery)
	}
	if _, err := s.Read(ctx, hidden); err != nil {
		t.Errorf("Read hidden after reopen: %v", err)
	}
	if _, err := s.Read(ctx, scratched); !errors.Is(err, tree.ErrCarvingNotFound) {
		t.Errorf("Read scratched after reopen = %v, want ErrCarvingNotFound", err)
	}
	if err := s.Carve(ctx, tree.Direct(root), scratched, testContent("again")); !errors.Is(err, tree.ErrCarvingExists) {
		t.Errorf("Carve scratched after reopen = %v, want ErrCarvingExists", err)
	}
	if !s.IsOfficiant(root) {
		t.Error("root lost officiant capability across reopen")
	}
}

func TestNonceSurvivesReopen(t *testing.T) {
	kp := newKeypair(t)
	root := principalOf(kp)
	dir := t.TempDir()
	ctx := context.Background()

	open := func() *tree.Store {
		backend, err := badgerbackend.NewFactory(ctx, map[string]string{
			badgerbackend.KeyPath: dir,
		})
		if err != nil {
			t.Fatalf("NewFactory: %v", err)
		}
		s, err := tree.Open(ctx, tree.Options{Backend: backend, Root: root})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	}

	s := open()
	id := testID(7)
	sr := signedRequest(t, kp, &request.Request{Kind: request.KindCarve, ID: id, Message: "m"}, 0)
	if rec := s.Submit(ctx, sr); !rec.OK {
		t.Fatalf("Submit: %s", rec.Error)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = open()
	defer s.Close()
	if n := s.Nonce(id); n != 1 {
		t.Errorf("Nonce after reopen = %d, want 1", n)
	}
	// The old proof stays dead after the restart.
	if rec := s.Submit(ctx, sr); rec.OK {
		t.Error("consumed proof accepted after reopen")
	}
}
