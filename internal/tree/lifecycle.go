package tree

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carvexyz/tree-node/internal/events"
	"github.com/carvexyz/tree-node/internal/observability"
	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/identity"
	"github.com/carvexyz/tree-node/pkg/request"
)

// Auth carries the authorization for one operation: either the identity of
// a directly authenticated principal, or a relayed proof signed by one.
type Auth struct {
	Principal identity.Principal
	Proof     *request.Proof
}

// Direct authorizes as an authenticated principal.
func Direct(p identity.Principal) Auth {
	return Auth{Principal: p}
}

// Relayed authorizes with a signature proof carried by an untrusted relay.
func Relayed(proof *request.Proof) Auth {
	return Auth{Proof: proof}
}

// authorize resolves the acting principal. In relayed mode it verifies the
// proof against the request at the proof's claimed nonce, requires the
// recovered signer to be an officiant, and rejects stale nonces. The second
// return reports whether the carving's nonce must be consumed on commit.
// Callers hold the mutex.
func (s *Store) authorize(op *observability.Operation, auth Auth, req *request.Request) (identity.Principal, bool, error) {
	if auth.Proof == nil {
		if _, ok := s.officiants[auth.Principal]; !ok {
			op.AuthFailure("not_officiant")
			return "", false, ErrNotOfficiant
		}
		return auth.Principal, false, nil
	}

	signer, ok := auth.Proof.Verify(req)
	if !ok {
		op.AuthFailure("invalid_signature")
		return "", false, ErrInvalidSignature
	}
	// A valid signature from a non-officiant is indistinguishable from a
	// forged one as far as the caller is concerned.
	if _, isOfficiant := s.officiants[signer]; !isOfficiant {
		op.AuthFailure("signer_not_officiant")
		return "", false, ErrInvalidSignature
	}
	if auth.Proof.Nonce != s.nonces[req.ID] {
		op.AuthFailure("stale_nonce")
		return "", false, ErrSignatureAlreadyUsed
	}
	return signer, true, nil
}

// Carve stores new content under an identifier that has never been used.
// Scratched identifiers stay burned forever.
func (s *Store) Carve(ctx context.Context, auth Auth, id carving.ID, content carving.Content) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "carve",
		attribute.String("carving.id", id.Hex()),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request.Request{
		Kind:       request.KindCarve,
		ID:         id,
		To:         content.To,
		From:       content.From,
		Message:    content.Message,
		Properties: content.Properties,
	}
	actor, consume, err := s.authorize(op, auth, req)
	if err != nil {
		return err
	}
	if content.Message == "" {
		err = ErrMessageCannotBeEmpty
		return err
	}
	if s.status(id) != carving.StatusFree {
		err = ErrCarvingExists
		return err
	}

	c := &carving.Carving{
		ID:         id,
		Status:     carving.StatusCreated,
		To:         content.To,
		From:       content.From,
		Message:    content.Message,
		Properties: content.Properties,
	}
	data, err := encodeCarving(c)
	if err != nil {
		return err
	}
	writes := []physical.Write{
		{Namespace: physical.NSCarving, Key: id.Hex(), Value: data},
	}
	writes = s.appendNonceWrite(writes, id, consume)

	if err = s.backend.PutBatch(ctx, writes); err != nil {
		return err
	}
	s.carvings[id] = c
	if consume {
		s.nonces[id]++
	}
	s.syncGauges()
	s.emit(ctx, &events.Event{
		Kind:       events.KindStored,
		ID:         id,
		Actor:      actor,
		To:         content.To,
		From:       content.From,
		Message:    content.Message,
		Properties: content.Properties,
	})
	return nil
}

// Scratch deletes a carving. The deletion is terminal: the identifier can
// never be carved again. A published carving leaves the gallery as part of
// the same commit.
func (s *Store) Scratch(ctx context.Context, auth Auth, id carving.ID) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "scratch",
		attribute.String("carving.id", id.Hex()),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request.Request{Kind: request.KindScratch, ID: id}
	actor, consume, err := s.authorize(op, auth, req)
	if err != nil {
		return err
	}
	st := s.status(id)
	if st != carving.StatusCreated && st != carving.StatusPublished {
		err = ErrCarvingNotFound
		return err
	}

	// Content is cleared on deletion; only the burned status survives.
	c := &carving.Carving{ID: id, Status: carving.StatusDeleted}
	data, err := encodeCarving(c)
	if err != nil {
		return err
	}
	writes := []physical.Write{
		{Namespace: physical.NSCarving, Key: id.Hex(), Value: data},
	}

	var newGallery []carving.ID
	if st == carving.StatusPublished {
		newGallery = galleryAfterRemove(s.gallery, s.galleryPos[id])
		galleryData, gerr := encodeGallery(newGallery)
		if gerr != nil {
			err = gerr
			return err
		}
		writes = append(writes, physical.Write{Namespace: physical.NSMeta, Key: galleryKey, Value: galleryData})
	}
	writes = s.appendNonceWrite(writes, id, consume)

	if err = s.backend.PutBatch(ctx, writes); err != nil {
		return err
	}
	s.carvings[id] = c
	if st == carving.StatusPublished {
		s.setGallery(newGallery)
	}
	if consume {
		s.nonces[id]++
	}
	s.syncGauges()
	s.emit(ctx, &events.Event{Kind: events.KindDeleted, ID: id, Actor: actor})
	return nil
}

// Publicize lists a carving in the gallery.
func (s *Store) Publicize(ctx context.Context, auth Auth, id carving.ID) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "publicize",
		attribute.String("carving.id", id.Hex()),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request.Request{Kind: request.KindPublicize, ID: id}
	actor, consume, err := s.authorize(op, auth, req)
	if err != nil {
		return err
	}
	switch s.status(id) {
	case carving.StatusCreated:
	case carving.StatusPublished:
		err = ErrCarvingAlreadyPublished
		return err
	default:
		err = ErrCarvingNotFound
		return err
	}

	c := *s.carvings[id]
	c.Status = carving.StatusPublished
	data, err := encodeCarving(&c)
	if err != nil {
		return err
	}
	newGallery := append(append([]carving.ID(nil), s.gallery...), id)
	galleryData, err := encodeGallery(newGallery)
	if err != nil {
		return err
	}
	writes := []physical.Write{
		{Namespace: physical.NSCarving, Key: id.Hex(), Value: data},
		{Namespace: physical.NSMeta, Key: galleryKey, Value: galleryData},
	}
	writes = s.appendNonceWrite(writes, id, consume)

	if err = s.backend.PutBatch(ctx, writes); err != nil {
		return err
	}
	s.carvings[id] = &c
	s.setGallery(newGallery)
	if consume {
		s.nonces[id]++
	}
	s.syncGauges()
	s.emit(ctx, &events.Event{Kind: events.KindPublicized, ID: id, Actor: actor})
	return nil
}

// Hide removes a carving from the gallery without deleting it.
func (s *Store) Hide(ctx context.Context, auth Auth, id carving.ID) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "hide",
		attribute.String("carving.id", id.Hex()),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &request.Request{Kind: request.KindHide, ID: id}
	actor, consume, err := s.authorize(op, auth, req)
	if err != nil {
		return err
	}
	switch s.status(id) {
	case carving.StatusPublished:
	case carving.StatusCreated:
		err = ErrCarvingNotInGallery
		return err
	default:
		err = ErrCarvingNotFound
		return err
	}

	c := *s.carvings[id]
	c.Status = carving.StatusCreated
	data, err := encodeCarving(&c)
	if err != nil {
		return err
	}
	newGallery := galleryAfterRemove(s.gallery, s.galleryPos[id])
	galleryData, err := encodeGallery(newGallery)
	if err != nil {
		return err
	}
	writes := []physical.Write{
		{Namespace: physical.NSCarving, Key: id.Hex(), Value: data},
		{Namespace: physical.NSMeta, Key: galleryKey, Value: galleryData},
	}
	writes = s.appendNonceWrite(writes, id, consume)

	if err = s.backend.PutBatch(ctx, writes); err != nil {
		return err
	}
	s.carvings[id] = &c
	s.setGallery(newGallery)
	if consume {
		s.nonces[id]++
	}
	s.syncGauges()
	s.emit(ctx, &events.Event{Kind: events.KindHidden, ID: id, Actor: actor})
	return nil
}

// appendNonceWrite adds the nonce increment to a batch when a proof is
// being consumed, so replay protection commits atomically with the
// mutation. Callers hold the mutex.
func (s *Store) appendNonceWrite(writes []physical.Write, id carving.ID, consume bool) []physical.Write {
	if !consume {
		return writes
	}
	return append(writes, physical.Write{
		Namespace: physical.NSNonce,
		Key:       id.Hex(),
		Value:     encodeNonce(s.nonces[id] + 1),
	})
}

// galleryAfterRemove returns the gallery with the entry at pos removed by
// swapping in the last entry and truncating. Order of the remaining
// entries is otherwise preserved.
func galleryAfterRemove(gallery []carving.ID, pos int) []carving.ID {
	out := append([]carving.ID(nil), gallery...)
	last := len(out) - 1
	out[pos] = out[last]
	return out[:last]
}

// setGallery replaces the gallery and rebuilds the position index.
// Callers hold the mutex.
func (s *Store) setGallery(gallery []carving.ID) {
	s.gallery = gallery
	s.galleryPos = make(map[carving.ID]int, len(gallery))
	for i, id := range gallery {
		s.galleryPos[id] = i
	}
}
