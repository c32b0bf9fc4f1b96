package tree

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carvexyz/tree-node/internal/observability"
	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/pkg/identity"
)

// Appoint grants the officiant capability to a candidate. Only an existing
// officiant may appoint. Appointing an existing officiant is a no-op.
func (s *Store) Appoint(ctx context.Context, actor, candidate identity.Principal) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "appoint",
		attribute.String("candidate", string(candidate)),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.officiants[actor]; !ok {
		op.AuthFailure("not_officiant")
		err = ErrNotOfficiant
		return err
	}
	if _, ok := s.officiants[candidate]; ok {
		return nil
	}

	if err = s.backend.Put(ctx, physical.NSOfficiant, string(candidate), []byte("1")); err != nil {
		return err
	}
	s.officiants[candidate] = struct{}{}
	s.syncGauges()
	return nil
}

// Dismiss revokes the officiant capability. Dismissing a principal that is
// not an officiant is a no-op. An officiant cannot dismiss itself; the
// registry can therefore never empty itself out.
func (s *Store) Dismiss(ctx context.Context, actor, target identity.Principal) error {
	op, ctx := observability.StartOperation(ctx, s.metrics, "dismiss",
		attribute.String("target", string(target)),
	)
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.officiants[actor]; !ok {
		op.AuthFailure("not_officiant")
		err = ErrNotOfficiant
		return err
	}
	if actor == target {
		op.AuthFailure("self_dismissal")
		err = ErrCannotDismissSelf
		return err
	}
	if _, ok := s.officiants[target]; !ok {
		return nil
	}

	if err = s.backend.Delete(ctx, physical.NSOfficiant, string(target)); err != nil {
		return err
	}
	delete(s.officiants, target)
	s.syncGauges()
	return nil
}
