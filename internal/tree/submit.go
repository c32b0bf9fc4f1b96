package tree

import (
	"context"
	"fmt"

	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/request"
)

// Submit processes a relayed signed request and returns a receipt for the
// relayer to hand back to the principal. The relayer itself is untrusted;
// authorization rests entirely on the embedded proof.
func (s *Store) Submit(ctx context.Context, sr *request.SignedRequest) *request.Receipt {
	return request.NewReceipt(sr, s.applySigned(ctx, sr))
}

func (s *Store) applySigned(ctx context.Context, sr *request.SignedRequest) error {
	if err := sr.Request.Validate(); err != nil {
		return err
	}
	auth := Relayed(&sr.Proof)

	switch sr.Request.Kind {
	case request.KindCarve:
		return s.Carve(ctx, auth, sr.Request.ID, carving.Content{
			To:         sr.Request.To,
			From:       sr.Request.From,
			Message:    sr.Request.Message,
			Properties: sr.Request.Properties,
		})
	case request.KindScratch:
		return s.Scratch(ctx, auth, sr.Request.ID)
	case request.KindPublicize:
		return s.Publicize(ctx, auth, sr.Request.ID)
	case request.KindHide:
		return s.Hide(ctx, auth, sr.Request.ID)
	default:
		return fmt.Errorf("%w: unknown kind %d", request.ErrMalformed, sr.Request.Kind)
	}
}
