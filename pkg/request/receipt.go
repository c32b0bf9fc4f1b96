package request

import (
	"time"

	"github.com/google/uuid"

	"github.com/carvexyz/tree-node/pkg/identity"
)

// SignedRequest is the unit a relayer forwards: the request, its proof, and
// a correlation id for matching receipts. Relayers must forward it
// byte-exact; any mutation invalidates the proof.
type SignedRequest struct {
	Correlation string  `json:"correlation"`
	Request     Request `json:"request"`
	Proof       Proof   `json:"proof"`
}

// NewSignedRequest signs a request and wraps it with a fresh correlation id.
func NewSignedRequest(r *Request, nonce uint64, signer identity.Signer) (*SignedRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	proof, err := Sign(r, nonce, signer)
	if err != nil {
		return nil, err
	}
	return &SignedRequest{
		Correlation: NewCorrelation(),
		Request:     *r,
		Proof:       *proof,
	}, nil
}

// Receipt reports the outcome of a relayed submission back to the principal.
type Receipt struct {
	Correlation string    `json:"correlation"`
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewCorrelation returns a fresh correlation id.
func NewCorrelation() string {
	return uuid.NewString()
}

// NewReceipt builds a receipt for a processed signed request.
func NewReceipt(sr *SignedRequest, err error) *Receipt {
	rec := &Receipt{
		Correlation: sr.Correlation,
		ID:          sr.Request.ID.Hex(),
		Kind:        sr.Request.Kind,
		OK:          err == nil,
		SubmittedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
