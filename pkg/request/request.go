// Package request defines the relayable operation protocol: a typed command
// union, a canonical signing encoding, and the proof an untrusted relayer
// forwards on a principal's behalf.
//
// A principal fetches the current nonce for the target carving, signs the
// request's canonical bytes over that nonce, and hands the signed request to
// any relayer. The store never trusts the relayer's identity; authorization
// comes solely from the recovered signer and the embedded nonce.
package request

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/carvexyz/tree-node/pkg/carving"
)

// Kind tags a relayable operation.
type Kind uint8

const (
	// KindCarve stores a new carving.
	KindCarve Kind = iota + 1
	// KindScratch deletes a carving.
	KindScratch
	// KindPublicize lists a carving in the gallery.
	KindPublicize
	// KindHide removes a carving from the gallery.
	KindHide
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindCarve:
		return "carve"
	case KindScratch:
		return "scratch"
	case KindPublicize:
		return "publicize"
	case KindHide:
		return "hide"
	default:
		return "unknown"
	}
}

// ParseKind parses an operation name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "carve":
		return KindCarve, nil
	case "scratch":
		return KindScratch, nil
	case "publicize":
		return KindPublicize, nil
	case "hide":
		return KindHide, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// MarshalText encodes the kind as its operation name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < KindCarve || k > KindHide {
		return nil, fmt.Errorf("unknown kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes the kind from an operation name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Request is one relayable operation with its typed payload. Content fields
// are only meaningful for KindCarve; they are zero for the other kinds.
type Request struct {
	Kind       Kind               `json:"kind"`
	ID         carving.ID         `json:"id"`
	To         string             `json:"to,omitempty"`
	From       string             `json:"from,omitempty"`
	Message    string             `json:"message,omitempty"`
	Properties carving.Properties `json:"properties,omitempty"`
}

// ErrMalformed indicates a structurally invalid request.
var ErrMalformed = errors.New("malformed request")

// Validate checks the request shape. Lifecycle preconditions are the
// store's concern, not the protocol's.
func (r *Request) Validate() error {
	switch r.Kind {
	case KindCarve, KindScratch, KindPublicize, KindHide:
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, r.Kind)
	}
	if r.Kind != KindCarve && (r.To != "" || r.From != "" || r.Message != "") {
		return fmt.Errorf("%w: content fields only valid for carve", ErrMalformed)
	}
	return nil
}

// signingDomain separates request signatures from any other use of the
// same keys.
const signingDomain = "tree/v1"

// SigningBytes returns the canonical byte encoding a principal signs:
// domain tag, kind, subject id, the full carve content for carve requests,
// and the per-carving nonce. Binding the content means a captured carve
// signature can never authorize different content under the same id.
func (r *Request) SigningBytes(nonce uint64) []byte {
	var buf bytes.Buffer

	buf.WriteString(signingDomain)
	buf.WriteByte(0)
	buf.WriteByte(byte(r.Kind))
	buf.Write(r.ID[:])

	if r.Kind == KindCarve {
		buf.WriteString(r.To)
		buf.WriteByte(0)
		buf.WriteString(r.From)
		buf.WriteByte(0)
		buf.WriteString(r.Message)
		buf.WriteByte(0)
		buf.Write(r.Properties[:])
	}

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	buf.Write(n[:])

	return buf.Bytes()
}
