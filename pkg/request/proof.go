package request

import (
	"encoding/json"

	"github.com/carvexyz/tree-node/pkg/identity"
)

// Proof carries the delegated-mode authorization for a request: the signer's
// public key, the signature over the request's canonical bytes, and the
// nonce the signature was computed over.
type Proof struct {
	Signer    identity.PublicKey
	Signature identity.Signature
	Nonce     uint64
}

type proofJSON struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Nonce     uint64 `json:"nonce"`
}

// MarshalJSON encodes key and signature in their "algo:hex" form.
func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofJSON{
		Signer:    identity.EncodePublicKey(p.Signer),
		Signature: identity.EncodeSignature(p.Signature),
		Nonce:     p.Nonce,
	})
}

// UnmarshalJSON decodes key and signature from their "algo:hex" form.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw proofJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	signer, err := identity.DecodePublicKey(raw.Signer)
	if err != nil {
		return err
	}
	sig, err := identity.DecodeSignature(raw.Signature)
	if err != nil {
		return err
	}
	p.Signer = signer
	p.Signature = sig
	p.Nonce = raw.Nonce
	return nil
}

// Sign produces a proof over the request's canonical bytes at the given
// nonce. The nonce must be the carving's current nonce for the store to
// accept the proof.
func Sign(r *Request, nonce uint64, signer identity.Signer) (*Proof, error) {
	sig, err := signer.Sign(r.SigningBytes(nonce))
	if err != nil {
		return nil, err
	}
	return &Proof{
		Signer:    signer.PublicKey(),
		Signature: sig,
		Nonce:     nonce,
	}, nil
}

// Verify checks the proof's signature over the request at the proof's own
// nonce and returns the recovered principal. Nonce freshness is the
// store's decision; Verify only establishes who signed what.
func (p *Proof) Verify(r *Request) (identity.Principal, bool) {
	if !identity.Verify(p.Signer, r.SigningBytes(p.Nonce), p.Signature) {
		return "", false
	}
	return identity.PrincipalOf(p.Signer), true
}
