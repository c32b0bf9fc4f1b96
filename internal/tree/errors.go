package tree

import "errors"

// Authorization errors: the caller or recovered signer lacks the required
// capability.
var (
	ErrNotOfficiant      = errors.New("not an officiant")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrCannotDismissSelf = errors.New("cannot dismiss self")
)

// Replay errors: the proof was already consumed.
var ErrSignatureAlreadyUsed = errors.New("signature already used")

// State errors: the operation is invalid for the carving's current
// lifecycle state.
var (
	ErrCarvingExists           = errors.New("carving already exists")
	ErrCarvingNotFound         = errors.New("carving not found")
	ErrCarvingAlreadyPublished = errors.New("carving already published")
	ErrCarvingNotInGallery     = errors.New("carving not in gallery")
)

// Validation errors: malformed input.
var ErrMessageCannotBeEmpty = errors.New("message cannot be empty")
