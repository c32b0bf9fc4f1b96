// Package carving defines the domain types of the carving store: identifiers,
// lifecycle status, and the carving record itself.
package carving

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// IDSize is the width of a carving identifier in bytes.
const IDSize = 32

// PropertiesSize is the width of the display-properties blob in bytes.
// The original contract packs one status byte plus 31 properties bytes
// into a single storage word.
const PropertiesSize = 31

// ID is a collision-resistant carving identifier.
type ID [IDSize]byte

// Properties is an opaque display-hints blob attached to a carving.
type Properties [PropertiesSize]byte

// ErrInvalidID indicates a malformed carving identifier.
var ErrInvalidID = errors.New("invalid carving id")

// Hex returns the lowercase hex encoding of an ID.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return id.Hex()
}

// ParseID decodes a carving ID from its 64-character hex form.
// A leading "0x" is accepted.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != IDSize*2 {
		return ID{}, ErrInvalidID
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// ParseProperties decodes a properties blob from hex, left-padding short
// input to the full width the way the original backend does.
func ParseProperties(s string) (Properties, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Properties{}, errors.New("invalid properties hex")
	}
	if len(raw) > PropertiesSize {
		raw = raw[len(raw)-PropertiesSize:]
	}
	var p Properties
	copy(p[PropertiesSize-len(raw):], raw)
	return p, nil
}

// Hex returns the lowercase hex encoding of a properties blob.
func (p Properties) Hex() string {
	return hex.EncodeToString(p[:])
}

// MarshalJSON encodes the ID as a hex string.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.Hex() + `"`), nil
}

// UnmarshalJSON decodes the ID from a hex string.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalJSON encodes the properties blob as a hex string.
func (p Properties) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.Hex() + `"`), nil
}

// UnmarshalJSON decodes the properties blob from a hex string.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProperties(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status is the lifecycle state of a carving identifier.
type Status uint8

const (
	// StatusFree means the identifier has never been carved.
	StatusFree Status = iota
	// StatusCreated means the carving exists but is not publicly listed.
	StatusCreated
	// StatusPublished means the carving is listed in the gallery.
	StatusPublished
	// StatusDeleted means the carving was scratched. Terminal: the
	// identifier can never be carved again.
	StatusDeleted
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusCreated:
		return "created"
	case StatusPublished:
		return "published"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Carving is a stored content record.
type Carving struct {
	ID         ID         `json:"id"`
	Status     Status     `json:"status"`
	To         string     `json:"to"`
	From       string     `json:"from"`
	Message    string     `json:"message"`
	Properties Properties `json:"properties"`
}

// Content holds the world-readable fields of a carving, as returned by read.
type Content struct {
	To         string     `json:"to"`
	From       string     `json:"from"`
	Message    string     `json:"message"`
	Properties Properties `json:"properties"`
}

// TruncateLabel clamps a to/from label to limit runes. Zero limit means
// no clamping. Mirrors the original backend, which truncates before
// submitting rather than rejecting.
func TruncateLabel(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
