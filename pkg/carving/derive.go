package carving

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// DeriveUserID derives a stable 32-byte user identifier from an email
// address and a deployment salt: keccak256(email || salt).
func DeriveUserID(email, salt string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(email))
	h.Write([]byte(salt))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// DeriveID derives the carving identifier for a user's nth carving:
// keccak256(userID || uint32(index) || salt). Identifiers are minted
// sequentially per user; a caller probes indexes until it finds one the
// store reports as free.
func DeriveID(userID [32]byte, index uint32, salt string) ID {
	h := sha3.NewLegacyKeccak256()
	h.Write(userID[:])
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h.Write(idx[:])
	h.Write([]byte(salt))
	var id ID
	h.Sum(id[:0])
	return id
}
