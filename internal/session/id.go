package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idSize is the number of random bytes behind an identifier (128 bits).
const idSize = 16

// idLen is the length of the base64url encoding of idSize bytes.
var idLen = base64.RawURLEncoding.EncodedLen(idSize)

// ID identifies a session record.
type ID string

// String returns the identifier as stored.
func (id ID) String() string {
	return string(id)
}

// NewID returns a fresh cryptographically random identifier.
func NewID() (ID, error) {
	var b [idSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return ID(base64.RawURLEncoding.EncodeToString(b[:])), nil
}

// ParseID checks that s has the shape produced by NewID.
func ParseID(s string) (ID, error) {
	if len(s) != idLen {
		return "", fmt.Errorf("session: invalid id length %d", len(s))
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("session: invalid id: %w", err)
	}
	if len(raw) != idSize {
		return "", fmt.Errorf("session: invalid id size %d", len(raw))
	}
	return ID(s), nil
}
