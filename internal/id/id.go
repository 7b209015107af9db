package id

import (
	crand "crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// encoding is RFC 4648 base32 without padding, lowercased after encode.
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a new URL-safe identifier.
func NewID() (string, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random id bytes: %w", err)
	}

	// Set UUIDv4 version and variant bits so identifiers remain
	// convertible back to canonical UUIDs if ever needed.
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80

	return strings.ToLower(encoding.EncodeToString(b[:])), nil
}
