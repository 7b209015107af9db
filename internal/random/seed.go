// Package random provides cryptographic seed generation and a recorded
// pseudo-random source.
//
// Seeds come from crypto/rand. The Source type wraps math/rand with an
// explicit seed and keeps every draw it hands out, so a committed action
// can be audited or replayed bit-for-bit later.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
