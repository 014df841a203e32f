// Package random provides process-level entropy helpers.
//
// Nothing here is deterministic. It exists for values that must differ on
// every run, such as the base of the run-local object handle space. Session
// randomness lives in the domain random package and is always seeded.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed reads 64 bits of entropy from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// HandleBase returns a non-zero starting offset for a handle allocator.
// The low 32 bits are cleared so allocators have room to count upward.
func HandleBase() (uint64, error) {
	seed, err := NewSeed()
	if err != nil {
		return 0, err
	}
	base := seed &^ 0xffffffff
	if base == 0 {
		base = 1 << 32
	}
	return base, nil
}
