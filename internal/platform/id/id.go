// Package id generates opaque, URL-safe identifiers.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// Prefixed returns NewID joined to prefix with a dash, e.g. "unit-abcd...".
func Prefixed(prefix string) (string, error) {
	value, err := NewID()
	if err != nil {
		return "", err
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return value, nil
	}
	return prefix + "-" + value, nil
}
