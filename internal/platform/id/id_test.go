package id

import (
	"encoding/base32"
	"strings"
	"testing"
)

func decode(t *testing.T, value string) []byte {
	t.Helper()
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(value))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	return decoded
}

func TestNewIDFormat(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("id length = %d, want 26", len(value))
	}
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
			t.Fatalf("unexpected character %q in id", r)
		}
	}
	decoded := decode(t, value)
	if len(decoded) != 16 {
		t.Fatalf("decoded length = %d, want 16", len(decoded))
	}
	if version := decoded[6] >> 4; version != 4 {
		t.Fatalf("uuid version = %d, want 4", version)
	}
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[value] {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = true
	}
}

func TestPrefixed(t *testing.T) {
	value, err := Prefixed("unit")
	if err != nil {
		t.Fatalf("prefixed: %v", err)
	}
	if !strings.HasPrefix(value, "unit-") {
		t.Fatalf("id = %q, want unit- prefix", value)
	}
	bare, err := Prefixed("  ")
	if err != nil {
		t.Fatalf("prefixed: %v", err)
	}
	if strings.Contains(bare, "-") {
		t.Fatalf("id = %q, want no prefix", bare)
	}
}
