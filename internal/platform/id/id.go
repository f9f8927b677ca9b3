// Package id generates opaque, URL-safe ledger identifiers.
//
// Identifiers are UUIDv4 bytes encoded as lowercase base32 (RFC 4648) with
// no padding, so every id is 26 characters long.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh random identifier.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// Generator produces identifiers; tests swap it for deterministic sequences.
type Generator func() (string, error)

// Sequence returns a Generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) Generator {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("%s-%d", prefix, n), nil
	}
}
