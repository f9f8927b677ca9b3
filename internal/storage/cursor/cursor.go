// Package cursor encodes opaque page tokens for sequence-ordered listings.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Direction indicates which side of the cursor sequence a page reads.
type Direction string

const (
	// Forward reads rows with seq greater than the cursor.
	Forward Direction = "fwd"
	// Backward reads rows with seq less than the cursor.
	Backward Direction = "bwd"
)

// ErrFilterChanged reports a token reused with a different filter or order.
var ErrFilterChanged = errors.New("page token does not match the current filter")

// Cursor is the decoded state of a page token.
type Cursor struct {
	Seq uint64    `json:"seq"`
	Dir Direction `json:"dir"`
	// Reverse fetches from the near edge of a previous page; callers flip
	// the rows back before returning them.
	Reverse bool   `json:"rev,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

// Encode returns the opaque token for c.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, errors.New("empty page token")
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode page token: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.Dir != Forward && c.Dir != Backward {
		return Cursor{}, fmt.Errorf("invalid cursor direction: %q", c.Dir)
	}
	return c, nil
}

// Scope hashes the filter and ordering a token was issued for.
func Scope(filter string, descending bool) string {
	if filter == "" && !descending {
		return ""
	}
	order := "asc"
	if descending {
		order = "desc"
	}
	h := sha256.Sum256([]byte(order + "\x00" + filter))
	return hex.EncodeToString(h[:8])
}

// Check returns ErrFilterChanged when c was issued for another scope.
func (c Cursor) Check(filter string, descending bool) error {
	if c.Scope != Scope(filter, descending) {
		return ErrFilterChanged
	}
	return nil
}

// Next returns the cursor for the page after the one ending at lastSeq.
func Next(lastSeq uint64, filter string, descending bool) Cursor {
	dir := Forward
	if descending {
		dir = Backward
	}
	return Cursor{Seq: lastSeq, Dir: dir, Scope: Scope(filter, descending)}
}

// Prev returns the cursor for the page before the one starting at firstSeq.
func Prev(firstSeq uint64, filter string, descending bool) Cursor {
	dir := Backward
	if descending {
		dir = Forward
	}
	return Cursor{Seq: firstSeq, Dir: dir, Reverse: true, Scope: Scope(filter, descending)}
}
