package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/encoding"
)

// envelope lists the fields covered by the content hash. Storage-assigned
// fields are excluded so the hash can be computed before append.
func envelope(evt Event) map[string]any {
	return map[string]any{
		"event_type":  string(evt.Type),
		"timestamp":   evt.Timestamp.UTC().Format(time.RFC3339Nano),
		"actor_id":    evt.ActorID,
		"request_id":  evt.RequestID,
		"entity_type": evt.EntityType,
		"entity_id":   evt.EntityID,
		"payload":     json.RawMessage(evt.PayloadJSON),
	}
}

// EventHash computes the content hash of an event.
func EventHash(evt Event) (string, error) {
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	return encoding.ContentHash(envelope(evt))
}

// ChainHash computes the SHA-256 hash that links an event to its predecessor.
func ChainHash(evt Event, prevHash string) (string, error) {
	if strings.TrimSpace(evt.Hash) == "" {
		return "", fmt.Errorf("event hash is required")
	}
	if evt.Seq == 0 {
		return "", fmt.Errorf("event sequence is required")
	}
	canonical, err := encoding.CanonicalJSON(map[string]any{
		"seq":        evt.Seq,
		"event_hash": evt.Hash,
		"prev_hash":  prevHash,
	})
	if err != nil {
		return "", fmt.Errorf("canonical chain: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
