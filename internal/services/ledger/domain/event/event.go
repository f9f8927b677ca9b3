package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies an event type.
type Type string

const (
	TypeInstitutionRegistered Type = "institution.registered"
	TypeParentRegistered      Type = "parent.registered"
	TypeFamilyCreated         Type = "family.created"
	TypeFamilyAdminAdded      Type = "family.admin_added"
	TypeChildAdded            Type = "child.added"
	TypeDeviceRegistered      Type = "device.registered"
	TypeFundingSourceLinked   Type = "funding_source.linked"
	TypeRecipientRegistered   Type = "recipient.registered"
	TypeRuleCreated           Type = "rule.created"
	TypeTransactionRecorded   Type = "transaction.recorded"
	TypeEntityRemoved         Type = "entity.removed"
)

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the prefix before the first dot.
func (t Type) Domain() string {
	domain, _, _ := strings.Cut(string(t), ".")
	return domain
}

// Event represents an immutable event in the ledger journal.
type Event struct {
	// Seq is the journal position (starts at 1). Assigned by storage.
	Seq uint64
	// Hash is the content hash of the event. Assigned by storage.
	Hash string
	// PrevHash is the previous event's chain hash. Assigned by storage.
	PrevHash string
	// ChainHash links this event to its predecessor. Assigned by storage.
	ChainHash string

	Timestamp  time.Time
	Type       Type
	ActorID    string
	RequestID  string
	EntityType string
	EntityID   string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// NormalizeForAppend validates and normalizes an event before storage
// assigns sequencing.
func NormalizeForAppend(evt Event) (Event, error) {
	if evt.Seq != 0 {
		return Event{}, fmt.Errorf("event sequence must be assigned by storage")
	}
	if strings.TrimSpace(evt.Hash) != "" {
		return Event{}, fmt.Errorf("event hash must be assigned by storage")
	}
	if strings.TrimSpace(evt.PrevHash) != "" || strings.TrimSpace(evt.ChainHash) != "" {
		return Event{}, fmt.Errorf("event chain hashes must be assigned by storage")
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if !evt.Type.IsValid() {
		return Event{}, fmt.Errorf("event type is required")
	}
	if evt.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("event timestamp is required")
	}
	evt.Timestamp = evt.Timestamp.UTC()
	evt.ActorID = strings.TrimSpace(evt.ActorID)
	evt.RequestID = strings.TrimSpace(evt.RequestID)
	evt.EntityType = strings.TrimSpace(evt.EntityType)
	evt.EntityID = strings.TrimSpace(evt.EntityID)
	if evt.EntityID == "" {
		return Event{}, fmt.Errorf("entity id is required")
	}

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, fmt.Errorf("payload json must be valid JSON")
	}
	return evt, nil
}
