package command

import (
	"errors"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code     apperrors.Code
	Message  string
	Metadata map[string]string
}

// Err converts the rejection into a coded error.
func (r Rejection) Err() error {
	return apperrors.WithMetadata(r.Code, r.Message, r.Metadata)
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// RejectErr rejects with a coded error. Uncoded errors become UNKNOWN.
func RejectErr(err error) Decision {
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return Reject(Rejection{Code: coded.Code, Message: coded.Message, Metadata: coded.Metadata})
	}
	return Reject(Rejection{Code: apperrors.CodeUnknown, Message: err.Error()})
}

// Validate reports whether the decision carries an outcome.
func (d Decision) Validate() error {
	if len(d.Events) == 0 && len(d.Rejections) == 0 {
		return errors.New("decision has no events or rejections")
	}
	if len(d.Events) > 0 && len(d.Rejections) > 0 {
		return errors.New("decision cannot both accept and reject")
	}
	return nil
}

// Err returns the first rejection as an error, or nil when accepted.
func (d Decision) Err() error {
	if len(d.Rejections) == 0 {
		return nil
	}
	return d.Rejections[0].Err()
}

// NewEvent builds an event by copying the envelope fields from a command.
func NewEvent(cmd Command, eventType event.Type, entityType, entityID string, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		Type:        eventType,
		Timestamp:   now,
		ActorID:     cmd.ActorID,
		RequestID:   cmd.RequestID,
		EntityType:  entityType,
		EntityID:    entityID,
		PayloadJSON: payloadJSON,
	}
}
