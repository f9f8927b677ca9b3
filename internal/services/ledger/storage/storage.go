// Package storage defines the persistence contracts of the ledger service:
// an append-only event journal and a queryable transaction index projected
// from it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a write lost a race for the journal head.
var ErrConflict = errors.New("journal write conflict")

// ErrInvalidFilter indicates a filter expression that cannot be applied.
var ErrInvalidFilter = errors.New("invalid filter")

// ErrInvalidPageToken indicates a page token that cannot be used with the request.
var ErrInvalidPageToken = errors.New("invalid page token")

// Journal persists events in order with a tamper-evident hash chain.
type Journal interface {
	// AppendEvents atomically appends events and returns them with sequence
	// and hashes assigned.
	AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// ListEvents returns up to limit events with seq greater than afterSeq.
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
	// LastSeq returns the sequence of the newest event, or zero.
	LastSeq(ctx context.Context) (uint64, error)
	// VerifyChain recomputes every hash and reports the first break.
	VerifyChain(ctx context.Context) error
}

// TransactionRecord is one row of the transaction index.
type TransactionRecord struct {
	Seq           uint64
	ID            string
	Kind          string
	Amount        int64
	Description   string
	SourceID      string
	DestinationID string
	InitiatorID   string
	RuleID        string
	Timestamp     time.Time
}

// ListTransactionsRequest selects a page of the transaction index.
type ListTransactionsRequest struct {
	// PageSize defaults to 50 and is capped at 200.
	PageSize int
	// PageToken continues a previous listing issued for the same filter and order.
	PageToken string
	// Filter is an AIP-160 expression over kind, source_id, destination_id,
	// initiator_id, rule_id, amount and ts.
	Filter string
	// Descending lists newest first.
	Descending bool
}

// TransactionPage is one page of transaction records.
type TransactionPage struct {
	Transactions  []TransactionRecord
	NextPageToken string
	PrevPageToken string
	TotalCount    int
}

// TransactionIndex lists recorded transactions.
type TransactionIndex interface {
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (TransactionPage, error)
}

// Store is the full persistence surface used by the ledger service.
type Store interface {
	Journal
	TransactionIndex
	Close() error
}
