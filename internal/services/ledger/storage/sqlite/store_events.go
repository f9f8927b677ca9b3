package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
	"github.com/louisbranch/famledger/internal/services/ledger/storage"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const eventColumns = "seq, event_hash, prev_hash, chain_hash, ts, event_type, actor_id, request_id, entity_type, entity_id, payload_json"

// AppendEvents atomically appends events after the journal head. Sequence,
// content hash and chain hash are assigned here; transaction.recorded events
// also write their transaction index row in the same SQL transaction.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, prevHash, err := head(ctx, tx)
	if err != nil {
		return nil, err
	}

	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt, err = event.NormalizeForAppend(evt)
		if err != nil {
			return nil, err
		}
		evt.Timestamp = evt.Timestamp.Truncate(time.Millisecond)
		seq++
		evt.Seq = seq
		if evt.Hash, err = event.EventHash(evt); err != nil {
			return nil, fmt.Errorf("compute event hash: %w", err)
		}
		evt.PrevHash = prevHash
		if evt.ChainHash, err = event.ChainHash(evt, prevHash); err != nil {
			return nil, fmt.Errorf("compute chain hash: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			int64(evt.Seq), evt.Hash, evt.PrevHash, evt.ChainHash, toMillis(evt.Timestamp),
			string(evt.Type), evt.ActorID, evt.RequestID, evt.EntityType, evt.EntityID, evt.PayloadJSON,
		); err != nil {
			return nil, classify("append event", err)
		}
		if evt.Type == event.TypeTransactionRecorded {
			if err := indexTransaction(ctx, tx, evt); err != nil {
				return nil, err
			}
		}
		prevHash = evt.ChainHash
		stored = append(stored, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit", err)
	}
	return stored, nil
}

func head(ctx context.Context, tx *sql.Tx) (uint64, string, error) {
	var (
		seq   int64
		chain string
	)
	err := tx.QueryRowContext(ctx, "SELECT seq, chain_hash FROM events ORDER BY seq DESC LIMIT 1").Scan(&seq, &chain)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("load journal head: %w", err)
	}
	return uint64(seq), chain, nil
}

func indexTransaction(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	var p ledger.TransactionRecordPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode transaction payload seq=%d: %w", evt.Seq, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (seq, id, kind, amount, description, source_id, destination_id, initiator_id, rule_id, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(evt.Seq), p.TransactionID, p.Kind, p.Amount, p.Description,
		p.SourceID, p.DestinationID, p.InitiatorID, p.RuleID, toMillis(evt.Timestamp),
	); err != nil {
		return classify("index transaction", err)
	}
	return nil
}

// ListEvents returns up to limit events after afterSeq in journal order.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE seq > ? ORDER BY seq LIMIT ?",
		int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the journal head sequence, zero when empty.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT MAX(seq) FROM events").Scan(&seq); err != nil {
		return 0, fmt.Errorf("query journal head: %w", err)
	}
	return uint64(seq.Int64), nil
}

// VerifyChain walks the journal and recomputes every content and chain hash.
func (s *Store) VerifyChain(ctx context.Context) error {
	var (
		lastSeq   uint64
		prevChain string
	)
	for {
		events, err := s.ListEvents(ctx, lastSeq, 200)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap expected=%d got=%d", lastSeq+1, evt.Seq)
			}
			if evt.PrevHash != prevChain {
				return fmt.Errorf("prev hash mismatch seq=%d", evt.Seq)
			}
			hash, err := event.EventHash(evt)
			if err != nil {
				return fmt.Errorf("compute event hash seq=%d: %w", evt.Seq, err)
			}
			if hash != evt.Hash {
				return fmt.Errorf("event hash mismatch seq=%d", evt.Seq)
			}
			chain, err := event.ChainHash(evt, prevChain)
			if err != nil {
				return fmt.Errorf("compute chain hash seq=%d: %w", evt.Seq, err)
			}
			if chain != evt.ChainHash {
				return fmt.Errorf("chain hash mismatch seq=%d", evt.Seq)
			}
			prevChain = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (event.Event, error) {
	var (
		evt       event.Event
		seq, ts   int64
		eventType string
	)
	if err := row.Scan(
		&seq, &evt.Hash, &evt.PrevHash, &evt.ChainHash, &ts, &eventType,
		&evt.ActorID, &evt.RequestID, &evt.EntityType, &evt.EntityID, &evt.PayloadJSON,
	); err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(ts)
	evt.Type = event.Type(eventType)
	return evt, nil
}

func classify(op string, err error) error {
	if isConstraintError(err) || isBusyError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
