package sqlite

import (
	"context"
	"fmt"
	"slices"

	"github.com/louisbranch/famledger/internal/services/ledger/storage"
	"github.com/louisbranch/famledger/internal/services/ledger/storage/filter"
	"github.com/louisbranch/famledger/internal/storage/cursor"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListTransactions returns one page of the transaction index.
func (s *Store) ListTransactions(ctx context.Context, req storage.ListTransactionsRequest) (storage.TransactionPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.TransactionPage{}, err
	}
	switch {
	case req.PageSize <= 0:
		req.PageSize = defaultPageSize
	case req.PageSize > maxPageSize:
		req.PageSize = maxPageSize
	}

	cond, err := filter.ParseTransactionFilter(req.Filter)
	if err != nil {
		return storage.TransactionPage{}, fmt.Errorf("%w: %v", storage.ErrInvalidFilter, err)
	}
	var pos *cursor.Cursor
	if req.PageToken != "" {
		c, err := cursor.Decode(req.PageToken)
		if err != nil {
			return storage.TransactionPage{}, fmt.Errorf("%w: %v", storage.ErrInvalidPageToken, err)
		}
		if err := c.Check(req.Filter, req.Descending); err != nil {
			return storage.TransactionPage{}, fmt.Errorf("%w: %v", storage.ErrInvalidPageToken, err)
		}
		pos = &c
	}

	plan := buildListTransactionsPlan(cond, pos, req.PageSize, req.Descending)
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, id, kind, amount, description, source_id, destination_id, initiator_id, rule_id, ts
FROM transactions WHERE `+plan.where+" "+plan.order+" LIMIT ?",
		append(plan.params, plan.limit)...,
	)
	if err != nil {
		return storage.TransactionPage{}, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	records := make([]storage.TransactionRecord, 0, plan.limit)
	for rows.Next() {
		var (
			rec     storage.TransactionRecord
			seq, ts int64
		)
		if err := rows.Scan(&seq, &rec.ID, &rec.Kind, &rec.Amount, &rec.Description,
			&rec.SourceID, &rec.DestinationID, &rec.InitiatorID, &rec.RuleID, &ts); err != nil {
			return storage.TransactionPage{}, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Timestamp = fromMillis(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return storage.TransactionPage{}, fmt.Errorf("iterate transactions: %w", err)
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}
	if plan.reverse {
		slices.Reverse(records)
	}

	page := storage.TransactionPage{Transactions: records}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+plan.countWhere, plan.countParams...,
	).Scan(&page.TotalCount); err != nil {
		return storage.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}
	if len(records) == 0 {
		return page, nil
	}

	// Moving backward always leaves a next page; the fetched-extra row tells
	// whether the scan direction has more.
	hasNext, hasPrev := hasMore, pos != nil
	if plan.reverse {
		hasNext, hasPrev = true, hasMore
	}
	first, last := records[0].Seq, records[len(records)-1].Seq
	if hasNext {
		if page.NextPageToken, err = cursor.Encode(cursor.Next(last, req.Filter, req.Descending)); err != nil {
			return storage.TransactionPage{}, err
		}
	}
	if hasPrev {
		if page.PrevPageToken, err = cursor.Encode(cursor.Prev(first, req.Filter, req.Descending)); err != nil {
			return storage.TransactionPage{}, err
		}
	}
	return page, nil
}
