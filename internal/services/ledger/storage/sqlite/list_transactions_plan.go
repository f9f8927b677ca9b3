package sqlite

import (
	"github.com/louisbranch/famledger/internal/services/ledger/storage/filter"
	"github.com/louisbranch/famledger/internal/storage/cursor"
)

type listTransactionsPlan struct {
	where   string
	params  []any
	order   string
	limit   int
	reverse bool
	// count covers the filter only, not the cursor position.
	countWhere  string
	countParams []any
}

func buildListTransactionsPlan(cond filter.Condition, c *cursor.Cursor, pageSize int, descending bool) listTransactionsPlan {
	plan := listTransactionsPlan{
		where:      "1 = 1",
		countWhere: "1 = 1",
		limit:      pageSize + 1,
	}
	if !cond.Empty() {
		plan.where += " AND " + cond.Clause
		plan.params = append(plan.params, cond.Params...)
		plan.countWhere = plan.where
		plan.countParams = append(plan.countParams, cond.Params...)
	}
	if c != nil {
		if c.Dir == cursor.Backward {
			plan.where += " AND seq < ?"
		} else {
			plan.where += " AND seq > ?"
		}
		plan.params = append(plan.params, int64(c.Seq))
		plan.reverse = c.Reverse
	}

	// A previous-page read flips the order so the rows nearest the cursor
	// come first; the caller restores the requested order.
	asc := !descending
	if plan.reverse {
		asc = !asc
	}
	plan.order = "ORDER BY seq DESC"
	if asc {
		plan.order = "ORDER BY seq ASC"
	}
	return plan
}
