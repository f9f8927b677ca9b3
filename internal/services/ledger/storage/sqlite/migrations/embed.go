package migrations

import "embed"

// LedgerFS holds the journal and transaction index schema.
//
//go:embed ledger/*.sql
var LedgerFS embed.FS
