// Package migrations contains embedded SQL migrations for the SQLite ledger store.
package migrations
