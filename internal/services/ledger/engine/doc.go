// Package engine runs ledger commands against the published graph snapshot.
//
// Readers load the snapshot without locking. Writers take per-key locks for
// the references a command touches, decide against the snapshot, then fold,
// journal and publish under a short commit section so a transaction and its
// balance effect become visible together.
package engine
