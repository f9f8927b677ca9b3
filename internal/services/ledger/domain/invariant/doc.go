// Package invariant validates ledger writes against a graph snapshot.
//
// Transaction checks run in a fixed order (references, capability, amount,
// balance, rule consistency) so that when a draft violates several rules the
// reported error is deterministic. The engine only reads the snapshot it is
// given; it never corrects a value or applies a change.
package invariant
