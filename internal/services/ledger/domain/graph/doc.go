// Package graph stores ledger entities in an arena keyed by identifier and
// the directed relationships between them as adjacency lists of identifiers.
//
// Only one direction of each relationship is authoritative: a Family owns its
// children list, a Transaction owns its source and destination. The reverse
// direction ("which family does this child belong to", "which transactions
// touch this account") is served from an inverse index maintained on Link, so
// back-reference queries never scan the arena.
//
// A Graph is a value snapshot. Writers Clone, mutate the clone, and publish
// it; a published Graph is never mutated again, so readers need no locks.
package graph
