// Package event defines the ledger event envelope.
//
// Events are immutable facts emitted by accepted decisions. Storage assigns
// the sequence number and the integrity hashes on append; replaying the
// journal through the ledger fold rebuilds the graph.
package event
