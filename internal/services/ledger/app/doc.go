// Package app wires the ledger runtime: storage, engine, scheduler and the
// single listener that serves GraphQL, the schema explorer and gRPC health.
package app
