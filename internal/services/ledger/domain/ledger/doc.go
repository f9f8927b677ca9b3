// Package ledger decides ledger commands against a graph snapshot and folds
// the resulting events back into a graph.
//
// Decide is pure: it reads one snapshot and returns either events or a
// rejection carrying a coded error. Fold is the only code that mutates a
// graph, and it runs on a private clone that is published only after the
// whole batch applied.
package ledger
