// Package entity defines the closed catalog of ledger entity variants and the
// capability flags each variant carries.
//
// Every node in the ledger graph is an Entity tagged with its concrete Kind.
// Capabilities are computed from the Kind once, at construction, so a
// traversal can ask "can this act as a transaction source?" with a single
// flag test instead of switching on concrete types. Construction rejects any
// kind/capability/payload combination the catalog does not declare.
package entity
