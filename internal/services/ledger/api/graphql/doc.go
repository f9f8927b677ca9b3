// Package graphql serves the household ledger graph over GraphQL.
//
// Object types are derived from the entity catalog: every concrete kind
// implements exactly the interfaces its capability flags declare, so a
// field typed against an interface (FundingAccount, TransactionSource)
// resolves to whichever concrete variant the graph edge points at.
//
// Queries read one published snapshot per request. Mutations go through the
// ledger engine and answer from the snapshot their write published.
package graphql
