// Package timeouts defines shared timeout constants used by the ledger
// service. Centralizing these values keeps the durations discoverable.
package timeouts

import "time"

// AccountLock caps how long a writer waits for an account's serialization
// point before failing with a contention error.
const AccountLock = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Query caps the time allowed for a single GraphQL request.
const Query = 10 * time.Second
