// Package observability provides the entity event log and the statistics
// derived from it. Events are persisted either as JSON Lines (JSONL) in a
// single append-only file or in a SQLite database; statistics are computed
// on demand from whichever store is configured.
package observability
