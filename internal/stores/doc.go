// Package stores provides the Redis-backed state behind flood control and
// credential recovery.
//
// # Design
//
// Activity keeps one sorted set of action timestamps and one lifetime counter
// per subject. Window reads are pipelined; Record is a single MULTI.
//
// Recovery keeps at most one grant per subject plus a token-hash index.
// Issue and Consume use WATCH/MULTI optimistic transactions with bounded
// retry, so a superseded or replayed token can never be consumed. Tokens are
// stored only as SHA-256 digests.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT mint
// tokens, enforce rate limits, or read settings; those belong to the flow
// functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Log or expose plaintext tokens.
package stores
