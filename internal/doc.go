// Package internal contains helper utilities that are intentionally private to goGuard:
// recovery token generation and hashing, and sortable record identifiers.
//
// # Sub-packages
//
//   - flows: pure-function flow orchestrators for every Engine operation
//   - limiters: the recovery request throttle
//   - stores: Redis activity and recovery stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
