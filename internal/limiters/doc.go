// Package limiters provides the fixed-window throttle applied to recovery
// requests, keyed per username and per client IP.
//
// The limiter is nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
