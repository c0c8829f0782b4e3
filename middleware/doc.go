// Package middleware adapts the goGuard action gate to net/http.
//
// # Handlers
//
//   - [Gate] resolves a goGuard.Request from the HTTP request, authorizes it
//     and stores the allowing Decision in the context.
//   - [RequireAction] is Gate with a fixed action.
//   - [ClientIP] records the caller address for the recovery limiter.
//   - [WriteError] renders engine errors for handlers that call the
//     recovery operations directly.
//
// Status mapping: policy denials are 403, flood and recovery throttling are
// 429 with Retry-After, unknown or expired recovery tokens are 404, a
// rejected credential is 422, and everything else is 500.
//
// # What this package must NOT do
//
//   - Decide anything itself. Every pass/deny comes from the engine.
//   - Record actions. The handler calls Engine.RecordAction once its write
//     succeeded.
package middleware
