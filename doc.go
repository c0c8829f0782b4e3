// Package goGuard provides the anti-abuse and authorization policy engine of
// a forum: a flood limiter for young accounts, named auth packages that gate
// privileged actions per forum, and single-use expiring recovery tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator interfaces ([SubjectProvider], [ActivityStore], [RecoveryStore],
// [Notifier], [Clock]) and value types ([Request], [Decision]). The decision
// logic lives in the flood, policy and settings packages; orchestration,
// Redis stores and rate limiting live under internal/.
//
// # What this package must NOT do
//
//   - Perform the gated mutation itself. Callers persist posts, thanks and
//     deletions, then call [Engine.RecordAction].
//   - Cache settings between evaluations.
//   - Turn a configuration or storage failure into an allow.
//   - Reveal through IssueRecovery whether a username exists.
package goGuard
