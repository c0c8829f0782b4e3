// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunAuthorize, RunIssueRecovery, RunConsumeRecovery,
// etc.) accepts a typed dependency struct of function fields and returns
// results without side effects beyond those dependencies. The root Engine
// builds the dependency structs once and stays thin.
//
// # Architecture boundaries
//
// Flows combine the pure decision packages (flood, policy, settings) with
// store, limiter, notifier, audit and metrics callbacks. They do NOT own any
// of those resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
