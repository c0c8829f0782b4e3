// Package settings holds the runtime-mutable thresholds read by the policy
// engine on every evaluation.
//
// A [Reader] returns raw string values by key. [Memory] is the in-process
// store, [Redis] keeps values in one hash shared by every instance, and
// [Layered] stacks them so operator overrides sit over environment
// defaults loaded with [LoadDefaults]. [Load] parses a full [Snapshot] and
// never substitutes a default for a missing key.
package settings
