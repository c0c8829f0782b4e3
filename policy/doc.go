// Package policy resolves auth packages by name and evaluates them against a
// subject and a target.
//
// # Packages
//
//   - OPEN: always allows. An empty package name means OPEN.
//   - ADMIN_REQUIRED: subject must be an administrator.
//   - STAFF_REQUIRED: subject must be staff or an administrator.
//   - AUTHOR_OR_STAFF: subject must own the target or be staff.
//
// Additional packages are registered by name before [Registry.Freeze].
// Unregistered names always deny. [Registry.Validate] lets callers reject
// them when forum configuration is loaded instead of at request time.
//
// # What this package must NOT do
//
//   - Read configuration, counters, or clocks.
//   - Import goGuard.
package policy
